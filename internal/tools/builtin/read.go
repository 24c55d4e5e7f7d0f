package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentgateway/gateway/internal/tools"
)

const defaultMaxReadBytes = 200_000

// ReadSchema is the JSON schema for the read tool's arguments.
var ReadSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to the file, relative to the workspace."},
		"offset": {"type": "integer", "minimum": 0, "description": "Byte offset to start reading from (default 0)."},
		"max_bytes": {"type": "integer", "minimum": 0, "description": "Maximum bytes to read, capped by the tool default."}
	},
	"required": ["path"]
}`)

// Read reads a file from the workspace with an optional offset and byte
// cap, truncating silently past the cap and reporting whether it did.
func Read(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
	_ = ctx
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult("path is required")
	}
	if input.Offset < 0 {
		return errResult("offset must be >= 0")
	}

	resolved, err := (resolver{root: workspaceDir}).resolve(input.Path)
	if err != nil {
		return errResult(err.Error())
	}

	file, err := os.Open(resolved)
	if err != nil {
		return errResult(fmt.Sprintf("open file: %v", err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errResult(fmt.Sprintf("stat file: %v", err))
	}

	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return errResult(fmt.Sprintf("seek file: %v", err))
		}
	}

	limit := defaultMaxReadBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}

	remaining := int64(limit)
	if size := info.Size(); size > 0 {
		remaining = size - input.Offset
		if remaining < 0 {
			remaining = 0
		}
		if remaining > int64(limit) {
			remaining = int64(limit)
		}
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return errResult(fmt.Sprintf("read file: %v", err))
	}

	truncated := info.Size() > 0 && input.Offset+int64(len(buf)) < info.Size()

	return jsonResult(map[string]any{
		"path":      input.Path,
		"content":   string(buf),
		"offset":    input.Offset,
		"bytes":     len(buf),
		"truncated": truncated,
	})
}

func errResult(message string) tools.Result {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return tools.Result{Content: message, IsError: true}
	}
	return tools.Result{Content: string(payload), IsError: true}
}

func jsonResult(v any) tools.Result {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("encode result: %v", err))
	}
	return tools.Result{Content: string(payload)}
}
