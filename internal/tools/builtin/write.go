package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentgateway/gateway/internal/tools"
)

// WriteSchema is the JSON schema for the write tool's arguments.
var WriteSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to write, relative to the workspace."},
		"content": {"type": "string", "description": "File contents to write."},
		"append": {"type": "boolean", "description": "Append instead of overwrite (default false)."}
	},
	"required": ["path", "content"]
}`)

// Write creates or overwrites a file within the workspace, creating
// parent directories as needed.
func Write(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
	_ = ctx
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult("path is required")
	}

	resolved, err := (resolver{root: workspaceDir}).resolve(input.Path)
	if err != nil {
		return errResult(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errResult(fmt.Sprintf("create directory: %v", err))
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return errResult(fmt.Sprintf("open file: %v", err))
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return errResult(fmt.Sprintf("write file: %v", err))
	}

	return jsonResult(map[string]any{
		"path":          input.Path,
		"bytes_written": n,
		"append":        input.Append,
	})
}
