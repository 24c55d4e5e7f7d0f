package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/agentgateway/gateway/internal/tools"
)

// EditSchema is the JSON schema for the edit tool's arguments.
var EditSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to edit, relative to the workspace."},
		"edits": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"old_text": {"type": "string", "description": "Text to replace."},
					"new_text": {"type": "string", "description": "Replacement text."},
					"replace_all": {"type": "boolean", "description": "Replace all occurrences (default false)."}
				},
				"required": ["old_text", "new_text"]
			}
		}
	},
	"required": ["path", "edits"]
}`)

// Edit applies one or more find/replace edits to a file in the workspace.
// Every old_text must be found in the current content, in order, before
// any edit is applied - a partial match never writes a partial file.
func Edit(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
	_ = ctx
	var input struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText    string `json:"old_text"`
			NewText    string `json:"new_text"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult("path is required")
	}
	if len(input.Edits) == 0 {
		return errResult("edits are required")
	}

	resolved, err := (resolver{root: workspaceDir}).resolve(input.Path)
	if err != nil {
		return errResult(err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errResult(fmt.Sprintf("read file: %v", err))
	}

	content := string(data)
	replacements := 0
	for _, edit := range input.Edits {
		if edit.OldText == "" {
			return errResult("old_text is required")
		}
		if !strings.Contains(content, edit.OldText) {
			return errResult("old_text not found: " + edit.OldText)
		}
		if edit.ReplaceAll {
			replacements += strings.Count(content, edit.OldText)
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
		} else {
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errResult(fmt.Sprintf("write file: %v", err))
	}

	return jsonResult(map[string]any{
		"path":         input.Path,
		"replacements": replacements,
	})
}
