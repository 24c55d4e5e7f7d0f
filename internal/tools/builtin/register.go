package builtin

import (
	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/tools"
)

// Register adds the fixed filesystem and shell catalog to reg. read is
// unconditional; write, edit, and shell require either agent-access mode
// or a per-call user approval, since they can mutate the workspace or
// run arbitrary commands.
func Register(reg *tools.Registry) error {
	entries := []tools.Tool{
		{
			Name:        "read",
			Description: "Read a file from the workspace with an optional offset and byte limit.",
			Schema:      ReadSchema,
			Permission:  policy.AllowPermission(),
			Mode:        tools.Direct,
			Exec:        Read,
		},
		{
			Name:        "write",
			Description: "Write content to a file in the workspace (overwrites by default).",
			Schema:      WriteSchema,
			Permission:  policy.AskPermission(),
			Mode:        tools.Direct,
			Exec:        Write,
		},
		{
			Name:        "edit",
			Description: "Apply one or more find/replace edits to a file in the workspace.",
			Schema:      EditSchema,
			Permission:  policy.AskPermission(),
			Mode:        tools.Direct,
			Exec:        Edit,
		},
		{
			Name:         "shell",
			Description:  "Run a shell command to completion under /bin/sh -c, scoped to the workspace.",
			Schema:       ShellSchema,
			Permission:   policy.AskPermission(),
			Mode:         tools.Direct,
			Timeout:      int64(defaultShellLimit.Milliseconds()),
			Exec:         Shell,
			ShellCapable: true,
		},
	}
	for _, t := range entries {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
