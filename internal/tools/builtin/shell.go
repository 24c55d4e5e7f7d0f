package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/agentgateway/gateway/internal/tools"
)

const (
	maxShellOutput    = 64_000
	defaultShellLimit = 30 * time.Second
)

// ShellSchema is the JSON schema for the shell tool's arguments.
var ShellSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "Shell command to run via /bin/sh -c."},
		"cwd": {"type": "string", "description": "Working directory, relative to the workspace (default workspace root)."},
		"timeout_seconds": {"type": "integer", "minimum": 0, "description": "Overrides the dispatcher's default tool timeout."}
	},
	"required": ["command"]
}`)

// Shell runs one command to completion under /bin/sh -c, scoped to the
// workspace directory, with output capped and a context-bound deadline.
// It has no notion of a background process: every invocation is
// synchronous, matching the Direct tool mode (spec.md §4.3).
func Shell(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
	var input struct {
		Command        string `json:"command"`
		Cwd            string `json:"cwd"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Command) == "" {
		return errResult("command is required")
	}

	runCtx := ctx
	if input.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	dir := workspaceDir
	if input.Cwd != "" {
		resolved, err := (resolver{root: workspaceDir}).resolve(input.Cwd)
		if err != nil {
			return errResult(err.Error())
		}
		dir = resolved
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", input.Command)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr limitedBuffer
	stdout.max = maxShellOutput
	stderr.max = maxShellOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	return jsonResult(map[string]any{
		"command":   input.Command,
		"cwd":       dir,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode(runErr),
		"duration":  time.Since(start).String(),
	})
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer caps how much stdout/stderr a shell invocation can
// accumulate, so a runaway command cannot exhaust memory feeding output
// back to the model.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && b.buf.Len() >= b.max {
		return len(p), nil
	}
	if b.max > 0 && b.buf.Len()+len(p) > b.max {
		p = p[:b.max-b.buf.Len()]
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string { return b.buf.String() }
