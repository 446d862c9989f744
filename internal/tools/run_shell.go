package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runShellTool executes a shell command, sandboxed per spec §4.9, named
// "run_shell" per spec's explicit naming and wired to applySandbox.
type runShellTool struct {
	policy *Policy
}

func newRunShellTool(policy *Policy) *runShellTool {
	return &runShellTool{policy: policy}
}

func (t *runShellTool) Name() string        { return "run_shell" }
func (t *runShellTool) Description() string { return "Execute a shell command." }
func (t *runShellTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "Shell command to execute"},
		},
		"required": []string{"command"},
	}
}

// ExecResult is the structured run_shell output.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (t *runShellTool) Execute(ctx context.Context, args map[string]string) (ToolOutput, error) {
	command, ok := args["command"]
	if !ok {
		return fail("command is required"), nil
	}
	if allowed, reason := t.policy.CheckCommand(t.Name(), command); !allowed {
		return fail(reason), nil
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.policy.Workspace
	applySandbox(cmd, SandboxStrict, t.policy.Workspace)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return fail(fmt.Sprintf("failed to execute command: %v", err)), nil
		}
	}

	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}
	output := result.Stdout
	if result.Stderr != "" {
		output += "\n[stderr]\n" + result.Stderr
	}
	return ToolOutput{Success: exitCode == 0, Output: strings.TrimSpace(output)}, nil
}
