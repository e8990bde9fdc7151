package tools

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// CodeTool runs shell commands for post-processing chores. The timeout
// is owned here, not by the loop.
type CodeTool struct {
	Dir     string
	Timeout time.Duration
}

func NewCodeTool(dir string) *CodeTool {
	return &CodeTool{Dir: dir, Timeout: 60 * time.Second}
}

func (c *CodeTool) Name() string {
	return "code.run"
}

func (c *CodeTool) Description() string {
	return "Execute a shell command in the workspace. Input: the command line."
}

func (c *CodeTool) Execute(ctx context.Context, input string) Result {
	command := strings.TrimSpace(input)
	if command == "" {
		return Errf(KindText, "empty command")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = c.Dir
	output, err := cmd.CombinedOutput()

	text := strings.TrimSpace(string(output))
	if text == "" {
		text = "(no output)"
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return Errf(KindText, "command timed out after %s", c.Timeout)
	}
	if err != nil {
		return Result{Kind: KindText, Err: err.Error(), Output: text}
	}

	return Result{Kind: KindText, Output: text}
}
