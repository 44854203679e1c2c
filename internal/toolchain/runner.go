package toolchain

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/alnah/go-tex2pdf/internal/process"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to drain after
// the process group is killed.
const DefaultWaitDelay = 2 * time.Second

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // Appended to the current environment
}

// Runner executes a command and returns its combined stdout and stderr.
// The output is returned even when err is non-nil.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec in their own process group.
// Context cancellation kills the whole group.
type ExecRunner struct {
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	// #nosec G204 -- Name is a resolved tool path, Args are fixed flags plus a workspace file name
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	process.Isolate(cmd)
	cmd.Cancel = func() error {
		if err := process.KillProcessGroup(cmd.Process.Pid); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	err := cmd.Run()
	return buf.Bytes(), err
}
