//go:build !windows

// Package process places external tools in their own process group so the
// whole tree can be killed when a compilation deadline expires.
package process

import (
	"os/exec"
	"syscall"
)

// Isolate makes cmd the leader of a new process group. Must be called
// before cmd.Start.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// KillProcessGroup kills a process and all its children by sending SIGKILL
// to the process group (negative PID).
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}
