package process

import "os/exec"

// CommandRunner abstracts process start/wait so tests can substitute launch
// behaviour without touching os/exec.
type CommandRunner interface {
	Start(cmd *exec.Cmd) error
	Wait(cmd *exec.Cmd) error
}

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

// Start launches cmd.
func (ExecRunner) Start(cmd *exec.Cmd) error { return cmd.Start() }

// Wait blocks until cmd exits and its output has been copied.
func (ExecRunner) Wait(cmd *exec.Cmd) error { return cmd.Wait() }
