package commandmanager

import (
	"context"
	"time"
)

// CommandConfig describes one command to run on a host.
type CommandConfig struct {
	Command string
	Args    []string
	Sudo    bool
	Env     []string
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// Combined returns stdout followed by stderr.
func (r CommandResult) Combined() string {
	return r.STDOUT + r.STDERR
}

// CommandManager provides methods to execute commands, both locally and remotely.
// A command that exits non-zero is reported as an error; the result still
// carries its output and exit code.
type CommandManager interface {
	// Run executes a command locally or remotely depending on the host.
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)

	// RunLocal executes a command on the local system.
	RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error)

	// RunRemote executes a command on a remote system via SSH.
	RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error)
}
