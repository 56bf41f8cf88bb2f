package commandmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/steelcutops/snapcut/common"
	"github.com/steelcutops/snapcut/snapcut/sshkeys"
	"golang.org/x/crypto/ssh"
)

var (
	ErrIncorrectSudoPassword = errors.New("sudo: incorrect password provided")
	ErrNotInSudoers          = errors.New("sudo: user is not in the sudoers file")
)

type UnixCommandManager struct {
	Hostname  string
	SSHClient SSHDialer
	common.Credentials

	// KeyManager overrides how private keys are found for public key auth.
	KeyManager sshkeys.KeyManager
	// HostKeyCallback verifies remote host keys. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

func (u *UnixCommandManager) RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	if config.Sudo {
		cmdArgs := append([]string{"-S", config.Command}, config.Args...)
		cmd = exec.CommandContext(ctx, "sudo", cmdArgs...)
		cmd.Stdin = strings.NewReader(u.SudoPassword + "\n")
	}
	if len(config.Env) > 0 {
		cmd.Env = append(os.Environ(), config.Env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Command:   shellquote.Join(cmd.Args...),
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	if sudoErr := checkSudo(config, result); sudoErr != nil {
		return result, sudoErr
	}
	if err != nil {
		return result, fmt.Errorf("%s: %w", result.Command, err)
	}
	return result, nil
}

func (u *UnixCommandManager) RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error) {
	slog.Debug("Executing remote command", "hostname", u.Hostname, "command", config.Command)

	client, err := u.dialSSH(ctx)
	if err != nil {
		return CommandResult{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, err
	}
	defer session.Close()

	cmdStr := remoteCommandLine(config)
	if config.Sudo {
		session.Stdin = strings.NewReader(u.SudoPassword + "\n")
	}

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdStr)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		slog.Error("Command over SSH timed out", "hostname", u.Hostname, "command", cmdStr)
		session.Close()
		return CommandResult{Command: cmdStr}, ctx.Err()
	}

	result := CommandResult{
		Command:   cmdStr,
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	if sudoErr := checkSudo(config, result); sudoErr != nil {
		return result, sudoErr
	}
	if err != nil {
		slog.Debug("Remote command failed", "hostname", u.Hostname, "command", cmdStr, "error", err)
		return result, fmt.Errorf("%s: %w", cmdStr, err)
	}
	return result, nil
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if u.isLocal() {
		slog.Debug("Detected local so running local command", "hostname", u.Hostname, "command", config.Command)
		return u.RunLocal(ctx, config)
	}

	slog.Debug("Detected remote command so running remote command", "hostname", u.Hostname, "command", config.Command)
	return u.RunRemote(ctx, config)
}

func (u *UnixCommandManager) isLocal() bool {
	return u.Hostname == "" || u.Hostname == "localhost" || u.Hostname == "127.0.0.1"
}

// remoteCommandLine renders config as a single shell command line.
func remoteCommandLine(config CommandConfig) string {
	words := make([]string, 0, len(config.Args)+len(config.Env)+4)
	if config.Sudo {
		words = append(words, "sudo", "-S")
	}
	if len(config.Env) > 0 {
		words = append(words, "env")
		words = append(words, config.Env...)
	}
	words = append(words, config.Command)
	words = append(words, config.Args...)
	return shellquote.Join(words...)
}

// checkSudo maps sudo failures reported on stderr. Commands run without
// sudo are never inspected.
func checkSudo(config CommandConfig, result CommandResult) error {
	if !config.Sudo {
		return nil
	}
	if strings.Contains(result.STDERR, "incorrect password") {
		return ErrIncorrectSudoPassword
	}
	if strings.Contains(result.STDERR, "is not in the sudoers file") {
		return ErrNotInSudoers
	}
	return nil
}

func getExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var sshExitErr *ssh.ExitError
	if errors.As(err, &sshExitErr) {
		return sshExitErr.ExitStatus()
	}
	return -1
}
