package host

import (
	"github.com/steelcutops/snapcut/logger"
	"github.com/steelcutops/snapcut/snapcut/commandmanager"
	"github.com/steelcutops/snapcut/snapcut/metrics"
	"golang.org/x/crypto/ssh"
)

type HostOption func(*Host)

// WithUser returns a HostOption that sets the user for a Host.
func WithUser(user string) HostOption {
	return func(host *Host) {
		host.User = user
	}
}

// WithPassword returns a HostOption that sets the password for a Host.
func WithPassword(password string) HostOption {
	return func(host *Host) {
		host.Password = password
	}
}

// WithKeyPassphrase returns a HostOption that sets the key passphrase for a Host.
func WithKeyPassphrase(keyPassphrase string) HostOption {
	return func(host *Host) {
		host.KeyPassphrase = keyPassphrase
	}
}

// WithSudoPassword returns a HostOption that sets the sudo password for a
// Host. Mutating snap commands then run through sudo.
func WithSudoPassword(password string) HostOption {
	return func(host *Host) {
		host.SudoPassword = password
		host.Sudo = true
	}
}

// WithSudo runs mutating snap commands through sudo.
func WithSudo(sudo bool) HostOption {
	return func(host *Host) {
		host.Sudo = sudo
	}
}

func WithSSHClient(client commandmanager.SSHDialer) HostOption {
	return func(host *Host) {
		host.SSHClient = client
	}
}

func WithHostKeyCallback(callback ssh.HostKeyCallback) HostOption {
	return func(host *Host) {
		host.HostKeyCallback = callback
	}
}

// WithSocketPath sets the path of the snapd socket on the host.
func WithSocketPath(path string) HostOption {
	return func(host *Host) {
		host.SocketPath = path
	}
}

func WithLogger(l logger.Logger) HostOption {
	return func(host *Host) {
		host.Logger = l
	}
}

func WithRecorder(recorder metrics.Recorder) HostOption {
	return func(host *Host) {
		host.Recorder = recorder
	}
}
