package commandmanager

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/steelcutops/snapcut/snapcut/sshkeys"
	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 30 * time.Second

type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error)
}

// RealSSHClient dials real SSH servers.
type RealSSHClient struct{}

func (RealSSHClient) Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	cfg := *config
	cfg.Timeout = timeout
	return ssh.Dial(network, addr, &cfg)
}

func (u *UnixCommandManager) getSSHConfig() (*ssh.ClientConfig, error) {
	var authMethod ssh.AuthMethod

	if u.Password != "" {
		slog.Debug("Using password authentication", "hostname", u.Hostname)
		authMethod = ssh.Password(u.Password)
	} else {
		slog.Debug("Using public key authentication", "hostname", u.Hostname)
		keyManager := u.KeyManager
		if keyManager == nil {
			keyManager = sshkeys.ForPassphrase(u.KeyPassphrase)
		}

		keys, err := keyManager.ReadPrivateKeys(u.KeyPassphrase)
		if err != nil {
			return nil, err
		}

		authMethod = ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			return keys, nil
		})
	}

	hostKeyCallback := u.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            u.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (u *UnixCommandManager) dialSSH(ctx context.Context) (*ssh.Client, error) {
	if u.SSHClient == nil {
		return nil, errors.New("SSHClient is not initialized")
	}

	sshConfig, err := u.getSSHConfig()
	if err != nil {
		return nil, err
	}

	dialTimeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
	}

	return u.SSHClient.Dial("tcp", sshAddress(u.Hostname), sshConfig, dialTimeout)
}

func sshAddress(hostname string) string {
	if _, _, err := net.SplitHostPort(hostname); err == nil {
		return hostname
	}
	return net.JoinHostPort(hostname, "22")
}

// DialUnix connects to a Unix socket on the managed host. Remote sockets are
// reached through an SSH streamlocal channel; closing the returned conn also
// closes the SSH connection carrying it.
func (u *UnixCommandManager) DialUnix(ctx context.Context, path string) (net.Conn, error) {
	if u.isLocal() {
		var dialer net.Dialer
		return dialer.DialContext(ctx, "unix", path)
	}

	client, err := u.dialSSH(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := client.Dial("unix", path)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &tunnelConn{Conn: conn, client: client}, nil
}

type tunnelConn struct {
	net.Conn
	client *ssh.Client
}

func (c *tunnelConn) Close() error {
	err := c.Conn.Close()
	if clientErr := c.client.Close(); err == nil {
		err = clientErr
	}
	return err
}
