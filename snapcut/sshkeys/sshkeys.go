// Package sshkeys loads private keys for public key SSH authentication.
package sshkeys

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

type KeyManager interface {
	ReadPrivateKeys(keyPassphrase string) ([]ssh.Signer, error)
}

// FileKeyManager reads ~/.ssh/id_* private keys from disk.
type FileKeyManager struct {
	// Dir overrides ~/.ssh when set.
	Dir string
}

// AgentKeyManager asks the agent listening on SSH_AUTH_SOCK for its signers.
type AgentKeyManager struct{}

// ForPassphrase picks the key source the way the CLI does: an explicit
// passphrase means keys on disk, otherwise the agent.
func ForPassphrase(keyPassphrase string) KeyManager {
	if keyPassphrase != "" {
		return FileKeyManager{}
	}
	return AgentKeyManager{}
}

func (km AgentKeyManager) ReadPrivateKeys(_ string) ([]ssh.Signer, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("could not connect to SSH agent: %w", err)
	}
	defer conn.Close()

	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		return nil, fmt.Errorf("could not get signers from SSH agent: %w", err)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("no keys found in SSH agent")
	}

	return signers, nil
}

func (km FileKeyManager) ReadPrivateKeys(keyPassphrase string) ([]ssh.Signer, error) {
	dir := km.Dir
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".ssh")
	}

	files, err := filepath.Glob(filepath.Join(dir, "id_*"))
	if err != nil {
		return nil, err
	}

	var signers []ssh.Signer
	var lastErr error
	for _, file := range files {
		if strings.HasSuffix(file, ".pub") {
			continue
		}

		keyBytes, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		var signer ssh.Signer
		if keyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(keyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			// Wrong passphrase or unsupported format; try the next key.
			lastErr = err
			continue
		}

		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no usable SSH keys in %s: %w", dir, lastErr)
		}
		return nil, fmt.Errorf("no SSH keys found in %s", dir)
	}

	return signers, nil
}
