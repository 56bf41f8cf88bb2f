package commandmanager

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

// FileExists reports whether path exists on the managed host.
func (u *UnixCommandManager) FileExists(ctx context.Context, path string) (bool, error) {
	if u.isLocal() {
		_, err := os.Stat(path)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	result, err := u.RunRemote(ctx, CommandConfig{
		Command: "test",
		Args:    []string{"-e", path},
	})
	if err != nil {
		if result.ExitCode == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadFile returns the contents of path on the managed host. A missing file
// yields an error wrapping fs.ErrNotExist on both local and remote hosts.
func (u *UnixCommandManager) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if u.isLocal() {
		return os.ReadFile(path)
	}

	exists, err := u.FileExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	result, err := u.RunRemote(ctx, CommandConfig{
		Command: "cat",
		Args:    []string{path},
	})
	if err != nil {
		return nil, err
	}
	return []byte(result.STDOUT), nil
}
