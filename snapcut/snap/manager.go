package snap

import (
	"context"
	"fmt"
	"strings"
)

// DefaultChannel is used by Manager.Add when no channel is given.
const DefaultChannel = "latest"

// Manager is the convenience surface over a lazily built Cache, similar to
// running the snap command by hand.
type Manager struct {
	lazy *Lazy
	exec *executor
}

// NewManager returns a Manager whose cache is built with options on first use.
func NewManager(options ...CacheOption) *Manager {
	cfg := newCacheConfig(options)
	return &Manager{
		lazy: NewLazy(func(ctx context.Context) (*Cache, error) {
			return newCache(ctx, cfg)
		}),
		exec: cfg.executor(),
	}
}

// Cache returns the manager's cache, building it if needed.
func (m *Manager) Cache(ctx context.Context) (*Cache, error) {
	return m.lazy.Cache(ctx)
}

// Refresh drops the cache so the next operation rebuilds it from snapd.
func (m *Manager) Refresh() {
	m.lazy.Reset()
}

// Lookup returns the record for name.
func (m *Manager) Lookup(ctx context.Context, name string) (*Snap, error) {
	cache, err := m.lazy.Cache(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Get(ctx, name)
}

type AddOptions struct {
	// State is Present or Latest; empty means Latest.
	State State
	// Channel defaults to DefaultChannel.
	Channel string
	Classic bool
}

// Add installs or refreshes snaps.
func (m *Manager) Add(ctx context.Context, names []string, opts AddOptions) ([]*Snap, error) {
	if len(names) == 0 {
		return nil, validationError("expected at least one snap to add, received zero")
	}
	state := opts.State
	if state == "" {
		state = Latest
	}
	if state == Absent {
		return nil, validationError("cannot add snaps with state %q, remove them instead", state)
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	cache, err := m.lazy.Cache(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Reconcile(ctx, names, state, ReconcileOptions{Channel: channel, Classic: opts.Classic})
}

// Remove removes snaps from the system.
func (m *Manager) Remove(ctx context.Context, names ...string) ([]*Snap, error) {
	if len(names) == 0 {
		return nil, validationError("expected at least one snap to remove, received zero")
	}

	cache, err := m.lazy.Cache(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Reconcile(ctx, names, Absent, ReconcileOptions{})
}

// Ensure adds the snaps for "present" and "latest" and removes them for
// "absent".
func (m *Manager) Ensure(ctx context.Context, names []string, state string, channel string, classic bool) ([]*Snap, error) {
	parsed, err := ParseState(state)
	if err != nil {
		return nil, err
	}

	switch parsed {
	case Present, Latest:
		return m.Add(ctx, names, AddOptions{State: parsed, Channel: channel, Classic: classic})
	case Absent:
		return m.Remove(ctx, names...)
	default:
		return nil, validationError("cannot ensure snaps are %q", parsed)
	}
}

// InstallLocal installs a snap from a .snap file on the managed host and
// returns its record from a freshly built cache.
func (m *Manager) InstallLocal(ctx context.Context, path string, classic, dangerous bool) (*Snap, error) {
	var args []string
	if classic {
		args = append(args, "--classic")
	}
	if dangerous {
		args = append(args, "--dangerous")
	}

	output, err := m.exec.run(ctx, "install", path, args...)
	if err != nil {
		return nil, err
	}

	name := installedName(output)
	if name == "" {
		return nil, &Error{
			Kind:    KindAction,
			Message: fmt.Sprintf("could not determine the snap installed from %q", path),
			Snap:    path,
			Output:  output,
		}
	}

	m.lazy.Reset()
	return m.Lookup(ctx, name)
}

// installedName extracts the snap name from `snap install` output such as
// "hello 2.10 installed".
func installedName(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	return name
}
