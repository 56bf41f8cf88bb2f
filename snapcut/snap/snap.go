// Package snap keeps a view of the snaps on a host and reconciles them
// towards a desired state.
//
// A Cache maps snap names to Snap records. Installed snaps are loaded when
// the cache is built; snaps that are only known by name are looked up in the
// store through snapd the first time they are requested. Records are mutated
// in place by Ensure, so a later lookup observes the new state.
//
// Records and caches are not safe for concurrent use.
package snap

import (
	"context"
	"fmt"
	"time"

	"github.com/steelcutops/snapcut/logger"
	"github.com/steelcutops/snapcut/snapcut/commandmanager"
	"github.com/steelcutops/snapcut/snapcut/metrics"
)

// Confinement is the sandboxing mode of a snap.
type Confinement string

const (
	Classic Confinement = "classic"
	Strict  Confinement = "strict"
)

// CommandRunner runs snap commands. commandmanager.UnixCommandManager
// satisfies it for both local and remote hosts.
type CommandRunner interface {
	Run(ctx context.Context, config commandmanager.CommandConfig) (commandmanager.CommandResult, error)
}

const snapCommand = "snap"

// executor is shared by every record of a cache.
type executor struct {
	runner   CommandRunner
	sudo     bool
	recorder metrics.Recorder
	logger   logger.Logger
}

func (x *executor) run(ctx context.Context, action, name string, args ...string) (string, error) {
	cmdArgs := append([]string{action, name}, args...)
	command := append([]string{snapCommand}, cmdArgs...)

	x.logger.Debug("Running snap command", "snap", name, "command", command)
	start := time.Now()
	result, err := x.runner.Run(ctx, commandmanager.CommandConfig{
		Command: snapCommand,
		Args:    cmdArgs,
		Sudo:    x.sudo && action != "get",
	})
	if err == nil && result.ExitCode != 0 {
		err = fmt.Errorf("exit status %d", result.ExitCode)
	}
	x.recorder.ObserveAction(action, time.Since(start), err == nil)

	if err != nil {
		return "", &Error{
			Kind:    KindAction,
			Message: fmt.Sprintf("could not %s snap %q", action, name),
			Snap:    name,
			Command: command,
			Output:  result.Combined(),
			Cause:   err,
		}
	}
	return result.STDOUT, nil
}

// Snap represents a snap package and its properties. Two records are equal
// when name and revision match.
type Snap struct {
	name        string
	state       State
	channel     string
	revision    string
	confinement Confinement
	exec        *executor
}

// NewSnap builds a standalone record that runs its commands through runner.
// Records obtained from a Cache should be preferred.
func NewSnap(runner CommandRunner, name string, state State, channel, revision string, confinement Confinement) *Snap {
	return &Snap{
		name:        name,
		state:       state,
		channel:     channel,
		revision:    revision,
		confinement: confinement,
		exec: &executor{
			runner:   runner,
			recorder: metrics.NoopRecorder{},
			logger:   logger.New(),
		},
	}
}

func (s *Snap) Name() string             { return s.name }
func (s *Snap) State() State             { return s.state }
func (s *Snap) Channel() string          { return s.channel }
func (s *Snap) Revision() string         { return s.revision }
func (s *Snap) Confinement() Confinement { return s.confinement }

// Present reports whether the snap is installed.
func (s *Snap) Present() bool {
	return s.state.Installed()
}

// Latest reports whether the snap is installed at its latest revision.
func (s *Snap) Latest() bool {
	return s.state == Latest
}

func (s *Snap) Equal(other *Snap) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.name == other.name && s.revision == other.revision
}

func (s *Snap) String() string {
	return fmt.Sprintf("<Snap: %s-%s.%s -- %s>", s.name, s.revision, s.channel, s.state)
}

// Get returns the raw output of `snap get <name> <key>`.
func (s *Snap) Get(ctx context.Context, key string) (string, error) {
	return s.exec.run(ctx, "get", s.name, key)
}

// Set runs `snap set <name> <key>=<value>` and returns its raw output.
func (s *Snap) Set(ctx context.Context, key, value string) (string, error) {
	return s.exec.run(ctx, "set", s.name, key+"="+value)
}

// Unset runs `snap unset <name> <key>` and returns its raw output.
func (s *Snap) Unset(ctx context.Context, key string) (string, error) {
	return s.exec.run(ctx, "unset", s.name, key)
}

type EnsureOptions struct {
	// Classic requests classic confinement. The record becomes classic once
	// a call asking for it succeeds; false never downgrades it.
	Classic bool
	// Channel to install or refresh from. Empty means the snap's default
	// for installs and the currently tracked channel for refreshes.
	Channel string
}

// Ensure moves the snap to state, running at most one snap command. It is a
// no-op when the snap is already in state, unless the call upgrades an
// installed snap to classic confinement, which refreshes it with --classic.
// On failure the recorded state and confinement are left untouched, so a
// retry runs the command again.
func (s *Snap) Ensure(ctx context.Context, state State, opts EnsureOptions) error {
	if !state.Valid() {
		return validationError("unknown snap state %q", state)
	}

	classic := opts.Classic || s.confinement == Classic
	upgraded := opts.Classic && s.confinement != Classic

	action := Plan(s.state, state)
	if action == ActionNone && upgraded && s.state.Installed() {
		action = ActionRefresh
	}

	var err error
	switch action {
	case ActionInstall:
		err = s.install(ctx, opts.Channel, classic)
	case ActionRefresh:
		err = s.refresh(ctx, opts.Channel, classic)
	case ActionRemove:
		err = s.remove(ctx)
	}
	if err != nil {
		return err
	}

	if opts.Classic {
		s.confinement = Classic
	}
	if action == ActionNone {
		return nil
	}
	s.state = state
	if opts.Channel != "" && state != Absent {
		s.channel = opts.Channel
	}
	return nil
}

func (s *Snap) install(ctx context.Context, channel string, classic bool) error {
	var args []string
	if classic {
		args = append(args, "--classic")
	}
	if channel != "" {
		args = append(args, "--channel="+channel)
	}
	_, err := s.exec.run(ctx, "install", s.name, args...)
	return err
}

func (s *Snap) refresh(ctx context.Context, channel string, classic bool) error {
	if channel == "" {
		channel = s.channel
	}
	var args []string
	if classic {
		args = append(args, "--classic")
	}
	if channel != "" {
		args = append(args, "--channel="+channel)
	}
	_, err := s.exec.run(ctx, "refresh", s.name, args...)
	return err
}

func (s *Snap) remove(ctx context.Context) error {
	_, err := s.exec.run(ctx, "remove", s.name)
	return err
}
