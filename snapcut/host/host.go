package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/user"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/steelcutops/snapcut/common"
	"github.com/steelcutops/snapcut/logger"
	"github.com/steelcutops/snapcut/snapcut/commandmanager"
	"github.com/steelcutops/snapcut/snapcut/declaration"
	"github.com/steelcutops/snapcut/snapcut/metrics"
	"github.com/steelcutops/snapcut/snapcut/snap"
	"github.com/steelcutops/snapcut/snapcut/snapd"
	"golang.org/x/crypto/ssh"
)

// Host is a machine whose snaps are managed, either the local one or a
// remote one reached over SSH. Snap commands, the snapd socket and the snap
// names index are all accessed through the host's command manager.
type Host struct {
	Hostname string
	common.Credentials
	Sudo bool

	SSHClient       commandmanager.SSHDialer
	HostKeyCallback ssh.HostKeyCallback
	SocketPath      string
	Logger          logger.Logger
	Recorder        metrics.Recorder

	CommandManager *commandmanager.UnixCommandManager
	Snaps          *snap.Manager
}

func NewHost(hostname string, options ...HostOption) (*Host, error) {
	if hostname == "" {
		return nil, errors.New("hostname must not be empty")
	}

	h := &Host{
		Hostname:   hostname,
		SocketPath: snapd.DefaultSocketPath,
		Logger:     logger.New(),
		Recorder:   metrics.NoopRecorder{},
	}
	for _, option := range options {
		option(h)
	}

	if err := setDefaultUserIfEmpty(h); err != nil {
		return nil, err
	}

	cmdManager := &commandmanager.UnixCommandManager{
		Hostname:        hostname,
		SSHClient:       h.SSHClient,
		Credentials:     h.Credentials,
		HostKeyCallback: h.HostKeyCallback,
	}
	h.CommandManager = cmdManager

	socketPath := h.SocketPath
	client := snapd.New(socketPath,
		snapd.WithDialer(func(ctx context.Context) (net.Conn, error) {
			return cmdManager.DialUnix(ctx, socketPath)
		}),
		snapd.WithRecorder(h.Recorder),
	)

	h.Snaps = snap.NewManager(
		snap.WithClient(client),
		snap.WithRunner(cmdManager),
		snap.WithSudo(h.Sudo),
		snap.WithRecorder(h.Recorder),
		snap.WithLogger(h.Logger),
		snap.WithBinaryCheck(func(ctx context.Context) (bool, error) {
			return cmdManager.FileExists(ctx, snap.DefaultSnapBinary)
		}),
		snap.WithNamesLoader(func(ctx context.Context) ([]byte, error) {
			return cmdManager.ReadFile(ctx, snap.DefaultNamesFile)
		}),
	)

	return h, nil
}

// Apply reconciles every batch of the declaration on the host. All batches
// are attempted; their errors are combined.
func (h *Host) Apply(ctx context.Context, d *declaration.Declaration) error {
	cache, err := h.Snaps.Cache(ctx)
	if err != nil {
		return fmt.Errorf("build snap cache on %s: %w", h.Hostname, err)
	}

	var result *multierror.Error
	for _, batch := range d.Batches() {
		h.Logger.Debug("Reconciling batch", "host", h.Hostname, "state", batch.State, "channel", batch.Channel, "classic", batch.Classic, "snaps", batch.Names)
		snaps, err := cache.Reconcile(ctx, batch.Names, batch.State, snap.ReconcileOptions{
			Channel: batch.Channel,
			Classic: batch.Classic,
		})
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, s := range snaps {
			h.Logger.Info("Snap reconciled", "host", h.Hostname, "snap", s.Name(), "state", s.State(), "channel", s.Channel())
		}
	}
	return result.ErrorOrNil()
}

func (h *Host) isLocal() bool {
	return h.Hostname == "localhost" || h.Hostname == "127.0.0.1"
}

func setDefaultUserIfEmpty(h *Host) error {
	if h.User != "" || h.isLocal() {
		return nil
	}
	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("could not get current user: %w", err)
	}
	h.User = currentUser.Username
	return nil
}
