package snap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/steelcutops/snapcut/logger"
	"github.com/steelcutops/snapcut/snapcut/commandmanager"
	"github.com/steelcutops/snapcut/snapcut/metrics"
	"github.com/steelcutops/snapcut/snapcut/snapd"
)

const (
	DefaultSnapBinary = "/usr/bin/snap"
	DefaultNamesFile  = "/var/cache/snapd/names"
)

// SnapdClient is the part of the snapd API the cache reads from.
type SnapdClient interface {
	InstalledSnaps(ctx context.Context) ([]snapd.SnapInfo, error)
	FindSnap(ctx context.Context, name string) (snapd.SnapInfo, error)
}

type cacheConfig struct {
	client      SnapdClient
	socketPath  string
	runner      CommandRunner
	sudo        bool
	recorder    metrics.Recorder
	logger      logger.Logger
	binaryCheck func(ctx context.Context) (bool, error)
	namesLoader func(ctx context.Context) ([]byte, error)
}

type CacheOption func(*cacheConfig)

// WithClient sets the snapd client. By default one is created for the
// socket given by WithSocketPath.
func WithClient(client SnapdClient) CacheOption {
	return func(c *cacheConfig) {
		c.client = client
	}
}

func WithSocketPath(path string) CacheOption {
	return func(c *cacheConfig) {
		c.socketPath = path
	}
}

// WithRunner sets where snap commands run. Defaults to the local host.
func WithRunner(runner CommandRunner) CacheOption {
	return func(c *cacheConfig) {
		c.runner = runner
	}
}

// WithSudo runs mutating snap commands through sudo.
func WithSudo(sudo bool) CacheOption {
	return func(c *cacheConfig) {
		c.sudo = sudo
	}
}

func WithRecorder(recorder metrics.Recorder) CacheOption {
	return func(c *cacheConfig) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

func WithLogger(l logger.Logger) CacheOption {
	return func(c *cacheConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBinaryCheck replaces the check that the snap binary is installed.
func WithBinaryCheck(check func(ctx context.Context) (bool, error)) CacheOption {
	return func(c *cacheConfig) {
		c.binaryCheck = check
	}
}

// WithNamesLoader replaces how the names index is read. The loader should
// return an error wrapping fs.ErrNotExist when there is no index.
func WithNamesLoader(loader func(ctx context.Context) ([]byte, error)) CacheOption {
	return func(c *cacheConfig) {
		c.namesLoader = loader
	}
}

func newCacheConfig(options []CacheOption) *cacheConfig {
	cfg := &cacheConfig{
		socketPath: snapd.DefaultSocketPath,
		recorder:   metrics.NoopRecorder{},
		logger:     logger.New(),
		binaryCheck: func(context.Context) (bool, error) {
			info, err := os.Stat(DefaultSnapBinary)
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return info.Mode().IsRegular(), nil
		},
		namesLoader: func(context.Context) ([]byte, error) {
			return os.ReadFile(DefaultNamesFile)
		},
	}
	for _, option := range options {
		option(cfg)
	}
	if cfg.runner == nil {
		cfg.runner = &commandmanager.UnixCommandManager{Hostname: "localhost"}
	}
	return cfg
}

func (cfg *cacheConfig) executor() *executor {
	return &executor{
		runner:   cfg.runner,
		sudo:     cfg.sudo,
		recorder: cfg.recorder,
		logger:   cfg.logger,
	}
}

// Cache is a name to Snap mapping of installed and available snaps.
// Installed snaps are loaded eagerly, everything else on first lookup.
type Cache struct {
	client SnapdClient
	exec   *executor
	logger logger.Logger
	// snaps holds nil for names from the index that were not loaded yet.
	snaps map[string]*Snap
}

// NewCache builds a cache from the names index and the snaps snapd reports
// as installed. It fails when the snap binary is missing or snapd cannot
// list installed snaps.
func NewCache(ctx context.Context, options ...CacheOption) (*Cache, error) {
	return newCache(ctx, newCacheConfig(options))
}

func newCache(ctx context.Context, cfg *cacheConfig) (*Cache, error) {
	installed, err := cfg.binaryCheck(ctx)
	if err != nil {
		return nil, fmt.Errorf("check snap binary: %w", err)
	}
	if !installed {
		return nil, &Error{Kind: KindAction, Message: ErrSnapdNotInstalled.Message}
	}

	client := cfg.client
	if client == nil {
		client = snapd.New(cfg.socketPath, snapd.WithRecorder(cfg.recorder))
	}

	c := &Cache{
		client: client,
		exec:   cfg.executor(),
		logger: cfg.logger,
		snaps:  make(map[string]*Snap),
	}

	if err := c.loadAvailable(ctx, cfg.namesLoader); err != nil {
		return nil, err
	}
	if err := c.loadInstalled(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// loadAvailable registers every name of the index without loading it.
func (c *Cache) loadAvailable(ctx context.Context, loader func(ctx context.Context) ([]byte, error)) error {
	data, err := loader(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("The snap cache has not been populated or is not in the default location")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snap names: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		name := string(bytes.TrimSpace(scanner.Bytes()))
		if name == "" {
			continue
		}
		if _, ok := c.snaps[name]; !ok {
			c.snaps[name] = nil
		}
	}
	return scanner.Err()
}

func (c *Cache) loadInstalled(ctx context.Context) error {
	installed, err := c.client.InstalledSnaps(ctx)
	if err != nil {
		return fmt.Errorf("load installed snaps: %w", err)
	}

	for _, info := range installed {
		c.snaps[info.Name] = c.newSnap(info, Latest)
	}
	c.logger.Debug("Loaded installed snaps", "count", len(installed))
	return nil
}

func (c *Cache) newSnap(info snapd.SnapInfo, state State) *Snap {
	channel := info.TrackingChannel
	if channel == "" {
		channel = info.Channel
	}
	return &Snap{
		name:        info.Name,
		state:       state,
		channel:     channel,
		revision:    string(info.Revision),
		confinement: Confinement(info.Confinement),
		exec:        c.exec,
	}
}

// Get returns the record for name. Unloaded names are queried from snapd once
// and kept; a snap snapd does not know is reported as a not-found error.
// The same record is returned on every call.
func (c *Cache) Get(ctx context.Context, name string) (*Snap, error) {
	s, known := c.snaps[name]
	if s != nil {
		return s, nil
	}
	if !known {
		c.logger.Warn("Snap not found in the snap cache. The catalog may not be populated by snapd yet", "snap", name)
	}

	info, err := c.client.FindSnap(ctx, name)
	if err != nil {
		return nil, &Error{
			Kind:    KindNotFound,
			Message: fmt.Sprintf("snap %q not found", name),
			Snap:    name,
			Cause:   err,
		}
	}

	s = c.newSnap(info, Available)
	c.snaps[name] = s
	return s, nil
}

// Contains reports whether name is known to the cache, loaded or not.
func (c *Cache) Contains(name string) bool {
	_, ok := c.snaps[name]
	return ok
}

func (c *Cache) Len() int {
	return len(c.snaps)
}

// Names returns every known name in sorted order.
func (c *Cache) Names() []string {
	names := make([]string, 0, len(c.snaps))
	for name := range c.snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Range calls fn for every known name in sorted order until fn returns
// false. Names that were not loaded yet are passed with a nil record.
func (c *Cache) Range(fn func(name string, s *Snap) bool) {
	for _, name := range c.Names() {
		if !fn(name, c.snaps[name]) {
			return
		}
	}
}

// Installed returns the records of installed snaps in name order.
func (c *Cache) Installed() []*Snap {
	var installed []*Snap
	c.Range(func(_ string, s *Snap) bool {
		if s != nil && s.Present() {
			installed = append(installed, s)
		}
		return true
	})
	return installed
}
