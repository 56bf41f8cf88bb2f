package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/steelcutops/snapcut/snapcut/declaration"
	"github.com/steelcutops/snapcut/snapcut/host"
	"github.com/steelcutops/snapcut/snapcut/snap"
)

type hostAction func(ctx context.Context, h *host.Host) error

// output serializes what the hosts print so the lines of one host stay
// together.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *output) print(hostname string, lines []string) {
	if len(lines) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, line := range lines {
		fmt.Fprintf(o.w, "%s: %s\n", hostname, line)
	}
}

func actionFor(c *cli, command string, decl *declaration.Declaration, w io.Writer) (hostAction, error) {
	out := &output{w: w}

	switch command {
	case "apply":
		return func(ctx context.Context, h *host.Host) error {
			return h.Apply(ctx, decl)
		}, nil

	case "add":
		opts := snap.AddOptions{
			State:   snap.State(c.Add.State),
			Channel: c.Add.Channel,
			Classic: c.Add.Classic,
		}
		names := c.Add.Snaps
		return func(ctx context.Context, h *host.Host) error {
			snaps, err := h.Snaps.Add(ctx, names, opts)
			if err != nil {
				return err
			}
			out.print(h.Hostname, describeAll(snaps))
			return nil
		}, nil

	case "remove":
		names := c.Remove.Snaps
		return func(ctx context.Context, h *host.Host) error {
			snaps, err := h.Snaps.Remove(ctx, names...)
			if err != nil {
				return err
			}
			out.print(h.Hostname, describeAll(snaps))
			return nil
		}, nil

	case "ensure":
		e := c.Ensure
		return func(ctx context.Context, h *host.Host) error {
			snaps, err := h.Snaps.Ensure(ctx, e.Snaps, e.State, e.Channel, e.Classic)
			if err != nil {
				return err
			}
			out.print(h.Hostname, describeAll(snaps))
			return nil
		}, nil

	case "info":
		name := c.Info.Snap
		return func(ctx context.Context, h *host.Host) error {
			s, err := h.Snaps.Lookup(ctx, name)
			if err != nil {
				return err
			}
			out.print(h.Hostname, []string{describe(s)})
			return nil
		}, nil

	case "list":
		all := c.List.All
		return func(ctx context.Context, h *host.Host) error {
			cache, err := h.Snaps.Cache(ctx)
			if err != nil {
				return err
			}
			out.print(h.Hostname, listCache(cache, all))
			return nil
		}, nil

	case "get", "set", "unset":
		return configAction(c, command, out), nil

	case "install-local":
		il := c.InstallLocal
		return func(ctx context.Context, h *host.Host) error {
			s, err := h.Snaps.InstallLocal(ctx, il.Path, il.Classic, il.Dangerous)
			if err != nil {
				return err
			}
			out.print(h.Hostname, []string{describe(s)})
			return nil
		}, nil
	}

	return nil, fmt.Errorf("unknown command %q", command)
}

func configAction(c *cli, command string, out *output) hostAction {
	return func(ctx context.Context, h *host.Host) error {
		var (
			name   string
			result string
		)
		switch command {
		case "get":
			name = c.Get.Snap
		case "set":
			name = c.Set.Snap
		default:
			name = c.Unset.Snap
		}

		s, err := h.Snaps.Lookup(ctx, name)
		if err != nil {
			return err
		}
		switch command {
		case "get":
			result, err = s.Get(ctx, c.Get.Key)
		case "set":
			result, err = s.Set(ctx, c.Set.Key, c.Set.Value)
		default:
			result, err = s.Unset(ctx, c.Unset.Key)
		}
		if err != nil {
			return err
		}
		out.print(h.Hostname, nonEmptyLines(result))
		return nil
	}
}

func describe(s *snap.Snap) string {
	line := fmt.Sprintf("%s %s", s.Name(), s.State())
	if s.Channel() != "" {
		line += " channel=" + s.Channel()
	}
	if s.Revision() != "" {
		line += " revision=" + s.Revision()
	}
	if s.Confinement() != "" {
		line += " confinement=" + string(s.Confinement())
	}
	return line
}

func describeAll(snaps []*snap.Snap) []string {
	lines := make([]string, 0, len(snaps))
	for _, s := range snaps {
		lines = append(lines, describe(s))
	}
	return lines
}

// listCache describes the installed snaps, or every known name when all is
// set. Names that were never looked up are listed without details.
func listCache(cache *snap.Cache, all bool) []string {
	var lines []string
	cache.Range(func(name string, s *snap.Snap) bool {
		switch {
		case s == nil:
			if all {
				lines = append(lines, name+" unknown")
			}
		case s.Present() || all:
			lines = append(lines, describe(s))
		}
		return true
	})
	return lines
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
