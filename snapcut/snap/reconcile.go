package snap

import (
	"context"
	"fmt"
	"strings"

	"github.com/steelcutops/snapcut/snapcut/metrics"
)

type ReconcileOptions struct {
	Channel string
	Classic bool
}

// Reconcile ensures every named snap is in state. Each snap is processed
// independently: a snap that is unknown or whose command fails does not stop
// the others. If any snap failed, the returned aggregate error names all of
// them and no records are returned, even though the other snaps were already
// changed. Otherwise the records are returned in the order of names.
//
// Channel and classic are ignored when state is Absent.
func (c *Cache) Reconcile(ctx context.Context, names []string, state State, opts ReconcileOptions) ([]*Snap, error) {
	if len(names) == 0 {
		c.exec.recorder.IncReconcile(string(state), metrics.OutcomeInvalid)
		return nil, validationError("expected at least one snap, received zero")
	}
	if !state.Valid() {
		c.exec.recorder.IncReconcile(string(state), metrics.OutcomeInvalid)
		return nil, validationError("unknown snap state %q", state)
	}

	op := "install or refresh"
	ensure := EnsureOptions{Classic: opts.Classic, Channel: opts.Channel}
	if state == Absent {
		op = "remove"
		ensure = EnsureOptions{}
	}

	var succeeded []*Snap
	var failed []string
	for _, name := range names {
		s, err := c.Get(ctx, name)
		if err != nil {
			c.logger.Warn("Snap not found in cache", "snap", name, "error", err)
			failed = append(failed, name)
			c.exec.recorder.IncReconcile(string(state), metrics.OutcomeFailed)
			continue
		}

		if err := s.Ensure(ctx, state, ensure); err != nil {
			c.logger.Warn(fmt.Sprintf("Failed to %s snap", op), "snap", name, "error", err)
			failed = append(failed, name)
			c.exec.recorder.IncReconcile(string(state), metrics.OutcomeFailed)
			continue
		}

		succeeded = append(succeeded, s)
		c.exec.recorder.IncReconcile(string(state), metrics.OutcomeSuccess)
	}

	if len(failed) > 0 {
		return nil, &Error{
			Kind:    KindAggregate,
			Message: fmt.Sprintf("failed to %s snap(s): %s", op, strings.Join(failed, ", ")),
			Failed:  failed,
		}
	}
	return succeeded, nil
}
