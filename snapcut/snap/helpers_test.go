package snap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/steelcutops/snapcut/logger"
	"github.com/steelcutops/snapcut/snapcut/commandmanager"
	"github.com/steelcutops/snapcut/snapcut/metrics"
	"github.com/steelcutops/snapcut/snapcut/snapd"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeRunner records snap invocations. Commands listed in fail exit 1, keyed
// by "<action> <name>".
type fakeRunner struct {
	mu     sync.Mutex
	calls  []commandmanager.CommandConfig
	fail   map[string]bool
	stdout map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: map[string]bool{}, stdout: map[string]string{}}
}

func (f *fakeRunner) Run(_ context.Context, config commandmanager.CommandConfig) (commandmanager.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, config)

	key := strings.Join(config.Args[:2], " ")
	argv := append([]string{config.Command}, config.Args...)
	if f.fail[key] {
		return commandmanager.CommandResult{
			Command:  strings.Join(argv, " "),
			STDERR:   "error: cannot " + key,
			ExitCode: 1,
		}, fmt.Errorf("%s: exit status 1", strings.Join(argv, " "))
	}
	return commandmanager.CommandResult{
		Command: strings.Join(argv, " "),
		STDOUT:  f.stdout[key],
	}, nil
}

// commands returns every invocation as a space separated argv.
func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, strings.Join(append([]string{c.Command}, c.Args...), " "))
	}
	return out
}

type mockSnapd struct {
	mock.Mock
}

func (m *mockSnapd) InstalledSnaps(ctx context.Context) ([]snapd.SnapInfo, error) {
	args := m.Called()
	snaps, _ := args.Get(0).([]snapd.SnapInfo)
	return snaps, args.Error(1)
}

func (m *mockSnapd) FindSnap(ctx context.Context, name string) (snapd.SnapInfo, error) {
	args := m.Called(name)
	info, _ := args.Get(0).(snapd.SnapInfo)
	return info, args.Error(1)
}

func notFound(name string) error {
	return &snapd.APIError{
		Body:    map[string]any{},
		Code:    404,
		Status:  "Not Found",
		Message: fmt.Sprintf("no snap named %q", name),
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	actions   map[string]int
	reconcile map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{actions: map[string]int{}, reconcile: map[string]int{}}
}

func (r *countingRecorder) ObserveAction(action string, _ time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[fmt.Sprintf("%s/%t", action, success)]++
}

func (r *countingRecorder) IncReconcile(state string, outcome metrics.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconcile[state+"/"+string(outcome)]++
}

func (r *countingRecorder) ObserveDaemonRequest(string, time.Duration, int) {}

func namesLoader(names ...string) CacheOption {
	return WithNamesLoader(func(context.Context) ([]byte, error) {
		return []byte(strings.Join(names, "\n") + "\n"), nil
	})
}

func testOptions(client SnapdClient, runner CommandRunner, extra ...CacheOption) []CacheOption {
	options := []CacheOption{
		WithClient(client),
		WithRunner(runner),
		WithLogger(logger.Discard()),
		WithBinaryCheck(func(context.Context) (bool, error) { return true, nil }),
		namesLoader(),
	}
	return append(options, extra...)
}

func newTestCache(t *testing.T, client SnapdClient, runner CommandRunner, extra ...CacheOption) *Cache {
	t.Helper()
	cache, err := NewCache(context.Background(), testOptions(client, runner, extra...)...)
	require.NoError(t, err)
	return cache
}

var errBoom = errors.New("boom")

func info(name, revision, channel, confinement string) snapd.SnapInfo {
	return snapd.SnapInfo{
		Name:        name,
		Channel:     channel,
		Revision:    snapd.Revision(revision),
		Confinement: confinement,
	}
}

// installed returns a snapd mock reporting snaps as installed.
func installed(snaps ...snapd.SnapInfo) *mockSnapd {
	m := &mockSnapd{}
	m.On("InstalledSnaps").Return(snaps, nil)
	return m
}
