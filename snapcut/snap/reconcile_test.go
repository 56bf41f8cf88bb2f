package snap

import (
	"context"
	"testing"

	"github.com/steelcutops/snapcut/snapcut/snapd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileInstallsWithChannel(t *testing.T) {
	client := installed()
	client.On("FindSnap", "foo").Return(info("foo", "7", "stable", "strict"), nil)
	runner := newFakeRunner()
	cache := newTestCache(t, client, runner, namesLoader("foo"))

	snaps, err := cache.Reconcile(context.Background(), []string{"foo"}, Latest, ReconcileOptions{Channel: "edge"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, Latest, snaps[0].State())
	assert.Equal(t, "edge", snaps[0].Channel())
	assert.Equal(t, []string{"snap install foo --channel=edge"}, runner.commands())
}

func TestReconcilePartialFailure(t *testing.T) {
	client := installed(info("a", "1", "stable", "strict"), info("b", "2", "stable", "strict"))
	runner := newFakeRunner()
	runner.fail["remove b"] = true
	recorder := newCountingRecorder()
	cache := newTestCache(t, client, runner, WithRecorder(recorder))
	ctx := context.Background()

	snaps, err := cache.Reconcile(ctx, []string{"a", "b"}, Absent, ReconcileOptions{Channel: "edge", Classic: true})
	require.Error(t, err)
	assert.Nil(t, snaps)
	assert.ErrorIs(t, err, ErrAggregate)

	var snapErr *Error
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, []string{"b"}, snapErr.Failed)
	assert.Equal(t, "failed to remove snap(s): b", snapErr.Error())

	a, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Absent, a.State())
	assert.Equal(t, Strict, a.Confinement())

	b, err := cache.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, Latest, b.State())

	assert.Equal(t, []string{"snap remove a", "snap remove b"}, runner.commands())
	assert.Equal(t, 1, recorder.reconcile["absent/success"])
	assert.Equal(t, 1, recorder.reconcile["absent/failed"])
	assert.Equal(t, 1, recorder.actions["remove/true"])
	assert.Equal(t, 1, recorder.actions["remove/false"])
}

func TestReconcileUnknownSnap(t *testing.T) {
	client := installed(info("core", "1", "stable", "strict"))
	client.On("FindSnap", "ghost").Return(snapd.SnapInfo{}, notFound("ghost"))
	client.On("FindSnap", "hello").Return(info("hello", "29", "stable", "strict"), nil)
	runner := newFakeRunner()
	cache := newTestCache(t, client, runner)

	_, err := cache.Reconcile(context.Background(), []string{"ghost", "hello"}, Present, ReconcileOptions{})
	require.Error(t, err)

	var snapErr *Error
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, KindAggregate, snapErr.Kind)
	assert.Equal(t, []string{"ghost"}, snapErr.Failed)
	assert.Equal(t, "failed to install or refresh snap(s): ghost", snapErr.Error())
	assert.Equal(t, []string{"snap install hello"}, runner.commands())
}

func TestReconcileOrderAndNoop(t *testing.T) {
	client := installed(info("core", "1", "stable", "strict"), info("lxd", "2", "5.21/stable", "strict"))
	runner := newFakeRunner()
	cache := newTestCache(t, client, runner)

	snaps, err := cache.Reconcile(context.Background(), []string{"lxd", "core"}, Latest, ReconcileOptions{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "lxd", snaps[0].Name())
	assert.Equal(t, "core", snaps[1].Name())
	assert.Empty(t, runner.commands())
}

func TestReconcileValidation(t *testing.T) {
	client := &mockSnapd{}
	client.On("InstalledSnaps").Return([]snapd.SnapInfo{}, nil)
	runner := newFakeRunner()
	recorder := newCountingRecorder()
	cache := newTestCache(t, client, runner, WithRecorder(recorder))
	ctx := context.Background()

	_, err := cache.Reconcile(ctx, nil, Latest, ReconcileOptions{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = cache.Reconcile(ctx, []string{"hello"}, State("bogus"), ReconcileOptions{})
	assert.ErrorIs(t, err, ErrValidation)

	client.AssertNotCalled(t, "FindSnap", "hello")
	assert.Empty(t, runner.commands())
	assert.Equal(t, 1, recorder.reconcile["latest/invalid"])
}
