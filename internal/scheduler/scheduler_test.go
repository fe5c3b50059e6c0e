package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	storemem "datewatch/internal/store/memory"
	"datewatch/internal/tracker"
)

type fakeRunner struct {
	calls atomic.Int32
	err   atomic.Value // error
}

func (f *fakeRunner) TryRun(context.Context, string) (tracker.CycleStatus, error) {
	f.calls.Add(1)
	if err, ok := f.err.Load().(error); ok && err != nil {
		return "", err
	}
	return tracker.CycleUnchanged, nil
}

func seedStore(t *testing.T, intervalSeconds int) *storemem.EntityStore {
	t.Helper()
	store := storemem.NewEntityStore()
	_, err := store.Create(tracker.Entity{
		Identity:            "ent-1",
		SourceLocator:       "https://example.com/snippet",
		ModelCredential:     "key",
		LocaleMode:          tracker.LocaleMonthFirst,
		PollIntervalSeconds: intervalSeconds,
		Timezone:            "UTC",
	})
	require.NoError(t, err)
	return store
}

func TestStart_UnknownIdentity(t *testing.T) {
	t.Parallel()

	s := New(&fakeRunner{}, storemem.NewEntityStore(), zap.NewNop())
	require.ErrorIs(t, s.Start("ghost"), tracker.ErrNotFound)
}

func TestStart_SetsPollingFlagAndIsIdempotent(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 60)
	s := New(&fakeRunner{}, store, zap.NewNop())
	t.Cleanup(func() { s.Stop("ent-1") })

	require.NoError(t, s.Start("ent-1"))
	require.True(t, s.IsRunning("ent-1"))
	ent, err := store.Get("ent-1")
	require.NoError(t, err)
	require.True(t, ent.IsPolling)

	// second start is a no-op
	require.NoError(t, s.Start("ent-1"))
	require.True(t, s.IsRunning("ent-1"))
}

func TestStop_ClearsFlagAndIsIdempotent(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 60)
	s := New(&fakeRunner{}, store, zap.NewNop())
	require.NoError(t, s.Start("ent-1"))

	s.Stop("ent-1")
	require.False(t, s.IsRunning("ent-1"))
	ent, err := store.Get("ent-1")
	require.NoError(t, err)
	require.False(t, ent.IsPolling)

	s.Stop("ent-1")
	require.False(t, s.IsRunning("ent-1"))
}

func TestStart_TicksRunCycles(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1)
	runner := &fakeRunner{}
	s := New(runner, store, zap.NewNop())
	t.Cleanup(func() { s.Stop("ent-1") })

	require.NoError(t, s.Start("ent-1"))
	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestTimer_StopsItselfWhenEntityGone(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 1)
	runner := &fakeRunner{}
	s := New(runner, store, zap.NewNop())

	require.NoError(t, s.Start("ent-1"))
	runner.err.Store(tracker.ErrNotFound)

	require.Eventually(t, func() bool {
		return !s.IsRunning("ent-1")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRestart_KeepsPolling(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 60)
	s := New(&fakeRunner{}, store, zap.NewNop())
	t.Cleanup(func() { s.Stop("ent-1") })

	require.NoError(t, s.Start("ent-1"))
	require.NoError(t, s.Restart("ent-1"))
	require.True(t, s.IsRunning("ent-1"))
}

func TestStopAll_WaitsForLoops(t *testing.T) {
	t.Parallel()

	store := seedStore(t, 60)
	_, err := store.Create(tracker.Entity{
		Identity:            "ent-2",
		SourceLocator:       "https://example.com/other",
		ModelCredential:     "key",
		LocaleMode:          tracker.LocaleMonthFirst,
		PollIntervalSeconds: 60,
		Timezone:            "UTC",
	})
	require.NoError(t, err)

	s := New(&fakeRunner{}, store, zap.NewNop())
	require.NoError(t, s.Start("ent-1"))
	require.NoError(t, s.Start("ent-2"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.StopAll(ctx))
	require.False(t, s.IsRunning("ent-1"))
	require.False(t, s.IsRunning("ent-2"))
}
