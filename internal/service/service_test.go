package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datewatch/internal/poller"
	"datewatch/internal/scheduler"
	storemem "datewatch/internal/store/memory"
	"datewatch/internal/tracker"
)

type fakeSource struct {
	mu   sync.Mutex
	text string
	err  error
}

func (f *fakeSource) Fetch(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

type fakeExtractor struct {
	mu   sync.Mutex
	date string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, string, tracker.LocaleMode, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date, f.err
}

type fakeHasher struct{}

func (fakeHasher) Hash(string) (string, error) { return "digest", nil }

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeIDGen struct{ id string }

func (f *fakeIDGen) NewID() (string, error) { return f.id, nil }

type fixture struct {
	store     *storemem.EntityStore
	source    *fakeSource
	extractor *fakeExtractor
	scheduler *scheduler.Scheduler
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     storemem.NewEntityStore(),
		source:    &fakeSource{text: "March 6, 2008"},
		extractor: &fakeExtractor{date: "2008-03-06"},
	}
	p := poller.New(
		f.store,
		f.source,
		f.extractor,
		nil,
		nil,
		fakeHasher{},
		&fakeClock{now: time.Date(2008, 3, 7, 10, 0, 0, 0, time.UTC)},
		poller.Config{},
		zap.NewNop(),
	)
	f.scheduler = scheduler.New(p, f.store, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.scheduler.StopAll(ctx)
	})
	f.service = New(f.store, p, f.scheduler, &fakeIDGen{id: "generated-id"}, Defaults{}, zap.NewNop())
	return f
}

func validRequest() RegisterRequest {
	return RegisterRequest{
		Identity:        "ent-1",
		SourceLocator:   "https://example.com/snippet",
		ModelCredential: "key",
	}
}

func TestRegister_AppliesDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ent, err := f.service.Register(validRequest())
	require.NoError(t, err)
	require.Equal(t, "ent-1", ent.Identity)
	require.Equal(t, tracker.LocaleMonthFirst, ent.LocaleMode)
	require.Equal(t, 300, ent.PollIntervalSeconds)
	require.Equal(t, "UTC", ent.Timezone)
	require.False(t, ent.IsPolling)

	// derived fields start unset
	require.Empty(t, ent.ResolvedDate)
	require.Nil(t, ent.DayCount)
	require.Empty(t, ent.Weekday)
	require.Nil(t, ent.LastUpdatedAt)
}

func TestRegister_GeneratesIdentityWhenOmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := validRequest()
	req.Identity = ""
	ent, err := f.service.Register(req)
	require.NoError(t, err)
	require.Equal(t, "generated-id", ent.Identity)
}

func TestRegister_AutoStartBeginsPolling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := validRequest()
	req.AutoStart = true
	ent, err := f.service.Register(req)
	require.NoError(t, err)
	require.True(t, ent.IsPolling)
	require.True(t, f.scheduler.IsRunning("ent-1"))
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{"missing locator", func(r *RegisterRequest) { r.SourceLocator = "" }},
		{"relative locator", func(r *RegisterRequest) { r.SourceLocator = "/just/a/path" }},
		{"bad scheme", func(r *RegisterRequest) { r.SourceLocator = "ftp://example.com/x" }},
		{"missing credential", func(r *RegisterRequest) { r.ModelCredential = "" }},
		{"bad locale", func(r *RegisterRequest) { r.LocaleMode = "year_first" }},
		{"negative interval", func(r *RegisterRequest) { r.PollIntervalSeconds = -5 }},
		{"bad timezone", func(r *RegisterRequest) { r.Timezone = "Mars/Olympus" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := f.service.Register(req)
			require.True(t, tracker.IsConfigError(err), "got %v", err)
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Register(validRequest())
	require.NoError(t, err)
	_, err = f.service.Register(validRequest())
	require.ErrorIs(t, err, tracker.ErrConflict)
}

func TestRefresh_RunsOneCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Register(validRequest())
	require.NoError(t, err)

	ent, status, err := f.service.Refresh(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Equal(t, tracker.CycleUpdated, status)
	require.Equal(t, "2008-03-06", ent.ResolvedDate)
	require.NotNil(t, ent.DayCount)
	require.Equal(t, 1, *ent.DayCount)
	require.Equal(t, "Thursday", ent.Weekday)

	_, _, err = f.service.Refresh(context.Background(), "ghost")
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestStats_NeverFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, tracker.Stats{DayCount: "0", Weekday: ""}, f.service.Stats("ghost"))

	_, err := f.service.Register(validRequest())
	require.NoError(t, err)
	// registered but never resolved
	require.Equal(t, tracker.Stats{DayCount: "0", Weekday: ""}, f.service.Stats("ent-1"))

	_, _, err = f.service.Refresh(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Equal(t, tracker.Stats{DayCount: "1", Weekday: "Thursday"}, f.service.Stats("ent-1"))
}

func TestDelete_StopsPollingAndRemoves(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := validRequest()
	req.AutoStart = true
	_, err := f.service.Register(req)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete("ent-1"))
	require.False(t, f.scheduler.IsRunning("ent-1"))
	_, err = f.service.Get("ent-1")
	require.ErrorIs(t, err, tracker.ErrNotFound)

	require.ErrorIs(t, f.service.Delete("ent-1"), tracker.ErrNotFound)
}

func TestUpdateConfig_AppliesPatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Register(validRequest())
	require.NoError(t, err)

	mode := tracker.LocaleDayFirst
	tz := "America/New_York"
	ent, err := f.service.UpdateConfig("ent-1", tracker.ConfigPatch{
		LocaleMode: &mode,
		Timezone:   &tz,
	})
	require.NoError(t, err)
	require.Equal(t, tracker.LocaleDayFirst, ent.LocaleMode)
	require.Equal(t, "America/New_York", ent.Timezone)
	// untouched fields survive
	require.Equal(t, 300, ent.PollIntervalSeconds)
}

func TestUpdateConfig_RejectsInvalidPatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Register(validRequest())
	require.NoError(t, err)

	badInterval := 0
	_, err = f.service.UpdateConfig("ent-1", tracker.ConfigPatch{PollIntervalSeconds: &badInterval})
	require.True(t, tracker.IsConfigError(err))

	badTZ := "Nowhere/Land"
	_, err = f.service.UpdateConfig("ent-1", tracker.ConfigPatch{Timezone: &badTZ})
	require.True(t, tracker.IsConfigError(err))
}

func TestUpdateConfig_IntervalChangeRestartsTimer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := validRequest()
	req.AutoStart = true
	_, err := f.service.Register(req)
	require.NoError(t, err)

	interval := 600
	ent, err := f.service.UpdateConfig("ent-1", tracker.ConfigPatch{PollIntervalSeconds: &interval})
	require.NoError(t, err)
	require.Equal(t, 600, ent.PollIntervalSeconds)
	require.True(t, f.scheduler.IsRunning("ent-1"))
	require.True(t, ent.IsPolling)
}

func TestStartStopPolling(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Register(validRequest())
	require.NoError(t, err)

	ent, err := f.service.StartPolling("ent-1")
	require.NoError(t, err)
	require.True(t, ent.IsPolling)

	ent, err = f.service.StopPolling("ent-1")
	require.NoError(t, err)
	require.False(t, ent.IsPolling)

	_, err = f.service.StartPolling("ghost")
	require.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = f.service.StopPolling("ghost")
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestList_ReturnsAllEntities(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := validRequest()
	_, err := f.service.Register(req)
	require.NoError(t, err)
	req.Identity = "ent-2"
	_, err = f.service.Register(req)
	require.NoError(t, err)

	list := f.service.List()
	require.Len(t, list, 2)
	require.Equal(t, "ent-1", list[0].Identity)
	require.Equal(t, "ent-2", list[1].Identity)
}
