// Package poller executes the fetch, detect, extract, compute, commit
// pipeline for one entity at a time.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"datewatch/internal/calendar"
	"datewatch/internal/telemetry"
	"datewatch/internal/tracker"
)

// Config controls Poller behavior.
type Config struct {
	FetchTimeout   time.Duration
	EventTopic     string
	SnapshotPrefix string
	ContentType    string
}

// Poller runs poll cycles against the entity store.
type Poller struct {
	store     tracker.EntityStore
	source    tracker.SnippetSource
	extractor tracker.DateExtractor
	publisher tracker.Publisher
	snapshots tracker.SnapshotStore
	hasher    tracker.Hasher
	clock     tracker.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Poller.
func New(
	store tracker.EntityStore,
	source tracker.SnippetSource,
	extractor tracker.DateExtractor,
	publisher tracker.Publisher,
	snapshots tracker.SnapshotStore,
	hasher tracker.Hasher,
	clock tracker.Clock,
	cfg Config,
	logger *zap.Logger,
) *Poller {
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/plain; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		store:     store,
		source:    source,
		extractor: extractor,
		publisher: publisher,
		snapshots: snapshots,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one cycle, waiting for any in-flight cycle or config
// update on the same entity to finish first. Cycle failures end the
// cycle, never the caller: the error return is non-nil only for an
// unknown identity.
func (p *Poller) Run(ctx context.Context, identity string) (tracker.CycleStatus, error) {
	unlock, err := p.store.LockCycle(identity)
	if err != nil {
		return "", err
	}
	defer unlock()
	return p.cycle(ctx, identity)
}

// TryRun executes one cycle unless one is already in flight for the
// entity, in which case the tick is skipped.
func (p *Poller) TryRun(ctx context.Context, identity string) (tracker.CycleStatus, error) {
	unlock, ok, err := p.store.TryLockCycle(identity)
	if err != nil {
		return "", err
	}
	if !ok {
		p.logger.Debug("cycle already in flight, skipping tick", zap.String("identity", identity))
		telemetry.ObserveCycle(string(tracker.CycleSkipped))
		return tracker.CycleSkipped, nil
	}
	defer unlock()
	return p.cycle(ctx, identity)
}

func (p *Poller) cycle(ctx context.Context, identity string) (tracker.CycleStatus, error) {
	ent, err := p.store.Get(identity)
	if err != nil {
		return "", err
	}

	text, err := p.fetch(ctx, ent.SourceLocator)
	if err != nil {
		p.logger.Warn("snippet fetch failed",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return p.finish(tracker.CycleFetchFailed), nil
	}
	if err := p.store.RecordObserved(identity, text); err != nil {
		return "", err
	}

	if text == ent.LastProcessedText {
		p.logger.Debug("snippet unchanged", zap.String("identity", identity))
		return p.finish(tracker.CycleUnchanged), nil
	}

	isoDate, err := p.extractor.Extract(ctx, text, ent.LocaleMode, ent.ModelCredential)
	if errors.Is(err, tracker.ErrNoDate) {
		telemetry.ObserveOracleCall("no_date")
		p.logger.Info("oracle found no date", zap.String("identity", identity))
		return p.finish(tracker.CycleNoDate), nil
	}
	if err != nil {
		telemetry.ObserveOracleCall("failure")
		p.logger.Warn("date extraction failed",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return p.finish(tracker.CycleExtractFailed), nil
	}
	telemetry.ObserveOracleCall("success")

	loc, err := time.LoadLocation(ent.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := p.clock.Now()
	dayCount, err := calendar.DayCount(isoDate, loc, now)
	if err != nil {
		p.logger.Warn("day count computation failed",
			zap.String("identity", identity),
			zap.String("date", isoDate),
			zap.Error(err),
		)
		return p.finish(tracker.CycleComputeFailed), nil
	}
	weekday, err := calendar.Weekday(isoDate)
	if err != nil {
		return p.finish(tracker.CycleComputeFailed), nil
	}

	committed, err := p.store.ApplyCommit(identity, tracker.Commit{
		ProcessedText: text,
		ResolvedDate:  isoDate,
		DayCount:      dayCount,
		Weekday:       weekday,
		At:            now,
	})
	if err != nil {
		return "", err
	}

	p.archiveSnapshot(ctx, identity, text)
	p.publishChange(ctx, committed)

	p.logger.Info("entity updated",
		zap.String("identity", identity),
		zap.String("resolved_date", committed.ResolvedDate),
		zap.Int("day_count", dayCount),
		zap.String("weekday", weekday),
	)
	return p.finish(tracker.CycleUpdated), nil
}

func (p *Poller) fetch(ctx context.Context, locator string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	text, err := p.source.Fetch(fetchCtx, locator)
	telemetry.ObserveFetchDuration(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("fetch snippet: %w", err)
	}
	return text, nil
}

// archiveSnapshot and publishChange run after the commit; their
// failures are logged and never unwind the committed state.
func (p *Poller) archiveSnapshot(ctx context.Context, identity, text string) {
	if p.snapshots == nil {
		return
	}
	hash, err := p.hasher.Hash(text)
	if err != nil {
		p.logger.Warn("snapshot hash failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s.txt", identity, hash)
	if prefix := p.cfg.SnapshotPrefix; prefix != "" {
		path = fmt.Sprintf("%s/%s", prefix, path)
	}
	uri, err := p.snapshots.PutObject(ctx, path, p.cfg.ContentType, []byte(text))
	if err != nil {
		p.logger.Warn("snapshot archive failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	p.logger.Debug("snapshot archived", zap.String("identity", identity), zap.String("uri", uri))
}

func (p *Poller) publishChange(ctx context.Context, ent tracker.Entity) {
	if p.publisher == nil || p.cfg.EventTopic == "" {
		return
	}
	dayCount := 0
	if ent.DayCount != nil {
		dayCount = *ent.DayCount
	}
	event := tracker.ChangeEvent{
		Identity:     ent.Identity,
		ResolvedDate: ent.ResolvedDate,
		DayCount:     dayCount,
		Weekday:      ent.Weekday,
		Timestamp:    p.clock.Now().Format(time.RFC3339),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.EventTopic, event); err != nil {
		p.logger.Warn("change event publish failed", zap.String("identity", ent.Identity), zap.Error(err))
	}
}

func (p *Poller) finish(status tracker.CycleStatus) tracker.CycleStatus {
	telemetry.ObserveCycle(string(status))
	return status
}
