// Package service implements the tracker operation set consumed by the
// HTTP layer: registration, configuration, refresh, and reads.
package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"datewatch/internal/poller"
	"datewatch/internal/scheduler"
	"datewatch/internal/tracker"
)

// Defaults applied when a registration leaves optional fields empty.
type Defaults struct {
	PollIntervalSeconds int
	Timezone            string
	LocaleMode          tracker.LocaleMode
}

// Service owns entity lifecycle and delegates cycles to the poller and
// timers to the scheduler.
type Service struct {
	store     tracker.EntityStore
	poller    *poller.Poller
	scheduler *scheduler.Scheduler
	idGen     tracker.IDGenerator
	defaults  Defaults
	logger    *zap.Logger
}

// New constructs a Service.
func New(
	store tracker.EntityStore,
	p *poller.Poller,
	sched *scheduler.Scheduler,
	idGen tracker.IDGenerator,
	defaults Defaults,
	logger *zap.Logger,
) *Service {
	if defaults.PollIntervalSeconds <= 0 {
		defaults.PollIntervalSeconds = 300
	}
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.LocaleMode == "" {
		defaults.LocaleMode = tracker.LocaleMonthFirst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		poller:    p,
		scheduler: sched,
		idGen:     idGen,
		defaults:  defaults,
		logger:    logger,
	}
}

// RegisterRequest carries everything needed to track a new entity.
type RegisterRequest struct {
	Identity            string             `json:"identity"`
	SourceLocator       string             `json:"source_locator"`
	ModelCredential     string             `json:"model_credential"`
	LocaleMode          tracker.LocaleMode `json:"locale_mode"`
	PollIntervalSeconds int                `json:"poll_interval_seconds"`
	Timezone            string             `json:"timezone"`
	AutoStart           bool               `json:"auto_start"`
}

// Register creates a new entity with all derived fields unset. An
// omitted identity is assigned from the ID generator.
func (s *Service) Register(req RegisterRequest) (tracker.Entity, error) {
	if req.Identity == "" && s.idGen != nil {
		id, err := s.idGen.NewID()
		if err != nil {
			return tracker.Entity{}, fmt.Errorf("generate identity: %w", err)
		}
		req.Identity = id
	}
	if req.LocaleMode == "" {
		req.LocaleMode = s.defaults.LocaleMode
	}
	if req.PollIntervalSeconds == 0 {
		req.PollIntervalSeconds = s.defaults.PollIntervalSeconds
	}
	if req.Timezone == "" {
		req.Timezone = s.defaults.Timezone
	}
	if err := validateRegister(req); err != nil {
		return tracker.Entity{}, err
	}

	ent, err := s.store.Create(tracker.Entity{
		Identity:            req.Identity,
		SourceLocator:       req.SourceLocator,
		ModelCredential:     req.ModelCredential,
		LocaleMode:          req.LocaleMode,
		PollIntervalSeconds: req.PollIntervalSeconds,
		Timezone:            req.Timezone,
	})
	if err != nil {
		return tracker.Entity{}, err
	}
	s.logger.Info("entity registered",
		zap.String("identity", ent.Identity),
		zap.String("locale_mode", string(ent.LocaleMode)),
		zap.Int("poll_interval_seconds", ent.PollIntervalSeconds),
	)

	if req.AutoStart {
		if err := s.scheduler.Start(ent.Identity); err != nil {
			return tracker.Entity{}, fmt.Errorf("start polling: %w", err)
		}
	}
	return s.store.Get(ent.Identity)
}

// Delete stops the entity's timer and removes it.
func (s *Service) Delete(identity string) error {
	if _, err := s.store.Get(identity); err != nil {
		return err
	}
	s.scheduler.Stop(identity)
	if err := s.store.Delete(identity); err != nil {
		return err
	}
	s.logger.Info("entity deleted", zap.String("identity", identity))
	return nil
}

// UpdateConfig applies a partial configuration update. The update is
// serialized against any in-flight cycle, and an interval change
// restarts an active timer without losing other state.
func (s *Service) UpdateConfig(identity string, patch tracker.ConfigPatch) (tracker.Entity, error) {
	if err := validatePatch(patch); err != nil {
		return tracker.Entity{}, err
	}
	unlock, err := s.store.LockCycle(identity)
	if err != nil {
		return tracker.Entity{}, err
	}

	before, err := s.store.Get(identity)
	if err != nil {
		unlock()
		return tracker.Entity{}, err
	}
	_, err = s.store.ApplyConfig(identity, patch)
	unlock()
	if err != nil {
		return tracker.Entity{}, err
	}
	s.logger.Info("entity config updated", zap.String("identity", identity))

	intervalChanged := patch.PollIntervalSeconds != nil &&
		*patch.PollIntervalSeconds != before.PollIntervalSeconds
	if intervalChanged && s.scheduler.IsRunning(identity) {
		if err := s.scheduler.Restart(identity); err != nil {
			return tracker.Entity{}, fmt.Errorf("restart polling: %w", err)
		}
	}
	return s.store.Get(identity)
}

// Refresh runs exactly one cycle synchronously and returns the
// resulting snapshot. Ordinary cycle failures do not surface as
// errors; the caller gets the unchanged entity.
func (s *Service) Refresh(ctx context.Context, identity string) (tracker.Entity, tracker.CycleStatus, error) {
	status, err := s.poller.Run(ctx, identity)
	if err != nil {
		return tracker.Entity{}, "", err
	}
	ent, err := s.store.Get(identity)
	if err != nil {
		return tracker.Entity{}, "", err
	}
	return ent, status, nil
}

// Get returns one entity snapshot.
func (s *Service) Get(identity string) (tracker.Entity, error) {
	return s.store.Get(identity)
}

// List returns all entity snapshots.
func (s *Service) List() []tracker.Entity {
	return s.store.List()
}

// Stats returns the automation-facing two-field view. It never fails:
// unknown or never-resolved entities yield {"0", ""}.
func (s *Service) Stats(identity string) tracker.Stats {
	ent, err := s.store.Get(identity)
	if err != nil || ent.DayCount == nil {
		return tracker.Stats{DayCount: "0", Weekday: ""}
	}
	return tracker.Stats{
		DayCount: strconv.Itoa(*ent.DayCount),
		Weekday:  ent.Weekday,
	}
}

// StartPolling begins the entity's repeating timer.
func (s *Service) StartPolling(identity string) (tracker.Entity, error) {
	if err := s.scheduler.Start(identity); err != nil {
		return tracker.Entity{}, err
	}
	return s.store.Get(identity)
}

// StopPolling cancels the entity's repeating timer.
func (s *Service) StopPolling(identity string) (tracker.Entity, error) {
	if _, err := s.store.Get(identity); err != nil {
		return tracker.Entity{}, err
	}
	s.scheduler.Stop(identity)
	return s.store.Get(identity)
}

func validateRegister(req RegisterRequest) error {
	if req.Identity == "" {
		return tracker.NewConfigError("identity", "required")
	}
	if err := validateLocator(req.SourceLocator); err != nil {
		return err
	}
	if req.ModelCredential == "" {
		return tracker.NewConfigError("model_credential", "required")
	}
	if !req.LocaleMode.Valid() {
		return tracker.NewConfigError("locale_mode", "must be month_first or day_first")
	}
	if req.PollIntervalSeconds <= 0 {
		return tracker.NewConfigError("poll_interval_seconds", "must be positive")
	}
	return validateTimezone(req.Timezone)
}

func validatePatch(patch tracker.ConfigPatch) error {
	if patch.SourceLocator != nil {
		if err := validateLocator(*patch.SourceLocator); err != nil {
			return err
		}
	}
	if patch.ModelCredential != nil && *patch.ModelCredential == "" {
		return tracker.NewConfigError("model_credential", "must not be empty")
	}
	if patch.LocaleMode != nil && !patch.LocaleMode.Valid() {
		return tracker.NewConfigError("locale_mode", "must be month_first or day_first")
	}
	if patch.PollIntervalSeconds != nil && *patch.PollIntervalSeconds <= 0 {
		return tracker.NewConfigError("poll_interval_seconds", "must be positive")
	}
	if patch.Timezone != nil {
		return validateTimezone(*patch.Timezone)
	}
	return nil
}

func validateLocator(locator string) error {
	if locator == "" {
		return tracker.NewConfigError("source_locator", "required")
	}
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return tracker.NewConfigError("source_locator", "must be an http(s) URL")
	}
	return nil
}

func validateTimezone(name string) error {
	if _, err := time.LoadLocation(name); err != nil {
		return tracker.NewConfigError("timezone", "unknown IANA zone")
	}
	return nil
}
