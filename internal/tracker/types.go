// Package tracker defines core types shared across subsystems.
package tracker

import "time"

// LocaleMode controls how ambiguous numeric dates are interpreted.
type LocaleMode string

// Locale modes accepted at registration and config update.
const (
	LocaleMonthFirst LocaleMode = "month_first"
	LocaleDayFirst   LocaleMode = "day_first"
)

// Valid reports whether the mode is a known value.
func (m LocaleMode) Valid() bool {
	return m == LocaleMonthFirst || m == LocaleDayFirst
}

// Entity is one tracked subject: its configuration plus the last
// committed results. The credential is never serialized.
type Entity struct {
	Identity            string     `json:"identity"`
	SourceLocator       string     `json:"source_locator"`
	ModelCredential     string     `json:"-"`
	LocaleMode          LocaleMode `json:"locale_mode"`
	PollIntervalSeconds int        `json:"poll_interval_seconds"`
	Timezone            string     `json:"timezone"`
	IsPolling           bool       `json:"is_polling"`
	LastObservedText    string     `json:"last_observed_text,omitempty"`
	LastProcessedText   string     `json:"last_processed_text,omitempty"`
	ResolvedDate        string     `json:"resolved_date,omitempty"`
	DayCount            *int       `json:"day_count,omitempty"`
	Weekday             string     `json:"weekday,omitempty"`
	LastUpdatedAt       *time.Time `json:"last_updated_at,omitempty"`
}

// PollInterval returns the configured interval as a duration.
func (e Entity) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

// ConfigPatch is a partial configuration update. Nil fields are left
// untouched.
type ConfigPatch struct {
	SourceLocator       *string     `json:"source_locator"`
	ModelCredential     *string     `json:"model_credential"`
	LocaleMode          *LocaleMode `json:"locale_mode"`
	PollIntervalSeconds *int        `json:"poll_interval_seconds"`
	Timezone            *string     `json:"timezone"`
}

// Commit carries everything a successful cycle writes in one step.
type Commit struct {
	ProcessedText string
	ResolvedDate  string
	DayCount      int
	Weekday       string
	At            time.Time
}

// CycleStatus describes how one poll cycle ended.
type CycleStatus string

// Cycle outcomes recorded in logs and metrics.
const (
	CycleUpdated       CycleStatus = "updated"
	CycleUnchanged     CycleStatus = "unchanged"
	CycleNoDate        CycleStatus = "no_date"
	CycleSkipped       CycleStatus = "skipped"
	CycleFetchFailed   CycleStatus = "fetch_failed"
	CycleExtractFailed CycleStatus = "extract_failed"
	CycleComputeFailed CycleStatus = "compute_failed"
)

// Stats is the automation-facing view of an entity. Both fields are
// strings and the shape is always well formed, even for unknown or
// never-resolved entities.
type Stats struct {
	DayCount string `json:"day_count"`
	Weekday  string `json:"weekday"`
}

// ChangeEvent is published after each successful commit.
type ChangeEvent struct {
	Identity     string `json:"identity"`
	ResolvedDate string `json:"resolved_date"`
	DayCount     int    `json:"day_count"`
	Weekday      string `json:"weekday"`
	Timestamp    string `json:"timestamp"`
}
