package tracker

import (
	"context"
	"time"
)

// EntityStore holds all tracked entities and serializes access to each
// one. Implementations must return entities by value so readers never
// observe a half-written record.
type EntityStore interface {
	Create(entity Entity) (Entity, error)
	Get(identity string) (Entity, error)
	List() []Entity
	Delete(identity string) error
	ApplyConfig(identity string, patch ConfigPatch) (Entity, error)
	RecordObserved(identity string, text string) error
	ApplyCommit(identity string, commit Commit) (Entity, error)
	SetPolling(identity string, polling bool) error

	// LockCycle blocks until the entity's cycle lock is held. TryLockCycle
	// returns ok=false instead of waiting when a cycle is in flight.
	LockCycle(identity string) (unlock func(), err error)
	TryLockCycle(identity string) (unlock func(), ok bool, err error)
}

// SnippetSource fetches the current text snippet for a locator.
type SnippetSource interface {
	Fetch(ctx context.Context, locator string) (string, error)
}

// DateExtractor resolves free text into an ISO date via the language
// model oracle. Returns ErrNoDate when the oracle reports no date.
type DateExtractor interface {
	Extract(ctx context.Context, text string, mode LocaleMode, credential string) (string, error)
}

// Publisher pushes change events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SnapshotStore archives processed snippets and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests used for snapshot paths.
type Hasher interface {
	Hash(text string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity identities when a caller omits one.
type IDGenerator interface {
	NewID() (string, error)
}
