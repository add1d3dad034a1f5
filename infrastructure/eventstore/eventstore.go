// Package eventstore is the anchored-event persistence contract (spec §6):
// production code depends only on the Store interface, never on a concrete
// backing technology. The blob store itself (content-addressing, hot
// caching, durable persistence) stays a Non-goal; Fake is what intake and
// its tests actually exercise.
package eventstore

import (
	"context"
	"sync"
	"time"
)

// Status is an event's processing outcome, recorded alongside its payload
// so a reconciliation sweep can find every event that needs a retry.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusStored    Status = "stored" // vote/finalize: stored but never projected
)

// Event is the persisted shape of one anchored event (spec §4.8).
type Event struct {
	ContentHash       string
	Payload           string
	BlockNum          uint64
	BlockID           string
	TrxID             string
	ActionOrdinal     int
	Timestamp         time.Time
	Source            string
	ContractAccount   string
	ActionName        string
	EventHash         string
	BlockchainVerified bool
	Status            Status
	LastError         string
	ProcessedAt       time.Time
}

// Store is the event-store contract.
type Store interface {
	// PutEvent persists an event, keyed by ContentHash. Idempotent:
	// re-putting the same hash with a new Status updates it in place.
	PutEvent(ctx context.Context, e Event) error
	// GetEvent reads an event by content hash.
	GetEvent(ctx context.Context, contentHash string) (Event, bool, error)
	// MarkProcessed flips an event's status to processed.
	MarkProcessed(ctx context.Context, contentHash string, at time.Time) error
	// MarkFailed flips an event's status to failed, recording the error.
	MarkFailed(ctx context.Context, contentHash string, errMsg string) error
	// ListFailed returns every event currently marked failed, for the
	// reconciliation sweep (spec §4.10 supplement).
	ListFailed(ctx context.Context) ([]Event, error)
}

// Fake is an in-memory Store, guarded by a mutex. It is the default for
// tests and for cmd/graph-ingest when no external blob store is
// configured, mirroring the teacher's in-memory mock_repository pattern.
type Fake struct {
	mu     sync.Mutex
	events map[string]Event
}

// NewFake builds an empty event store.
func NewFake() *Fake {
	return &Fake{events: map[string]Event{}}
}

func (f *Fake) PutEvent(ctx context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ContentHash] = e
	return nil
}

func (f *Fake) GetEvent(ctx context.Context, contentHash string) (Event, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[contentHash]
	return e, ok, nil
}

func (f *Fake) MarkProcessed(ctx context.Context, contentHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[contentHash]
	if !ok {
		return nil
	}
	e.Status = StatusProcessed
	e.ProcessedAt = at
	e.LastError = ""
	f.events[contentHash] = e
	return nil
}

func (f *Fake) MarkFailed(ctx context.Context, contentHash string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[contentHash]
	if !ok {
		return nil
	}
	e.Status = StatusFailed
	e.LastError = errMsg
	f.events[contentHash] = e
	return nil
}

func (f *Fake) ListFailed(ctx context.Context) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.events {
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}
