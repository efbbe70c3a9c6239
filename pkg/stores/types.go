package stores

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

// EventRecord is a persisted telemetry event row.
type EventRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Kind      string        `json:"kind"`
	Source    string        `json:"source"`
	Type      *string       `json:"type,omitempty"`
	Variant   *string       `json:"variant,omitempty"`
	Message   string        `json:"message"`
	Level     string        `json:"level"`
	Duration  time.Duration `json:"duration,omitempty"`
	Data      *string       `json:"data,omitempty"` // JSON blob
}

// EventQuery holds optional filters and pagination for ListEvents.
// Nil filters match everything.
type EventQuery struct {
	Kind   *string
	Type   *string
	Level  *string
	Since  *time.Time
	Limit  int
	Offset int
}

// Store defines the interface for the event persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Event operations
	Record(ctx context.Context, event telemetry.Event) error
	GetEvent(ctx context.Context, id string) (*EventRecord, error)
	ListEvents(ctx context.Context, query EventQuery) ([]*EventRecord, error)
	CountByKind(ctx context.Context) (map[string]int64, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Subscriber adapts the store into an event publisher subscriber.
	Subscriber(logger zerolog.Logger) telemetry.EventSubscriber

	// Utility
	HealthCheck(ctx context.Context) error
}
