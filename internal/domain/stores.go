package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventStore is the append-only log, partitioned by subject and ordered by
// sequence. Appending an already-used (subject, sequence) pair fails.
type EventStore interface {
	Append(ctx context.Context, e *CuriosityEvent) error
	ListBySubject(ctx context.Context, subjectID uuid.UUID, afterSeq int64) ([]CuriosityEvent, error)
	LatestTimestamp(ctx context.Context, subjectID uuid.UUID) (time.Time, error)
}

// SnapshotStore holds the materialized curiosity rows. It is a cache of the
// fold and can always be rebuilt from the EventStore.
type SnapshotStore interface {
	Upsert(ctx context.Context, c *Curiosity) error
	GetBySubject(ctx context.Context, subjectID uuid.UUID) ([]Curiosity, error)
}

type CrystalStore interface {
	Create(ctx context.Context, c *Crystal) error
	GetLatest(ctx context.Context, subjectID uuid.UUID) (*Crystal, error)
}

type SubjectStore interface {
	Create(ctx context.Context, s *Subject) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subject, error)
	GetByExternalID(ctx context.Context, externalID string) (*Subject, error)
	Archive(ctx context.Context, id uuid.UUID) error
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Notifier receives outbound notifications after a turn commits.
type Notifier interface {
	Notify(ctx context.Context, notes []Notification) error
}
