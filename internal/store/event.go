package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

// Append inserts one event. The (subject_id, seq) primary key makes a second
// writer for the same position fail with ErrConflict.
func (s *EventStore) Append(ctx context.Context, e *domain.CuriosityEvent) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	trigger, err := json.Marshal(e.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	var curiosity, evidence []byte
	if e.Curiosity != nil {
		if curiosity, err = json.Marshal(e.Curiosity); err != nil {
			return fmt.Errorf("marshal curiosity: %w", err)
		}
	}
	if e.Evidence != nil {
		if evidence, err = json.Marshal(e.Evidence); err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO curiosity_events (id, subject_id, seq, curiosity_id, event_type, changes, trigger, curiosity, evidence, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.SubjectID, e.Sequence, e.CuriosityID, e.Type, changes, trigger, curiosity, evidence, e.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *EventStore) ListBySubject(ctx context.Context, subjectID uuid.UUID, afterSeq int64) ([]domain.CuriosityEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, subject_id, seq, curiosity_id, event_type, changes, trigger, curiosity, evidence, occurred_at
		 FROM curiosity_events
		 WHERE subject_id = $1 AND seq > $2
		 ORDER BY seq ASC`,
		subjectID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.CuriosityEvent
	for rows.Next() {
		var e domain.CuriosityEvent
		var changes, trigger, curiosity, evidence []byte
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Sequence, &e.CuriosityID, &e.Type, &changes, &trigger, &curiosity, &evidence, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode changes seq %d: %w", e.Sequence, err)
			}
		}
		if len(trigger) > 0 {
			if err := json.Unmarshal(trigger, &e.Trigger); err != nil {
				return nil, fmt.Errorf("decode trigger seq %d: %w", e.Sequence, err)
			}
		}
		if len(curiosity) > 0 {
			e.Curiosity = &domain.Curiosity{}
			if err := json.Unmarshal(curiosity, e.Curiosity); err != nil {
				return nil, fmt.Errorf("decode curiosity seq %d: %w", e.Sequence, err)
			}
		}
		if len(evidence) > 0 {
			e.Evidence = &domain.Evidence{}
			if err := json.Unmarshal(evidence, e.Evidence); err != nil {
				return nil, fmt.Errorf("decode evidence seq %d: %w", e.Sequence, err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows: %w", err)
	}
	return events, nil
}

func (s *EventStore) LatestTimestamp(ctx context.Context, subjectID uuid.UUID) (time.Time, error) {
	var ts *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT MAX(occurred_at) FROM curiosity_events WHERE subject_id = $1`,
		subjectID,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return ts.UTC(), nil
}
