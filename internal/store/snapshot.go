package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore keeps the latest folded state of each curiosity, keyed by
// (subject_id, curiosity_id). The typed columns back dashboard queries; the
// body column holds the full record.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Upsert(ctx context.Context, c *domain.Curiosity) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal curiosity: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO curiosity_snapshots (subject_id, curiosity_id, kind, status, pull, fullness, confidence, body, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (subject_id, curiosity_id) DO UPDATE
		 SET kind = EXCLUDED.kind, status = EXCLUDED.status, pull = EXCLUDED.pull,
		     fullness = EXCLUDED.fullness, confidence = EXCLUDED.confidence,
		     body = EXCLUDED.body, updated_at = NOW()`,
		c.SubjectID, c.ID, c.Kind, c.Status, c.Pull, c.Fullness, c.Confidence, body,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) GetBySubject(ctx context.Context, subjectID uuid.UUID) ([]domain.Curiosity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT body FROM curiosity_snapshots WHERE subject_id = $1 ORDER BY pull DESC, curiosity_id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Curiosity
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var c domain.Curiosity
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
