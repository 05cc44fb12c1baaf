package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CrystalStore struct {
	db *pgxpool.Pool
}

func NewCrystalStore(db *pgxpool.Pool) *CrystalStore {
	return &CrystalStore{db: db}
}

func (s *CrystalStore) Create(ctx context.Context, c *domain.Crystal) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO crystals (id, subject_id, request_id, source_curiosity_ids, summary_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.SubjectID, c.RequestID, c.SourceCuriosityIDs, c.SummaryRef, c.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *CrystalStore) GetLatest(ctx context.Context, subjectID uuid.UUID) (*domain.Crystal, error) {
	c := &domain.Crystal{}
	err := s.db.QueryRow(ctx,
		`SELECT id, subject_id, request_id, source_curiosity_ids, summary_ref, created_at
		 FROM crystals WHERE subject_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		subjectID,
	).Scan(&c.ID, &c.SubjectID, &c.RequestID, &c.SourceCuriosityIDs, &c.SummaryRef, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
