package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubjectStore struct {
	db *pgxpool.Pool
}

func NewSubjectStore(db *pgxpool.Pool) *SubjectStore {
	return &SubjectStore{db: db}
}

func (s *SubjectStore) Create(ctx context.Context, sub *domain.Subject) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO subjects (external_id) VALUES ($1)
		 RETURNING id, created_at`,
		sub.ExternalID,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *SubjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error) {
	sub := &domain.Subject{}
	err := s.db.QueryRow(ctx,
		`SELECT id, external_id, created_at, archived_at FROM subjects WHERE id = $1`,
		id,
	).Scan(&sub.ID, &sub.ExternalID, &sub.CreatedAt, &sub.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubjectStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Subject, error) {
	sub := &domain.Subject{}
	err := s.db.QueryRow(ctx,
		`SELECT id, external_id, created_at, archived_at FROM subjects WHERE external_id = $1`,
		externalID,
	).Scan(&sub.ID, &sub.ExternalID, &sub.CreatedAt, &sub.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubjectStore) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subjects SET archived_at = NOW() WHERE id = $1 AND archived_at IS NULL`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubjectStore) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM subjects WHERE archived_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
