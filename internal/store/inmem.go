package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
)

// In-memory implementations back tests and DATABASE_URL-less runs. Each
// subject's event partition has its own lock so writers to different
// subjects never contend.

type eventPartition struct {
	mu     sync.RWMutex
	events []domain.CuriosityEvent
}

type MemoryEventStore struct {
	mu         sync.RWMutex
	partitions map[uuid.UUID]*eventPartition
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{partitions: make(map[uuid.UUID]*eventPartition)}
}

func (s *MemoryEventStore) partition(subjectID uuid.UUID, create bool) *eventPartition {
	s.mu.RLock()
	p, ok := s.partitions[subjectID]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.partitions[subjectID]; ok {
		return p
	}
	p = &eventPartition{}
	s.partitions[subjectID] = p
	return p
}

func (s *MemoryEventStore) Append(ctx context.Context, e *domain.CuriosityEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.partition(e.SubjectID, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.events); n > 0 && p.events[n-1].Sequence >= e.Sequence {
		return ErrConflict
	}
	p.events = append(p.events, *e)
	return nil
}

func (s *MemoryEventStore) ListBySubject(ctx context.Context, subjectID uuid.UUID, afterSeq int64) ([]domain.CuriosityEvent, error) {
	p := s.partition(subjectID, false)
	if p == nil {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Sequence > afterSeq })
	return append([]domain.CuriosityEvent(nil), p.events[i:]...), nil
}

func (s *MemoryEventStore) LatestTimestamp(ctx context.Context, subjectID uuid.UUID) (time.Time, error) {
	p := s.partition(subjectID, false)
	if p == nil {
		return time.Time{}, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var latest time.Time
	for _, e := range p.events {
		if e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
	}
	return latest, nil
}

type MemorySnapshotStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]map[uuid.UUID]domain.Curiosity
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{rows: make(map[uuid.UUID]map[uuid.UUID]domain.Curiosity)}
}

func (s *MemorySnapshotStore) Upsert(ctx context.Context, c *domain.Curiosity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySubject, ok := s.rows[c.SubjectID]
	if !ok {
		bySubject = make(map[uuid.UUID]domain.Curiosity)
		s.rows[c.SubjectID] = bySubject
	}
	bySubject[c.ID] = *c.Clone()
	return nil
}

func (s *MemorySnapshotStore) GetBySubject(ctx context.Context, subjectID uuid.UUID) ([]domain.Curiosity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Curiosity, 0, len(s.rows[subjectID]))
	for _, c := range s.rows[subjectID] {
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pull != out[j].Pull {
			return out[i].Pull > out[j].Pull
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

type MemoryCrystalStore struct {
	mu       sync.RWMutex
	crystals map[uuid.UUID][]domain.Crystal
}

func NewMemoryCrystalStore() *MemoryCrystalStore {
	return &MemoryCrystalStore{crystals: make(map[uuid.UUID][]domain.Crystal)}
}

func (s *MemoryCrystalStore) Create(ctx context.Context, c *domain.Crystal) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.crystals[c.SubjectID] {
		if existing.ID == c.ID {
			return ErrConflict
		}
	}
	s.crystals[c.SubjectID] = append(s.crystals[c.SubjectID], *c)
	return nil
}

func (s *MemoryCrystalStore) GetLatest(ctx context.Context, subjectID uuid.UUID) (*domain.Crystal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.crystals[subjectID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	latest := list[0]
	for _, c := range list[1:] {
		if !c.CreatedAt.Before(latest.CreatedAt) {
			latest = c
		}
	}
	return &latest, nil
}

type MemorySubjectStore struct {
	mu       sync.RWMutex
	subjects map[uuid.UUID]*domain.Subject
	now      func() time.Time
}

func NewMemorySubjectStore() *MemorySubjectStore {
	return &MemorySubjectStore{
		subjects: make(map[uuid.UUID]*domain.Subject),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySubjectStore) Create(ctx context.Context, sub *domain.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subjects {
		if existing.ExternalID == sub.ExternalID {
			return ErrConflict
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = s.now()
	cp := *sub
	s.subjects[sub.ID] = &cp
	return nil
}

func (s *MemorySubjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemorySubjectStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subjects {
		if sub.ExternalID == externalID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemorySubjectStore) Archive(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok || sub.ArchivedAt != nil {
		return ErrNotFound
	}
	now := s.now()
	sub.ArchivedAt = &now
	return nil
}

func (s *MemorySubjectStore) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for id, sub := range s.subjects {
		if sub.ArchivedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
