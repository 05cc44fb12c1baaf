package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDecayInterval = 24 * time.Hour
	defaultDecayWorkers  = 4

	DefaultDecayRate = 0.01
	// DecayEpsilon is the smallest pull change worth an event.
	DecayEpsilon = 0.001
)

// EffectivePull is the pull a curiosity has at now given linear daily decay
// from its anchor. It is computed on read and never stored.
func EffectivePull(c *domain.Curiosity, rate float64, now time.Time) float64 {
	days := now.Sub(c.PullAnchor()).Hours() / 24
	if days <= 0 {
		return c.Pull
	}
	return math.Max(0, c.Pull-rate*days)
}

type DecayResult struct {
	SubjectsScanned    int `json:"subjects_scanned"`
	SubjectsSkipped    int `json:"subjects_skipped"`
	CuriositiesDecayed int `json:"curiosities_decayed"`
}

type DecayService struct {
	subjects domain.SubjectStore
	repo     *CuriosityRepository
	turns    *TurnCoordinator
	logger   *zap.Logger

	rate     float64
	workers  int
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDecayService(subjects domain.SubjectStore, repo *CuriosityRepository, turns *TurnCoordinator, rate float64, logger *zap.Logger) *DecayService {
	if rate <= 0 {
		rate = DefaultDecayRate
	}
	return &DecayService{
		subjects: subjects,
		repo:     repo,
		turns:    turns,
		logger:   logger,
		rate:     rate,
		workers:  defaultDecayWorkers,
		interval: defaultDecayInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *DecayService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *DecayService) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

func (s *DecayService) Rate() float64 {
	return s.rate
}

func (s *DecayService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("decay worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunDecay(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("decay worker stopped")
				return
			}
		}
	}()
}

func (s *DecayService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunDecay decays every active subject. Subjects mid-turn are skipped and
// picked up on the next tick.
func (s *DecayService) RunDecay(ctx context.Context) *DecayResult {
	total := &DecayResult{}

	ids, err := s.subjects.ListActiveIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list subjects for decay", zap.Error(err))
		return total
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			n, err := s.RunDecayForSubject(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			total.SubjectsScanned++
			switch {
			case errors.Is(err, ErrConcurrentTurn):
				total.SubjectsSkipped++
				decayRuns.WithLabelValues("skipped").Inc()
			case err != nil:
				decayRuns.WithLabelValues("error").Inc()
				s.logger.Error("decay failed for subject",
					zap.String("subject_id", id.String()),
					zap.Error(err))
			default:
				decayRuns.WithLabelValues("ok").Inc()
				total.CuriositiesDecayed += n
			}
			return nil
		})
	}
	_ = g.Wait()

	if total.CuriositiesDecayed > 0 || total.SubjectsSkipped > 0 {
		s.logger.Info("decay pass complete",
			zap.Int("subjects", total.SubjectsScanned),
			zap.Int("skipped", total.SubjectsSkipped),
			zap.Int("curiosities_decayed", total.CuriositiesDecayed))
	}
	return total
}

// RunDecayForSubject commits a decayed event for each active curiosity whose
// pull moved by more than DecayEpsilon. Knowledge measures and status are
// never touched.
func (s *DecayService) RunDecayForSubject(ctx context.Context, subjectID uuid.UUID) (int, error) {
	turn, err := s.turns.Begin(subjectID, PurposeDecay)
	if err != nil {
		return 0, err
	}
	defer turn.End()

	txn, err := s.repo.Begin(ctx, subjectID, turn)
	if err != nil {
		return 0, err
	}

	now := txn.Now()
	decayed := 0
	for _, c := range txn.Snapshot() {
		if c.Status.Terminal() {
			continue
		}
		pull := EffectivePull(&c, s.rate, now)
		if math.Abs(pull-c.Pull) <= DecayEpsilon {
			continue
		}
		if _, err := txn.Commit(ctx, domain.CuriosityEvent{
			CuriosityID: c.ID,
			Type:        domain.EventDecayed,
			Changes: map[string]domain.FieldChange{
				domain.FieldPull:          {Old: c.Pull, New: pull},
				domain.FieldLastDecayedAt: {Old: c.LastDecayedAt, New: now},
			},
			Trigger: domain.Trigger{Kind: domain.TriggerDecay},
		}); err != nil {
			return decayed, err
		}
		decayed++
	}
	txn.Flush(ctx)
	return decayed, nil
}
