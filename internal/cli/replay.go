package cli

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type ReplayOptions struct {
	*RootOptions
	Subject string
	Repair  bool
}

// SubjectReplay is the outcome of replaying one subject's log.
type SubjectReplay struct {
	SubjectID     uuid.UUID   `json:"subject_id"`
	Events        int         `json:"events"`
	Curiosities   int         `json:"curiosities"`
	Deterministic bool        `json:"deterministic"`
	Drifted       []uuid.UUID `json:"drifted,omitempty"`
	Repaired      int         `json:"repaired,omitempty"`
}

type ReplayResult struct {
	Subjects         []SubjectReplay `json:"subjects"`
	AllDeterministic bool            `json:"all_deterministic"`
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay event logs and verify determinism",
		Long: `Replay each subject's curiosity events from empty, twice, and check that
both folds agree. The folded view is then compared with the stored snapshots;
--repair rewrites drifted snapshots from the replayed view.

Examples:
  curioctl replay
  curioctl replay --subject 6f1c... --format json
  curioctl replay --repair`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "replay a single subject id")
	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "rewrite drifted snapshots")
	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	ctx := cmd.Context()
	pool, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	events := store.NewEventStore(pool)
	snapshots := store.NewSnapshotStore(pool)

	var ids []uuid.UUID
	if opts.Subject != "" {
		id, err := uuid.Parse(opts.Subject)
		if err != nil {
			return fmt.Errorf("invalid subject id: %w", err)
		}
		ids = []uuid.UUID{id}
	} else if ids, err = store.NewSubjectStore(pool).ListActiveIDs(ctx); err != nil {
		return err
	}

	result := ReplayResult{AllDeterministic: true}
	for _, id := range ids {
		r, err := VerifySubject(ctx, events, snapshots, id, opts.Repair)
		if err != nil {
			return fmt.Errorf("subject %s: %w", id, err)
		}
		result.Subjects = append(result.Subjects, *r)
		result.AllDeterministic = result.AllDeterministic && r.Deterministic
	}

	if opts.Format == "json" {
		if err := outputJSON(cmd, result); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		for _, r := range result.Subjects {
			fmt.Fprintf(out, "%s  events=%d curiosities=%d deterministic=%t drifted=%d repaired=%d\n",
				r.SubjectID, r.Events, r.Curiosities, r.Deterministic, len(r.Drifted), r.Repaired)
		}
	}
	if !result.AllDeterministic {
		return fmt.Errorf("replay is not deterministic")
	}
	return nil
}

// VerifySubject folds the subject's log twice and compares the result with
// the snapshot cache.
func VerifySubject(ctx context.Context, es domain.EventStore, ss domain.SnapshotStore, subjectID uuid.UUID, repair bool) (*SubjectReplay, error) {
	events, err := es.ListBySubject(ctx, subjectID, 0)
	if err != nil {
		return nil, err
	}
	first, err := domain.Replay(subjectID, events)
	if err != nil {
		return nil, err
	}
	second, err := domain.Replay(subjectID, events)
	if err != nil {
		return nil, err
	}

	r := &SubjectReplay{
		SubjectID:     subjectID,
		Events:        len(events),
		Curiosities:   len(first.Curiosities),
		Deterministic: reflect.DeepEqual(first, second),
	}

	snaps, err := ss.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	stored := make(map[uuid.UUID]domain.Curiosity, len(snaps))
	for _, s := range snaps {
		stored[s.ID] = s
	}
	for id, c := range first.Curiosities {
		s, ok := stored[id]
		if ok && sameState(c, &s) {
			continue
		}
		r.Drifted = append(r.Drifted, id)
		if repair {
			if err := ss.Upsert(ctx, c); err != nil {
				return nil, err
			}
			r.Repaired++
		}
	}
	sort.Slice(r.Drifted, func(i, j int) bool { return r.Drifted[i].String() < r.Drifted[j].String() })
	return r, nil
}

func sameState(a, b *domain.Curiosity) bool {
	return a.Status == b.Status &&
		a.TimesActivated == b.TimesActivated &&
		len(a.Evidence) == len(b.Evidence) &&
		math.Abs(a.Pull-b.Pull) < 1e-9 &&
		math.Abs(a.Value()-b.Value()) < 1e-9
}
