package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFoldMissingCuriosity = errors.New("event references a curiosity not in the view")
	ErrFoldDuplicate        = errors.New("created event for an existing curiosity")
	ErrFoldMalformed        = errors.New("malformed event")
	ErrFoldOutOfOrder       = errors.New("event sequence out of order")
)

// View is the materialized state of one subject: every curiosity it has ever
// had, plus the position of the last folded event.
type View struct {
	SubjectID   uuid.UUID
	Curiosities map[uuid.UUID]*Curiosity
	LastSeq     int64
	LastEventAt time.Time
}

func NewView(subjectID uuid.UUID) *View {
	return &View{SubjectID: subjectID, Curiosities: make(map[uuid.UUID]*Curiosity)}
}

// Replay folds events from an empty view.
func Replay(subjectID uuid.UUID, events []CuriosityEvent) (*View, error) {
	v := NewView(subjectID)
	for i := range events {
		if err := v.Apply(events[i]); err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", events[i].Sequence, err)
		}
	}
	return v, nil
}

// Preview folds e into a copy of the affected curiosity without touching the view.
func (v *View) Preview(e CuriosityEvent) (*Curiosity, error) {
	if e.Type == EventCreated {
		if e.Curiosity == nil {
			return nil, fmt.Errorf("%w: created event without curiosity", ErrFoldMalformed)
		}
		if _, exists := v.Curiosities[e.CuriosityID]; exists {
			return nil, ErrFoldDuplicate
		}
		c := e.Curiosity.Clone()
		c.ID = e.CuriosityID
		c.SubjectID = v.SubjectID
		if !c.WellFormed() {
			return nil, fmt.Errorf("%w: nature and measure disagree", ErrFoldMalformed)
		}
		return c, nil
	}

	cur, ok := v.Curiosities[e.CuriosityID]
	if !ok {
		return nil, ErrFoldMissingCuriosity
	}
	c := cur.Clone()

	if e.Type == EventEvidenceApplied {
		if e.Evidence == nil {
			return nil, fmt.Errorf("%w: evidence event without evidence", ErrFoldMalformed)
		}
		c.Evidence = append(c.Evidence, *e.Evidence)
	}
	if e.Type == EventCascaded && e.Trigger.Ref != nil && !c.HasAppliedCascade(*e.Trigger.Ref) {
		c.AppliedCascades = append(c.AppliedCascades, *e.Trigger.Ref)
	}

	fields := make([]string, 0, len(e.Changes))
	for f := range e.Changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if err := setField(c, f, e.Changes[f].New); err != nil {
			return nil, err
		}
	}
	if !c.WellFormed() {
		return nil, fmt.Errorf("%w: nature and measure disagree", ErrFoldMalformed)
	}
	return c, nil
}

// Apply folds e into the view. Events must arrive in sequence order.
func (v *View) Apply(e CuriosityEvent) error {
	if e.Sequence != 0 && e.Sequence <= v.LastSeq {
		return ErrFoldOutOfOrder
	}
	c, err := v.Preview(e)
	if err != nil {
		return err
	}
	v.Curiosities[c.ID] = c
	if e.Sequence != 0 {
		v.LastSeq = e.Sequence
	}
	if e.Timestamp.After(v.LastEventAt) {
		v.LastEventAt = e.Timestamp
	}
	return nil
}

// Dependents returns curiosities listing id among their sources, ordered by id
// so cascades are deterministic.
func (v *View) Dependents(id uuid.UUID) []*Curiosity {
	var out []*Curiosity
	for _, c := range v.Curiosities {
		if c.HasSource(id) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func setField(c *Curiosity, field string, value any) error {
	bad := func() error {
		return fmt.Errorf("%w: field %s has unexpected value %v", ErrFoldMalformed, field, value)
	}
	switch field {
	case FieldPull:
		f, ok := asFloat(value)
		if !ok {
			return bad()
		}
		c.Pull = f
	case FieldFullness:
		p, ok := asFloatPtr(value)
		if !ok {
			return bad()
		}
		c.Fullness = p
	case FieldConfidence:
		p, ok := asFloatPtr(value)
		if !ok {
			return bad()
		}
		c.Confidence = p
	case FieldStatus:
		s, ok := asString(value)
		if !ok {
			return bad()
		}
		c.Status = Status(s)
	case FieldTimesActivated:
		n, ok := asInt(value)
		if !ok {
			return bad()
		}
		c.TimesActivated = n
	case FieldContradictions:
		n, ok := asInt(value)
		if !ok {
			return bad()
		}
		c.Contradictions = n
	case FieldLastActivatedAt:
		t, ok := asTime(value)
		if !ok {
			return bad()
		}
		c.LastActivatedAt = t
	case FieldLastDecayedAt:
		t, ok := asTime(value)
		if !ok {
			return bad()
		}
		c.LastDecayedAt = &t
	case FieldEmergesFrom:
		if value == nil {
			c.EmergesFrom = nil
			return nil
		}
		id, ok := asUUID(value)
		if !ok {
			return bad()
		}
		c.EmergesFrom = &id
	case FieldSourceCuriosities:
		ids, ok := asUUIDs(value)
		if !ok {
			return bad()
		}
		c.SourceCuriosities = ids
	case FieldFlag:
		s, ok := asString(value)
		if !ok {
			return bad()
		}
		c.Flag = s
	case FieldFocus:
		s, ok := asString(value)
		if !ok {
			return bad()
		}
		c.Focus = s
	case FieldDomain:
		s, ok := asString(value)
		if !ok {
			return bad()
		}
		c.Domain = s
	case FieldTheory:
		s, ok := asString(value)
		if !ok {
			return bad()
		}
		c.Theory = s
	default:
		return fmt.Errorf("%w: unknown field %s", ErrFoldMalformed, field)
	}
	return nil
}

// The as* helpers accept both the typed values written in-process and the
// shapes produced by decoding persisted JSON.

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func asFloatPtr(v any) (*float64, bool) {
	if v == nil {
		return nil, true
	}
	if p, ok := v.(*float64); ok && p == nil {
		return nil, true
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, false
	}
	return &f, true
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), x == float64(int(x))
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case Status:
		return string(x), true
	}
	return "", false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		return t, err == nil
	}
	return time.Time{}, false
}

func asUUID(v any) (uuid.UUID, bool) {
	switch x := v.(type) {
	case uuid.UUID:
		return x, true
	case *uuid.UUID:
		if x == nil {
			return uuid.Nil, false
		}
		return *x, true
	case string:
		id, err := uuid.Parse(x)
		return id, err == nil
	}
	return uuid.Nil, false
}

func asUUIDs(v any) ([]uuid.UUID, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case []uuid.UUID:
		return append([]uuid.UUID(nil), x...), true
	case []string:
		out := make([]uuid.UUID, 0, len(x))
		for _, s := range x {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, false
			}
			out = append(out, id)
		}
		return out, true
	case []any:
		out := make([]uuid.UUID, 0, len(x))
		for _, s := range x {
			id, ok := asUUID(s)
			if !ok {
				return nil, false
			}
			out = append(out, id)
		}
		return out, true
	}
	return nil, false
}
