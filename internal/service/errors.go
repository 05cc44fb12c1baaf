package service

import (
	"errors"
	"time"
)

var (
	ErrInvalidEvidence  = errors.New("invalid evidence")
	ErrConcurrentTurn   = errors.New("a turn is already processing for this subject")
	ErrUnknownCuriosity = errors.New("unknown curiosity")
	ErrCascadeCycle     = errors.New("lineage link would create a cycle")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrTurnExpired      = errors.New("turn exceeded its processing bound")
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrSubjectArchived  = errors.New("subject is archived")
	ErrCrystalNotFound  = errors.New("crystal not found")
)

// Recoverable reports whether err rejects a single operation while the rest
// of the batch may continue.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidEvidence) ||
		errors.Is(err, ErrUnknownCuriosity) ||
		errors.Is(err, ErrCascadeCycle) ||
		errors.Is(err, ErrInvalidOperation)
}

// Clock supplies event timestamps. Timestamps are UTC at microsecond
// precision so they survive a round trip through Postgres unchanged.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
