// Package period manages fiscal period lifecycle: creation, lookup by
// date, close, and the adjustments-allowed flag. Once closed, a period is
// immutable — reopen_period is not a supported operation (I13).
package period

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"ledgerkernel/immutability"
	"ledgerkernel/kernelerr"
	"ledgerkernel/store"
)

// Status is a fiscal period's lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ImmutableDiff reports that a closed period rejects any further write,
// regardless of what changed: once closed a period is done (I13), so the
// only question a write needs answered is whether the existing record is
// closed at all.
func (p Period) ImmutableDiff(next Period) string {
	if p.Status == StatusClosed {
		return "status (period is closed)"
	}
	return ""
}

// Period is a named, non-overlapping date range that journal entries post
// into.
type Period struct {
	Code              string
	Name              string
	Start             time.Time
	End               time.Time
	Status            Status
	AllowsAdjustments bool
	ClosedAt          *time.Time
	ClosedByID        string
	CreatedByID       string
	CreatedAt         time.Time
}

// Service enforces period lifecycle rules on top of store-backed
// persistence. A mutex guards create/close so overlap checks and the
// eventual write observe a consistent snapshot, standing in for the
// original's row-level locking on the periods table.
type Service struct {
	db *store.Store
	mu sync.Mutex
}

// NewService returns a Service backed by db.
func NewService(db *store.Store) *Service {
	return &Service{db: db}
}

// CreatePeriod creates a new period, rejecting an invalid range, a
// duplicate code, or an overlap with any existing period.
func (s *Service) CreatePeriod(code, name string, start, end time.Time, actorID string, createdAt time.Time) (Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if start.After(end) {
		return Period{}, kernelerr.Newf(kernelerr.PeriodOverlap, "period start %s is after end %s", start, end)
	}

	existing, err := s.allLocked()
	if err != nil {
		return Period{}, err
	}
	for _, p := range existing {
		if p.Code == code {
			return Period{}, kernelerr.Newf(kernelerr.PeriodOverlap, "period code %q already exists", code)
		}
		if start.Before(p.End) && p.Start.Before(end) {
			return Period{}, kernelerr.Newf(kernelerr.PeriodOverlap, "period %q overlaps existing period %q", code, p.Code)
		}
	}

	p := Period{
		Code:              code,
		Name:              name,
		Start:             start,
		End:               end,
		Status:            StatusOpen,
		AllowsAdjustments: false,
		CreatedByID:       actorID,
		CreatedAt:         createdAt,
	}
	if err := immutability.GuardedPut(s.db, store.BucketFiscalPeriods, code, p); err != nil {
		return Period{}, fmt.Errorf("persist period %q: %w", code, err)
	}

	log.Info().Str("period_code", code).Str("actor_id", actorID).Msg("period_created")
	return p, nil
}

// GetPeriodForDate returns the unique period containing date.
func (s *Service) GetPeriodForDate(date time.Time) (Period, error) {
	periods, err := s.All()
	if err != nil {
		return Period{}, err
	}
	for _, p := range periods {
		if !date.Before(p.Start) && date.Before(p.End) {
			return p, nil
		}
	}
	return Period{}, kernelerr.Newf(kernelerr.PeriodNotFound, "no period contains date %s", date)
}

// Get returns the period with the given code.
func (s *Service) Get(code string) (Period, error) {
	p, found, err := store.Get[Period](s.db, store.BucketFiscalPeriods, code)
	if err != nil {
		return Period{}, err
	}
	if !found {
		return Period{}, kernelerr.Newf(kernelerr.PeriodNotFound, "period %q not found", code)
	}
	return p, nil
}

// All returns every period, unordered.
func (s *Service) All() ([]Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allLocked()
}

func (s *Service) allLocked() ([]Period, error) {
	var periods []Period
	err := store.ForEach(s.db, store.BucketFiscalPeriods, func(_ string, p Period) error {
		periods = append(periods, p)
		return nil
	})
	return periods, err
}

// ClosePeriod transitions an open period to closed. Closing an
// already-closed period fails with PERIOD_ALREADY_CLOSED.
func (s *Service) ClosePeriod(code, actorID string, closedAt time.Time) (Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, found, err := store.Get[Period](s.db, store.BucketFiscalPeriods, code)
	if err != nil {
		return Period{}, err
	}
	if !found {
		return Period{}, kernelerr.Newf(kernelerr.PeriodNotFound, "period %q not found", code)
	}
	if p.Status == StatusClosed {
		return Period{}, kernelerr.Newf(kernelerr.PeriodAlreadyClosed, "period %q is already closed", code)
	}

	p.Status = StatusClosed
	p.ClosedAt = &closedAt
	p.ClosedByID = actorID
	if err := immutability.GuardedPut(s.db, store.BucketFiscalPeriods, code, p); err != nil {
		return Period{}, fmt.Errorf("persist closed period %q: %w", code, err)
	}

	log.Info().Str("period_code", code).Str("actor_id", actorID).Msg("period_closed")
	return p, nil
}

// EnableAdjustments allows draft adjustments on an open period.
func (s *Service) EnableAdjustments(code, actorID string) (Period, error) {
	return s.setAdjustments(code, actorID, true)
}

// DisableAdjustments forbids draft adjustments on an open period.
func (s *Service) DisableAdjustments(code, actorID string) (Period, error) {
	return s.setAdjustments(code, actorID, false)
}

func (s *Service) setAdjustments(code, actorID string, allow bool) (Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, found, err := store.Get[Period](s.db, store.BucketFiscalPeriods, code)
	if err != nil {
		return Period{}, err
	}
	if !found {
		return Period{}, kernelerr.Newf(kernelerr.PeriodNotFound, "period %q not found", code)
	}
	if p.Status != StatusOpen {
		return Period{}, kernelerr.Newf(kernelerr.AdjustmentsNotAllowed, "period %q is not open", code)
	}

	p.AllowsAdjustments = allow
	if err := immutability.GuardedPut(s.db, store.BucketFiscalPeriods, code, p); err != nil {
		return Period{}, fmt.Errorf("persist period %q: %w", code, err)
	}
	return p, nil
}

// ReopenPeriod always fails: closed periods are immutable (I13). The
// original's reopen path is intentionally not implemented.
func (s *Service) ReopenPeriod(code, actorID string) (Period, error) {
	return Period{}, kernelerr.Newf(kernelerr.PeriodImmutable, "period %q cannot be reopened", code)
}

// CheckPostable validates that effectiveDate falls within a period that
// permits the posting (I3, defense-in-depth re-check standing in for the
// distilled spec's database trigger; store.Put never enforces this on its
// own). A closed period rejects every posting with ClosedPeriod unless
// isAdjustment is set and the period itself allows adjustments.
func (s *Service) CheckPostable(effectiveDate time.Time, isAdjustment bool) (Period, error) {
	p, err := s.GetPeriodForDate(effectiveDate)
	if err != nil {
		return Period{}, err
	}
	if p.Status == StatusClosed && !(isAdjustment && p.AllowsAdjustments) {
		return Period{}, kernelerr.Newf(kernelerr.ClosedPeriod, "period %q is closed", p.Code)
	}
	return p, nil
}
