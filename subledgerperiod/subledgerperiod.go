// Package subledgerperiod orchestrates subledger period close: comparing
// each subledger's aggregate balance against its bound GL control account
// and either closing the period or blocking it with a persisted failure
// report. It sits above subledger.Engine, subledger/reconcile, and
// journal.Writer rather than inside any of them, since closing a period
// is a cross-cutting operation over all three.
package subledgerperiod

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"ledgerkernel/clock"
	"ledgerkernel/intent"
	"ledgerkernel/journal"
	"ledgerkernel/money"
	"ledgerkernel/store"
	"ledgerkernel/subledger"
	"ledgerkernel/subledger/reconcile"
)

// Status is the close-state of one subledger's period.
type Status string

const (
	StatusOpen        Status = "open"
	StatusReconciling Status = "reconciling"
	StatusClosed      Status = "closed"
)

// StatusRow is the persisted close state of one (subledger type, period)
// pair.
type StatusRow struct {
	SubledgerType          reconcile.SubledgerType
	PeriodCode             string
	Status                 Status
	ClosedAt               *time.Time
	ClosedByID             string
	ReconciliationReportID *uuid.UUID
}

// FailureReport captures the GL/SL mismatch that blocked a period close,
// for audit follow-up.
type FailureReport struct {
	ID                 uuid.UUID
	SubledgerType      reconcile.SubledgerType
	PeriodCode         string
	GLControlBalance   money.Money
	SLAggregateBalance money.Money
	DeltaAmount        money.Money
	Currency           string
	CheckedAt          time.Time
}

// Service orchestrates subledger period close with reconciliation
// enforcement (SL-G6).
type Service struct {
	db              *store.Store
	clk             clock.Clock
	registry        *reconcile.Registry
	roleResolver    *intent.RoleResolver
	subledgerEngine *subledger.Engine
	glBalances      *journal.Writer
	reconciler      *reconcile.Reconciler
}

// NewService returns a ready-to-use Service. glBalances supplies GL
// control-account balances (typically the same journal.Writer the kernel
// posts through).
func NewService(db *store.Store, clk clock.Clock, registry *reconcile.Registry, roleResolver *intent.RoleResolver, subledgerEngine *subledger.Engine, glBalances *journal.Writer) *Service {
	return &Service{
		db:              db,
		clk:             clk,
		registry:        registry,
		roleResolver:    roleResolver,
		subledgerEngine: subledgerEngine,
		glBalances:      glBalances,
		reconciler:      reconcile.NewReconciler(),
	}
}

func statusKey(subledgerType reconcile.SubledgerType, periodCode string) string {
	return string(subledgerType) + ":" + periodCode
}

// CloseSubledgerPeriod reconciles subledgerType's aggregate balance against
// its GL control account as of periodEndDate and closes the period if
// reconciliation passes (or isn't enforced). On a blocking violation the
// period is left open and a FailureReport is persisted (SL-G6).
// Re-invocation on an already-closed period is idempotent: it returns the
// existing row untouched.
func (s *Service) CloseSubledgerPeriod(subledgerType reconcile.SubledgerType, periodCode string, periodEndDate time.Time, actorID string) (StatusRow, error) {
	now := s.clk.Now()
	contract, hasContract := s.registry.Get(subledgerType)

	row, err := s.getOrCreateStatus(subledgerType, periodCode)
	if err != nil {
		return StatusRow{}, err
	}

	if row.Status == StatusClosed {
		log.Info().Str("subledger_type", string(subledgerType)).Str("period_code", periodCode).
			Msg("subledger_period_already_closed")
		return row, nil
	}

	if !hasContract || !contract.EnforceOnClose {
		return s.closeWithoutEnforcement(row, actorID, now, "skipped")
	}

	controlAccountID, _, err := s.roleResolver.Resolve(contract.ControlAccountRole(), "GL", 0)
	if err != nil {
		log.Warn().Str("subledger_type", string(subledgerType)).Str("period_code", periodCode).
			Str("role", contract.ControlAccountRole()).Err(err).Msg("subledger_period_close_role_unresolvable")
		return s.closeWithoutEnforcement(row, actorID, now, "unresolvable_role")
	}

	currency := contract.Binding.Currency
	if currency == "" {
		currency = "USD"
	}

	glBalance, err := s.glBalances.AccountBalance(controlAccountID, currency, periodEndDate, contract.Binding.IsDebitNormal)
	if err != nil {
		return StatusRow{}, err
	}
	slBalance, err := s.subledgerEngine.AggregateBalance(subledgerType, periodEndDate, currency)
	if err != nil {
		return StatusRow{}, err
	}

	violations, err := s.reconciler.ValidatePeriodClose(contract, slBalance.Balance, glBalance, periodEndDate, now)
	if err != nil {
		return StatusRow{}, err
	}

	var blocking []reconcile.Violation
	for _, v := range violations {
		if v.Blocking {
			blocking = append(blocking, v)
		}
	}

	if len(blocking) > 0 {
		return s.blockClose(row, subledgerType, periodCode, slBalance.Balance, glBalance, currency, now, len(blocking))
	}

	for _, v := range violations {
		log.Info().Str("subledger_type", string(subledgerType)).Str("period_code", periodCode).
			Str("message", v.Message).Msg("subledger_period_close_warning")
	}

	row.Status = StatusClosed
	row.ClosedAt = &now
	row.ClosedByID = actorID
	if err := store.Put(s.db, store.BucketSubledgerPeriodStatus, statusKey(subledgerType, periodCode), row); err != nil {
		return StatusRow{}, err
	}

	log.Info().Str("subledger_type", string(subledgerType)).Str("period_code", periodCode).
		Str("gl_balance", glBalance.Amount().String()).Str("sl_balance", slBalance.Balance.Amount().String()).
		Str("enforcement", "passed").Msg("subledger_period_closed")

	return row, nil
}

func (s *Service) closeWithoutEnforcement(row StatusRow, actorID string, now time.Time, reason string) (StatusRow, error) {
	row.Status = StatusClosed
	row.ClosedAt = &now
	row.ClosedByID = actorID
	if err := store.Put(s.db, store.BucketSubledgerPeriodStatus, statusKey(row.SubledgerType, row.PeriodCode), row); err != nil {
		return StatusRow{}, err
	}
	log.Info().Str("subledger_type", string(row.SubledgerType)).Str("period_code", row.PeriodCode).
		Str("enforcement", reason).Msg("subledger_period_closed")
	return row, nil
}

func (s *Service) blockClose(row StatusRow, subledgerType reconcile.SubledgerType, periodCode string, slBalance, glBalance money.Money, currency string, checkedAt time.Time, violationCount int) (StatusRow, error) {
	delta, err := slBalance.Sub(glBalance)
	if err != nil {
		return StatusRow{}, err
	}

	report := FailureReport{
		ID:                 uuid.New(),
		SubledgerType:      subledgerType,
		PeriodCode:         periodCode,
		GLControlBalance:   glBalance,
		SLAggregateBalance: slBalance,
		DeltaAmount:        delta,
		Currency:           currency,
		CheckedAt:          checkedAt,
	}
	if err := store.Put(s.db, store.BucketReconciliationFailureReports, report.ID.String(), report); err != nil {
		return StatusRow{}, err
	}

	row.Status = StatusOpen
	row.ReconciliationReportID = &report.ID
	if err := store.Put(s.db, store.BucketSubledgerPeriodStatus, statusKey(subledgerType, periodCode), row); err != nil {
		return StatusRow{}, err
	}

	log.Warn().Str("subledger_type", string(subledgerType)).Str("period_code", periodCode).
		Str("gl_balance", glBalance.Amount().String()).Str("sl_balance", slBalance.Amount().String()).
		Str("delta", delta.Amount().String()).Str("report_id", report.ID.String()).
		Int("violation_count", violationCount).Msg("subledger_period_close_blocked")

	return row, nil
}

func (s *Service) getOrCreateStatus(subledgerType reconcile.SubledgerType, periodCode string) (StatusRow, error) {
	key := statusKey(subledgerType, periodCode)
	row, found, err := store.Get[StatusRow](s.db, store.BucketSubledgerPeriodStatus, key)
	if err != nil {
		return StatusRow{}, err
	}
	if found {
		return row, nil
	}
	row = StatusRow{SubledgerType: subledgerType, PeriodCode: periodCode, Status: StatusOpen}
	if err := store.Put(s.db, store.BucketSubledgerPeriodStatus, key, row); err != nil {
		return StatusRow{}, err
	}
	return row, nil
}

// IsSubledgerClosed reports whether subledgerType's period periodCode has a
// CLOSED status row.
func (s *Service) IsSubledgerClosed(subledgerType reconcile.SubledgerType, periodCode string) (bool, error) {
	row, found, err := store.Get[StatusRow](s.db, store.BucketSubledgerPeriodStatus, statusKey(subledgerType, periodCode))
	if err != nil {
		return false, err
	}
	return found && row.Status == StatusClosed, nil
}

// AreAllSubledgersClosed reports whether every registered contract with
// EnforceOnClose set has a CLOSED status row for periodCode — the guard a
// GL period close checks before proceeding.
func (s *Service) AreAllSubledgersClosed(periodCode string) (bool, error) {
	for _, contract := range s.registry.GetAll() {
		if !contract.EnforceOnClose {
			continue
		}
		closed, err := s.IsSubledgerClosed(contract.SubledgerType(), periodCode)
		if err != nil {
			return false, err
		}
		if !closed {
			return false, nil
		}
	}
	return true, nil
}

// GetCloseStatus returns the close status of every registered subledger
// type for periodCode, defaulting to open for types with no status row.
func (s *Service) GetCloseStatus(periodCode string) (map[reconcile.SubledgerType]Status, error) {
	result := make(map[reconcile.SubledgerType]Status)
	for _, contract := range s.registry.GetAll() {
		slType := contract.SubledgerType()
		row, found, err := store.Get[StatusRow](s.db, store.BucketSubledgerPeriodStatus, statusKey(slType, periodCode))
		if err != nil {
			return nil, err
		}
		if !found {
			result[slType] = StatusOpen
			continue
		}
		result[slType] = row.Status
	}
	return result, nil
}
