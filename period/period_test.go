package period

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgerkernel/immutability"
	"ledgerkernel/kernelerr"
	"ledgerkernel/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "period.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db)
}

func jan(day int) time.Time { return time.Date(2026, time.January, day, 0, 0, 0, 0, time.UTC) }
func feb(day int) time.Time { return time.Date(2026, time.February, day, 0, 0, 0, 0, time.UTC) }

func TestCreatePeriodRejectsInvertedRange(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(31), jan(1), "actor-1", jan(1))
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.PeriodOverlap, code)
}

func TestCreatePeriodRejectsDuplicateCode(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)

	_, err = s.CreatePeriod("2026-01", "January Again", feb(1), feb(28), "actor-1", jan(1))
	require.Error(t, err)
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)

	_, err = s.CreatePeriod("2026-01b", "Mid-January", jan(15), feb(15), "actor-1", jan(1))
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.PeriodOverlap, code)
}

func TestGetPeriodForDateFindsContainingPeriod(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)

	p, err := s.GetPeriodForDate(jan(15))
	require.NoError(t, err)
	assert.Equal(t, "2026-01", p.Code)

	_, err = s.GetPeriodForDate(feb(15))
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.PeriodNotFound, code)
}

func TestClosePeriodTransitionsAndRejectsDoubleClose(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)

	closed, err := s.ClosePeriod("2026-01", "actor-2", jan(31))
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, "actor-2", closed.ClosedByID)
	require.NotNil(t, closed.ClosedAt)

	_, err = s.ClosePeriod("2026-01", "actor-2", jan(31))
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.PeriodAlreadyClosed, code)
}

func TestEnableDisableAdjustmentsOnlyOnOpenPeriod(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)

	p, err := s.EnableAdjustments("2026-01", "actor-1")
	require.NoError(t, err)
	assert.True(t, p.AllowsAdjustments)

	_, err = s.ClosePeriod("2026-01", "actor-1", jan(31))
	require.NoError(t, err)

	_, err = s.EnableAdjustments("2026-01", "actor-1")
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.AdjustmentsNotAllowed, code)
}

func TestReopenPeriodAlwaysFails(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)
	_, err = s.ClosePeriod("2026-01", "actor-1", jan(31))
	require.NoError(t, err)

	_, err = s.ReopenPeriod("2026-01", "actor-1")
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.PeriodImmutable, code)
}

func TestCheckPostableRejectsClosedPeriod(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)
	_, err = s.ClosePeriod("2026-01", "actor-1", jan(31))
	require.NoError(t, err)

	_, err = s.CheckPostable(jan(15), false)
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.ClosedPeriod, code)
}

func TestCheckPostableRejectsAdjustmentWhenPeriodDoesNotAllowThem(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)
	_, err = s.ClosePeriod("2026-01", "actor-1", jan(31))
	require.NoError(t, err)

	_, err = s.CheckPostable(jan(15), true)
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.ClosedPeriod, code)
}

func TestCheckPostableAllowsAdjustmentOnClosedPeriodThatAllowsThem(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreatePeriod("2026-Q1", "Q1", jan(1), time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), "actor-1", jan(1))
	require.NoError(t, err)
	_, err = s.EnableAdjustments("2026-Q1", "actor-1")
	require.NoError(t, err)
	_, err = s.ClosePeriod("2026-Q1", "actor-1", feb(28))
	require.NoError(t, err)

	p, err := s.CheckPostable(jan(15), true)
	require.NoError(t, err)
	assert.Equal(t, "2026-Q1", p.Code)
}

func TestClosedPeriodRejectsWriteThroughGuardDirectly(t *testing.T) {
	// Even a caller that bypasses Service entirely and writes the
	// fiscal_periods bucket straight through the shared guard must be
	// blocked once the period is closed -- the defense-in-depth layer
	// period.Service itself relies on for every Put in this file.
	s := newTestService(t)
	p, err := s.CreatePeriod("2026-01", "January", jan(1), feb(1), "actor-1", jan(1))
	require.NoError(t, err)
	closed, err := s.ClosePeriod("2026-01", "actor-1", jan(31))
	require.NoError(t, err)

	tampered := closed
	tampered.Name = "Not January"

	err = immutability.GuardedPut(s.db, store.BucketFiscalPeriods, p.Code, tampered)
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.ImmutabilityViolation, code)

	reloaded, err := s.Get("2026-01")
	require.NoError(t, err)
	assert.Equal(t, "January", reloaded.Name)
}
