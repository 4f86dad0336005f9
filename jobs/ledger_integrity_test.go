package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	violations []IntegrityViolation
	err        error
	lastTenant int64
}

func (s *stubScanner) ScanApproved(ctx context.Context, tenantID int64) ([]IntegrityViolation, error) {
	s.lastTenant = tenantID
	return s.violations, s.err
}

type countingMetrics struct {
	unbalanced int
}

func (m *countingMetrics) UnbalancedEntryFound() {
	m.unbalanced++
}

func TestIntegrityCheckerRun(t *testing.T) {
	scanner := &stubScanner{violations: []IntegrityViolation{
		{EntryID: 1, TenantID: 3, Number: "2025-03-0001", TotalDebit: 100, TotalCredit: 80, LineDebit: 100, LineCredit: 80},
		{EntryID: 2, TenantID: 3, Number: "2025-03-0002", TotalDebit: 50, TotalCredit: 50, LineDebit: 49, LineCredit: 50},
	}}
	metrics := &countingMetrics{}
	checker := NewIntegrityChecker(scanner, metrics, nil, nil)

	violations, err := checker.Run(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, violations, 2)
	require.Equal(t, int64(3), scanner.lastTenant)
	require.Equal(t, 2, metrics.unbalanced)

	require.True(t, violations[0].Unbalanced())
	// Cached-total drift with balanced totals is not an imbalance.
	require.False(t, violations[1].Unbalanced())
}

func TestIntegrityCheckerRunScanError(t *testing.T) {
	scanner := &stubScanner{err: errors.New("db down")}
	checker := NewIntegrityChecker(scanner, nil, nil, nil)

	_, err := checker.Run(context.Background(), 0)
	require.Error(t, err)
}

func TestIntegrityHandler(t *testing.T) {
	scanner := &stubScanner{}
	checker := NewIntegrityChecker(scanner, nil, nil, nil)
	handler := checker.Handler()

	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{TenantID: 5})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, int64(5), scanner.lastTenant)

	bad := asynq.NewTask(TaskLedgerIntegrity, []byte("{not json"))
	err = handler(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
