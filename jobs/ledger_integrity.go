package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/andino-erp/andino/internal/jobs"
	"github.com/andino-erp/andino/internal/ledger"
)

// IntegrityViolation describes an approved entry whose amounts no
// longer hold the double-entry invariant.
type IntegrityViolation struct {
	EntryID     int64
	TenantID    int64
	Number      string
	TotalDebit  float64
	TotalCredit float64
	LineDebit   float64
	LineCredit  float64
}

// Unbalanced reports whether the violation is a debit/credit imbalance
// (as opposed to a cached-total drift).
func (v IntegrityViolation) Unbalanced() bool {
	return math.Abs(v.TotalDebit-v.TotalCredit) > ledger.BalanceTolerance
}

// IntegrityScanner finds approved entries violating the invariant.
type IntegrityScanner interface {
	ScanApproved(ctx context.Context, tenantID int64) ([]IntegrityViolation, error)
}

// MetricsPort counts violations for observability.
type MetricsPort interface {
	UnbalancedEntryFound()
}

// IntegrityChecker runs the daily ledger integrity scan: every APPROVED
// entry must have line sums matching its cached totals, and debits and
// credits within the balance tolerance. Violations indicate an adapter
// bug or manual data tampering and are surfaced, never auto-repaired.
type IntegrityChecker struct {
	scanner    IntegrityScanner
	metrics    MetricsPort
	jobMetrics *jobmetrics.Metrics
	logger     *slog.Logger
}

func NewIntegrityChecker(scanner IntegrityScanner, metrics MetricsPort, jobMetrics *jobmetrics.Metrics, logger *slog.Logger) *IntegrityChecker {
	return &IntegrityChecker{scanner: scanner, metrics: metrics, jobMetrics: jobMetrics, logger: logger}
}

// Run executes one scan and logs every violation found.
func (c *IntegrityChecker) Run(ctx context.Context, tenantID int64) ([]IntegrityViolation, error) {
	violations, err := c.scanner.ScanApproved(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		if c.metrics != nil {
			c.metrics.UnbalancedEntryFound()
		}
		if c.logger != nil {
			c.logger.Error("ledger integrity violation",
				slog.Int64("tenant_id", v.TenantID),
				slog.Int64("entry_id", v.EntryID),
				slog.String("number", v.Number),
				slog.Float64("total_debit", v.TotalDebit),
				slog.Float64("total_credit", v.TotalCredit),
				slog.Float64("line_debit", v.LineDebit),
				slog.Float64("line_credit", v.LineCredit),
			)
		}
	}
	if c.logger != nil {
		c.logger.Info("ledger integrity scan finished",
			slog.Int64("tenant_id", tenantID),
			slog.Int("violations", len(violations)),
		)
	}
	return violations, nil
}

// Handler adapts the checker to an Asynq task handler.
func (c *IntegrityChecker) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerIntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := c.jobMetrics.Track(TaskLedgerIntegrity)
		violations, err := c.Run(ctx, payload.TenantID)
		for _, v := range violations {
			c.jobMetrics.AddViolations(v.TenantID, 1)
		}
		return tracker.End(err)
	}
}

// PGIntegrityScanner queries the violation set directly from Postgres.
type PGIntegrityScanner struct {
	pool *pgxpool.Pool
}

func NewPGIntegrityScanner(pool *pgxpool.Pool) *PGIntegrityScanner {
	return &PGIntegrityScanner{pool: pool}
}

func (s *PGIntegrityScanner) ScanApproved(ctx context.Context, tenantID int64) ([]IntegrityViolation, error) {
	query := `SELECT e.id, e.tenant_id, e.number, e.total_debit, e.total_credit,
COALESCE(SUM(l.debit),0) AS line_debit, COALESCE(SUM(l.credit),0) AS line_credit
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
WHERE e.status = 'APPROVED' AND ($1 = 0 OR e.tenant_id = $1)
GROUP BY e.id
HAVING ABS(e.total_debit - e.total_credit) > 0.01
    OR ABS(e.total_debit - COALESCE(SUM(l.debit),0)) > 0.005
    OR ABS(e.total_credit - COALESCE(SUM(l.credit),0)) > 0.005
ORDER BY e.tenant_id, e.id`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var violations []IntegrityViolation
	for rows.Next() {
		var v IntegrityViolation
		if err := rows.Scan(&v.EntryID, &v.TenantID, &v.Number, &v.TotalDebit, &v.TotalCredit, &v.LineDebit, &v.LineCredit); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
