package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/andino-erp/andino/internal/shared"
)

// AuditPort records ledger activity in the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger events for observability.
type MetricsPort interface {
	EntryPosted(sourceType string)
	EntryApproved(entryType string)
}

// Service is the only component allowed to write ledger rows.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

func NewService(repo Repository, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry persists a DRAFT journal entry and its lines as one
// atomic unit. Totals are cached from the lines; balance is not checked
// here, only at approval.
func (s *Service) CreateEntry(ctx context.Context, tenantID, userID int64, input EntryInput) (JournalEntry, error) {
	return s.create(ctx, tenantID, userID, input, nil, "")
}

// CreateForSource persists an entry tagged with the originating business
// document. The (tenant, sourceDocID, sourceType) tuple is the
// idempotency key: if an entry already exists for it, that entry is
// returned unchanged and nothing is written.
func (s *Service) CreateForSource(ctx context.Context, tenantID, userID int64, input EntryInput, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	if sourceDocID == uuid.Nil {
		return JournalEntry{}, errors.New("ledger: source doc id required")
	}
	if sourceType == "" {
		return JournalEntry{}, errors.New("ledger: source type required")
	}
	if existing, err := s.repo.FindBySource(ctx, tenantID, sourceDocID, sourceType); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrEntryNotFound) {
		return JournalEntry{}, err
	}
	entry, err := s.create(ctx, tenantID, userID, input, &sourceDocID, sourceType)
	if errors.Is(err, ErrSourceConflict) {
		// Lost the race: the unique index is the authoritative backstop.
		return s.repo.FindBySource(ctx, tenantID, sourceDocID, sourceType)
	}
	return entry, err
}

func (s *Service) create(ctx context.Context, tenantID, userID int64, input EntryInput, sourceDocID *uuid.UUID, sourceType string) (JournalEntry, error) {
	if tenantID == 0 {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	totalDebit, totalCredit := input.Totals()
	period := PeriodOf(input.Date)
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, tenantID, period)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			TenantID:    tenantID,
			Number:      fmt.Sprintf("%s-%04d", period, seq),
			Date:        input.Date,
			Period:      period,
			Type:        input.Type,
			Description: input.Description,
			Reference:   input.Reference,
			Status:      EntryStatusDraft,
			TotalDebit:  totalDebit,
			TotalCredit: totalCredit,
			SourceDocID: sourceDocID,
			SourceType:  sourceType,
			CreatedBy:   userID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, input.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.EntryPosted(sourceType)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  userID,
			Action:   "ledger.create",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":      entry.Number,
				"source_type": sourceType,
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// ApproveEntry transitions a DRAFT entry to APPROVED. This is the only
// point where the double-entry invariant is enforced: debits and
// credits must agree within BalanceTolerance.
func (s *Service) ApproveEntry(ctx context.Context, tenantID, entryID, userID int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		debit, credit, err := tx.SumLines(ctx, current.ID)
		if err != nil {
			return err
		}
		if diff := math.Abs(debit - credit); diff > BalanceTolerance {
			return &BalanceError{Difference: diff}
		}
		at := s.now()
		if err := tx.MarkApproved(ctx, tenantID, current.ID, userID, at); err != nil {
			return err
		}
		current.Status = EntryStatusApproved
		current.ApprovedBy = &userID
		current.ApprovedAt = &at
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.EntryApproved(string(entry.Type))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  userID,
			Action:   "ledger.approve",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number": entry.Number,
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// ListEntries returns entries for the tenant ordered by date descending.
// Line detail is omitted; use GetEntry for drill-down.
func (s *Service) ListEntries(ctx context.Context, tenantID int64, filter Filter) ([]JournalEntry, error) {
	if tenantID == 0 {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, filter)
}

// GetEntry returns the full entry with lines and account metadata.
func (s *Service) GetEntry(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	if tenantID == 0 {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, entryID)
}

// FindBySource looks up the entry posted for a business document, if any.
func (s *Service) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	return s.repo.FindBySource(ctx, tenantID, sourceDocID, sourceType)
}

func toJournalLines(entryID int64, lines []LineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:         entryID,
			AccountID:       line.AccountID,
			Debit:           line.Debit,
			Credit:          line.Credit,
			ThirdPartyID:    line.ThirdPartyID,
			ThirdPartyName:  line.ThirdPartyName,
			ThirdPartyTaxID: line.ThirdPartyTaxID,
			CreatedAt:       ts,
		})
	}
	return out
}
