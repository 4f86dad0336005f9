package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andino-erp/andino/internal/shared"
)

type memoryLedgerRepo struct {
	entries   map[int64]JournalEntry
	lines     map[int64][]JournalLine
	sequences map[string]int64
	nextID    int64
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		entries:   make(map[int64]JournalEntry),
		lines:     make(map[int64][]JournalLine),
		sequences: make(map[string]int64),
	}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryLedgerTx{repo: r})
}

func (r *memoryLedgerRepo) List(ctx context.Context, tenantID int64, filter Filter) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, entry := range r.entries {
		if entry.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if !filter.DateFrom.IsZero() && entry.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && entry.Date.After(filter.DateTo) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *memoryLedgerRepo) Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	entry, ok := r.entries[entryID]
	if !ok || entry.TenantID != tenantID {
		return JournalEntry{}, ErrEntryNotFound
	}
	entry.Lines = append([]JournalLine(nil), r.lines[entryID]...)
	return entry, nil
}

func (r *memoryLedgerRepo) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	for _, entry := range r.entries {
		if entry.TenantID != tenantID || entry.SourceDocID == nil {
			continue
		}
		if *entry.SourceDocID == sourceDocID && entry.SourceType == sourceType {
			return entry, nil
		}
	}
	return JournalEntry{}, ErrEntryNotFound
}

func (tx *memoryLedgerTx) NextSequence(ctx context.Context, tenantID int64, period string) (int64, error) {
	key := fmt.Sprintf("%d|%s", tenantID, period)
	tx.repo.sequences[key]++
	return tx.repo.sequences[key], nil
}

func (tx *memoryLedgerTx) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	if entry.SourceDocID != nil {
		if _, err := tx.repo.FindBySource(context.Background(), entry.TenantID, *entry.SourceDocID, entry.SourceType); err == nil {
			return JournalEntry{}, ErrSourceConflict
		}
	}
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.entries[entry.ID] = entry
	return entry, nil
}

func (tx *memoryLedgerTx) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		tx.repo.lines[entryID] = append(tx.repo.lines[entryID], JournalLine{
			EntryID:         entryID,
			AccountID:       line.AccountID,
			Debit:           line.Debit,
			Credit:          line.Credit,
			ThirdPartyID:    line.ThirdPartyID,
			ThirdPartyName:  line.ThirdPartyName,
			ThirdPartyTaxID: line.ThirdPartyTaxID,
		})
	}
	return nil
}

func (tx *memoryLedgerTx) GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	return tx.repo.Get(ctx, tenantID, entryID)
}

func (tx *memoryLedgerTx) SumLines(ctx context.Context, entryID int64) (float64, float64, error) {
	var debit, credit float64
	for _, line := range tx.repo.lines[entryID] {
		debit += line.Debit
		credit += line.Credit
	}
	return debit, credit, nil
}

func (tx *memoryLedgerTx) MarkApproved(ctx context.Context, tenantID, entryID, userID int64, at time.Time) error {
	entry, ok := tx.repo.entries[entryID]
	if !ok || entry.TenantID != tenantID {
		return ErrEntryNotFound
	}
	entry.Status = EntryStatusApproved
	entry.ApprovedBy = &userID
	entry.ApprovedAt = &at
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryLedgerTx) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	return tx.repo.FindBySource(ctx, tenantID, sourceDocID, sourceType)
}

type stubAudit struct {
	logs []shared.AuditLog
}

func (a *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
}

func balancedInput(date time.Time) EntryInput {
	return EntryInput{
		Date:        date,
		Type:        EntryTypeJournal,
		Description: "test entry",
		Lines: []LineInput{
			{AccountID: 1, Debit: 119},
			{AccountID: 2, Credit: 100},
			{AccountID: 3, Credit: 19},
		},
	}
}

func TestCreateEntryNumbering(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	svc.WithNow(fixedClock())
	ctx := context.Background()
	march := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	first, err := svc.CreateEntry(ctx, 1, 7, balancedInput(march))
	require.NoError(t, err)
	require.Equal(t, "2025-03-0001", first.Number)
	require.Equal(t, EntryStatusDraft, first.Status)
	require.InDelta(t, 119.0, first.TotalDebit, 0.001)
	require.InDelta(t, 119.0, first.TotalCredit, 0.001)

	second, err := svc.CreateEntry(ctx, 1, 7, balancedInput(march))
	require.NoError(t, err)
	require.Equal(t, "2025-03-0002", second.Number)

	april := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	other, err := svc.CreateEntry(ctx, 1, 7, balancedInput(april))
	require.NoError(t, err)
	require.Equal(t, "2025-04-0001", other.Number)

	// Counters are per tenant: a second tenant starts over.
	neighbor, err := svc.CreateEntry(ctx, 2, 7, balancedInput(march))
	require.NoError(t, err)
	require.Equal(t, "2025-03-0001", neighbor.Number)
}

func TestCreateEntryValidation(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateEntry(ctx, 1, 7, EntryInput{Date: date, Type: EntryTypeJournal})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.CreateEntry(ctx, 0, 7, balancedInput(date))
	require.ErrorIs(t, err, shared.ErrTenantRequired)

	_, err = svc.CreateEntry(ctx, 1, 7, EntryInput{
		Date:  date,
		Type:  EntryTypeJournal,
		Lines: []LineInput{{AccountID: 1, Debit: 50, Credit: 50}},
	})
	require.Error(t, err)

	_, err = svc.CreateEntry(ctx, 1, 7, EntryInput{
		Date:  date,
		Type:  EntryTypeJournal,
		Lines: []LineInput{{AccountID: 1, Debit: -5}},
	})
	require.Error(t, err)

	// Unbalanced drafts are accepted; the gate is approval.
	draft, err := svc.CreateEntry(ctx, 1, 7, EntryInput{
		Date:  date,
		Type:  EntryTypeJournal,
		Lines: []LineInput{{AccountID: 1, Debit: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, draft.Status)
}

func TestApproveEntry(t *testing.T) {
	repo := newMemoryLedgerRepo()
	audit := &stubAudit{}
	svc := NewService(repo, audit, nil)
	svc.WithNow(fixedClock())
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	entry, err := svc.CreateEntry(ctx, 1, 7, balancedInput(date))
	require.NoError(t, err)

	approved, err := svc.ApproveEntry(ctx, 1, entry.ID, 9)
	require.NoError(t, err)
	require.Equal(t, EntryStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, int64(9), *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	require.Equal(t, fixedClock()(), *approved.ApprovedAt)

	_, err = svc.ApproveEntry(ctx, 1, entry.ID, 9)
	require.ErrorIs(t, err, ErrNotDraft)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "ledger.create", audit.logs[0].Action)
	require.Equal(t, "ledger.approve", audit.logs[1].Action)
}

func TestApproveEntryBalanceGate(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	entry, err := svc.CreateEntry(ctx, 1, 7, EntryInput{
		Date: date,
		Type: EntryTypeJournal,
		Lines: []LineInput{
			{AccountID: 1, Debit: 100.05},
			{AccountID: 2, Credit: 100},
		},
	})
	require.NoError(t, err)

	_, err = svc.ApproveEntry(ctx, 1, entry.ID, 9)
	var balanceErr *BalanceError
	require.ErrorAs(t, err, &balanceErr)
	require.InDelta(t, 0.05, balanceErr.Difference, 0.001)

	kept, err := svc.GetEntry(ctx, 1, entry.ID)
	require.NoError(t, err)
	require.Equal(t, EntryStatusDraft, kept.Status)

	// Sub-cent rounding drift is accepted.
	rounding, err := svc.CreateEntry(ctx, 1, 7, EntryInput{
		Date: date,
		Type: EntryTypeJournal,
		Lines: []LineInput{
			{AccountID: 1, Debit: 100.004},
			{AccountID: 2, Credit: 100},
		},
	})
	require.NoError(t, err)
	approved, err := svc.ApproveEntry(ctx, 1, rounding.ID, 9)
	require.NoError(t, err)
	require.Equal(t, EntryStatusApproved, approved.Status)
}

func TestApproveEntryOtherTenant(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	entry, err := svc.CreateEntry(ctx, 1, 7, balancedInput(date))
	require.NoError(t, err)

	_, err = svc.ApproveEntry(ctx, 2, entry.ID, 9)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCreateForSourceIdempotent(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	docID := uuid.New()

	first, err := svc.CreateForSource(ctx, 1, 7, balancedInput(date), docID, "INVOICE")
	require.NoError(t, err)

	second, err := svc.CreateForSource(ctx, 1, 7, balancedInput(date), docID, "INVOICE")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.entries, 1)

	// Same document, different source type is a distinct entry.
	reversal, err := svc.CreateForSource(ctx, 1, 7, balancedInput(date), docID, "INVOICE_REVERSAL")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, reversal.ID)

	// Same tuple under another tenant is also distinct.
	other, err := svc.CreateForSource(ctx, 2, 7, balancedInput(date), docID, "INVOICE")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

// racingLedgerRepo makes the idempotency pre-check miss so the insert
// collides with the unique index, exercising the conflict recovery path.
type racingLedgerRepo struct {
	*memoryLedgerRepo
	misses int
}

func (r *racingLedgerRepo) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	if r.misses > 0 {
		r.misses--
		return JournalEntry{}, ErrEntryNotFound
	}
	return r.memoryLedgerRepo.FindBySource(ctx, tenantID, sourceDocID, sourceType)
}

func TestCreateForSourceLosesRace(t *testing.T) {
	inner := newMemoryLedgerRepo()
	repo := &racingLedgerRepo{memoryLedgerRepo: inner}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	docID := uuid.New()

	winner, err := svc.CreateForSource(ctx, 1, 7, balancedInput(date), docID, "INVOICE")
	require.NoError(t, err)

	// The pre-check misses, the insert hits the unique index, and the
	// existing entry is fetched and returned.
	repo.misses = 1
	loser, err := svc.CreateForSource(ctx, 1, 7, balancedInput(date), docID, "INVOICE")
	require.NoError(t, err)
	require.Equal(t, winner.ID, loser.ID)
	require.Len(t, inner.entries, 1)
}

func TestCreateForSourceRequiresIdentity(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	date := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateForSource(ctx, 1, 7, balancedInput(date), uuid.Nil, "INVOICE")
	require.Error(t, err)

	_, err = svc.CreateForSource(ctx, 1, 7, balancedInput(date), uuid.New(), "")
	require.Error(t, err)
}

func TestListEntriesFilter(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	march := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	april := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)

	first, err := svc.CreateEntry(ctx, 1, 7, balancedInput(march))
	require.NoError(t, err)
	_, err = svc.CreateEntry(ctx, 1, 7, balancedInput(april))
	require.NoError(t, err)
	_, err = svc.ApproveEntry(ctx, 1, first.ID, 9)
	require.NoError(t, err)

	drafts, err := svc.ListEntries(ctx, 1, Filter{Status: EntryStatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	window, err := svc.ListEntries(ctx, 1, Filter{DateFrom: march, DateTo: march})
	require.NoError(t, err)
	require.Len(t, window, 1)
	require.Equal(t, first.ID, window[0].ID)

	_, err = svc.ListEntries(ctx, 0, Filter{})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}
