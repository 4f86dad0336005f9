package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus enumerates journal lifecycle values. The transition is
// one-way: DRAFT -> APPROVED. There is no delete.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusApproved EntryStatus = "APPROVED"
)

// EntryType classifies journal entries by originating event family.
type EntryType string

const (
	EntryTypeIncome            EntryType = "INCOME"
	EntryTypeExpense           EntryType = "EXPENSE"
	EntryTypeCostSales         EntryType = "COST_SALES"
	EntryTypeJournal           EntryType = "JOURNAL"
	EntryTypeComprobanteEgreso EntryType = "COMPROBANTE_EGRESO"
)

// BalanceTolerance is the maximum |debits - credits| accepted at approval.
const BalanceTolerance = 0.01

// JournalEntry captures posting metadata for one accounting transaction.
// TotalDebit and TotalCredit are cached sums over the lines and are kept
// in step with them at all times.
type JournalEntry struct {
	ID          int64
	TenantID    int64
	Number      string
	Date        time.Time
	Period      string
	Type        EntryType
	Description string
	Reference   string
	Status      EntryStatus
	TotalDebit  float64
	TotalCredit float64
	SourceDocID *uuid.UUID
	SourceType  string
	CreatedBy   int64
	ApprovedBy  *int64
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores a single debit or credit movement against one
// account. Lines are created atomically with their entry and never
// updated afterwards; corrections are new reversal entries.
type JournalLine struct {
	ID              int64
	EntryID         int64
	AccountID       int64
	AccountCode     string
	AccountName     string
	Debit           float64
	Credit          float64
	ThirdPartyID    *int64
	ThirdPartyName  *string
	ThirdPartyTaxID *string
	CreatedAt       time.Time
}

// PeriodOf derives the accounting period bucket (YYYY-MM) for a date.
func PeriodOf(date time.Time) string {
	return date.Format("2006-01")
}
