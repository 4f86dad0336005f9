package ledger

import (
	"fmt"
	"time"
)

// LineInput describes a journal line for an entry being created.
type LineInput struct {
	AccountID       int64
	Debit           float64
	Credit          float64
	ThirdPartyID    *int64
	ThirdPartyName  *string
	ThirdPartyTaxID *string
}

// EntryInput groups the fields required to create a journal entry.
// Balance is not enforced here: DRAFT entries may be transiently
// unbalanced while they are assembled. The gate is ApproveEntry.
type EntryInput struct {
	Date        time.Time
	Type        EntryType
	Description string
	Reference   string
	Lines       []LineInput
}

// Validate ensures the input meets minimum criteria for creation.
func (in EntryInput) Validate() error {
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	if in.Date.IsZero() {
		return fmt.Errorf("ledger: entry date required")
	}
	if in.Type == "" {
		return fmt.Errorf("ledger: entry type required")
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
	}
	return nil
}

// Totals sums the debit and credit columns across the input lines.
func (in EntryInput) Totals() (debit, credit float64) {
	for _, line := range in.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	return debit, credit
}

// Filter narrows ListEntries results.
type Filter struct {
	Status   EntryStatus
	DateFrom time.Time
	DateTo   time.Time
}
