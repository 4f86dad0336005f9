package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound indicates a missing entry, or one owned by another tenant.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrNoLines indicates an entry was submitted without lines.
	ErrNoLines = errors.New("ledger: journal entry requires at least one line")
	// ErrNotDraft indicates approval was attempted on a non-DRAFT entry.
	ErrNotDraft = errors.New("ledger: entry is not in DRAFT status")
	// ErrSourceConflict indicates another entry already exists for the source tuple.
	ErrSourceConflict = errors.New("ledger: source document already posted")
)

// BalanceError is raised at approval time when the entry debits and
// credits diverge beyond the tolerance. It names the discrepancy so the
// operator can trace the adapter bug that produced it.
type BalanceError struct {
	Difference float64
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("ledger: unbalanced entry, debits and credits differ by %.2f", e.Difference)
}
