package posting

import (
	"errors"
	"fmt"

	"github.com/andino-erp/andino/internal/ledger/config"
)

// ErrInvoiceNotEligible indicates a credit note was attempted against
// an invoice that is not an electronic invoice in SENT or ACCEPTED state.
var ErrInvoiceNotEligible = errors.New("posting: invoice not eligible for credit note")

// LedgerPostError indicates the business document was recorded but the
// accounting entry was not posted. Credit-note callers log it and keep
// going; the document transaction is never rolled back for a missing
// account mapping.
type LedgerPostError struct {
	Err       error
	Retryable bool
	Message   string
}

func (e *LedgerPostError) Error() string {
	return e.Message
}

func (e *LedgerPostError) Unwrap() error {
	return e.Err
}

func wrapLedgerPostError(err error) *LedgerPostError {
	if err == nil {
		return nil
	}
	var missing *config.MissingRolesError
	if errors.As(err, &missing) {
		return &LedgerPostError{
			Err:       err,
			Retryable: true,
			Message:   fmt.Sprintf("accounting not posted: %s; complete the account mapping and retry", missing.Error()),
		}
	}
	return &LedgerPostError{
		Err:       err,
		Retryable: false,
		Message:   fmt.Sprintf("accounting not posted: %s", err.Error()),
	}
}
