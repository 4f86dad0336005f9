package posting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Source types tag journal entries with the originating document
// family. Together with the tenant and document id they form the
// idempotency key; reversal entries use their own type so they never
// collide with the entry they reverse.
const (
	SourceTypeInvoice            = "INVOICE"
	SourceTypeInvoiceReversal    = "INVOICE_REVERSAL"
	SourceTypePayment            = "PAYMENT"
	SourceTypeInvoiceCost        = "INVOICE_COST"
	SourceTypePurchase           = "PURCHASE"
	SourceTypeCreditNote         = "CREDIT_NOTE"
	SourceTypeCreditNoteCostRev  = "CREDIT_NOTE_COST_REVERSAL"
	SourceTypePayroll            = "PAYROLL"
)

// Payment methods recognised by the payment adapter.
const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"
)

// Electronic invoice states eligible for credit notes.
const (
	InvoiceStatusSent     = "SENT"
	InvoiceStatusAccepted = "ACCEPTED"
)

// ThirdParty identifies the customer or supplier attached to a line.
type ThirdParty struct {
	ID    *int64
	Name  *string
	TaxID *string
}

// Invoice is the sale document read by the invoice adapters.
type Invoice struct {
	ID               uuid.UUID
	Number           string
	Date             time.Time
	Customer         ThirdParty
	Subtotal         float64
	Tax              float64
	Total            float64
	Electronic       bool
	ElectronicStatus string
	Items            []InvoiceItem
}

// InvoiceItem carries the cost data needed for cost-of-sales posting.
type InvoiceItem struct {
	ProductID    int64
	Qty          float64
	UnitCost     float64
	StockTracked bool
}

// Payment is the receipt document read by the payment adapter.
type Payment struct {
	ID        uuid.UUID
	Number    string
	InvoiceID uuid.UUID
	Date      time.Time
	Method    string
	Amount    float64
	Customer  ThirdParty
}

// CreditNote is the return/void document read by the credit-note adapters.
type CreditNote struct {
	ID       uuid.UUID
	Number   string
	Date     time.Time
	Invoice  Invoice
	Customer ThirdParty
	Subtotal float64
	Tax      float64
	Total    float64
	Items    []ReturnedItem
}

// ReturnedItem carries the cost of one returned product.
type ReturnedItem struct {
	ProductID int64
	Qty       float64
	UnitCost  float64
}

// PayrollRun is the payroll period totals read by the payroll adapter.
type PayrollRun struct {
	ID              uuid.UUID
	Name            string
	Date            time.Time
	TotalEarnings   float64
	TotalDeductions float64
	NetPay          float64
}

// Reader ports into the owning domain modules. The ledger engine only
// reads source documents; it never mutates them.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, tenantID int64, invoiceID uuid.UUID) (Invoice, error)
}

type PaymentReader interface {
	GetPayment(ctx context.Context, tenantID int64, paymentID uuid.UUID) (Payment, error)
}

type CreditNoteReader interface {
	GetCreditNote(ctx context.Context, tenantID int64, creditNoteID uuid.UUID) (CreditNote, error)
	// GetReturnedItems resolves the returned items restocked into a
	// warehouse, with their product cost.
	GetReturnedItems(ctx context.Context, tenantID int64, creditNoteID uuid.UUID, warehouseID int64) ([]ReturnedItem, error)
}

type PayrollReader interface {
	GetPayrollRun(ctx context.Context, tenantID int64, periodID uuid.UUID) (PayrollRun, error)
}
