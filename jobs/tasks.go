package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity is the task type for the ledger integrity scan.
	TaskLedgerIntegrity = "ledger:integrity"
)

// Posting task types, one per business event family. The operational
// modules enqueue these when a document is finalised; the worker turns
// each into a journal entry through the posting adapters.
const (
	TaskLedgerPostInvoice       = "ledger:post_invoice"
	TaskLedgerReverseInvoice    = "ledger:reverse_invoice"
	TaskLedgerPostPayment       = "ledger:post_payment"
	TaskLedgerPostCostOfSales   = "ledger:post_cost_of_sales"
	TaskLedgerPostPurchase      = "ledger:post_purchase"
	TaskLedgerPostCreditNote    = "ledger:post_credit_note"
	TaskLedgerReverseReturnCost = "ledger:reverse_return_cost"
	TaskLedgerPostPayroll       = "ledger:post_payroll"
)

// LedgerIntegrityPayload scopes an integrity scan. TenantID zero means
// scan every tenant.
type LedgerIntegrityPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// DocumentPostingPayload identifies one source document to post. Used
// by every posting task that reads its document from the database.
type DocumentPostingPayload struct {
	TenantID int64     `json:"tenant_id"`
	UserID   int64     `json:"user_id"`
	DocID    uuid.UUID `json:"doc_id"`
}

// PurchasePostingPayload carries the receipt data for a goods receipt
// posting; purchases pass their totals inline instead of being re-read.
type PurchasePostingPayload struct {
	TenantID      int64     `json:"tenant_id"`
	UserID        int64     `json:"user_id"`
	PurchaseID    uuid.UUID `json:"purchase_id"`
	TotalCost     float64   `json:"total_cost"`
	SupplierID    *int64    `json:"supplier_id,omitempty"`
	SupplierName  *string   `json:"supplier_name,omitempty"`
	SupplierTaxID *string   `json:"supplier_tax_id,omitempty"`
}

// ReturnCostPayload identifies the credit note and warehouse for a
// returned-goods cost reversal.
type ReturnCostPayload struct {
	TenantID     int64     `json:"tenant_id"`
	UserID       int64     `json:"user_id"`
	CreditNoteID uuid.UUID `json:"credit_note_id"`
	WarehouseID  int64     `json:"warehouse_id"`
}

// NewDocumentPostingTask constructs a posting task of the given type.
func NewDocumentPostingTask(taskType string, payload DocumentPostingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewPurchasePostingTask constructs a goods receipt posting task.
func NewPurchasePostingTask(payload PurchasePostingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerPostPurchase, data), nil
}

// NewReturnCostTask constructs a returned-goods cost reversal task.
func NewReturnCostTask(payload ReturnCostPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReverseReturnCost, data), nil
}
