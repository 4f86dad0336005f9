package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/andino-erp/andino/internal/jobs"
	"github.com/andino-erp/andino/internal/ledger"
	"github.com/andino-erp/andino/internal/posting"
	"github.com/andino-erp/andino/internal/shared"
)

// PostingAdapters is the surface of the posting hooks consumed by the
// worker.
type PostingAdapters interface {
	PostInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)
	ReverseInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)
	PostPayment(ctx context.Context, paymentID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)
	PostCostOfSales(ctx context.Context, invoiceID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)
	PostInventoryPurchase(ctx context.Context, purchaseID uuid.UUID, tenantID, userID int64, totalCost float64, supplier posting.ThirdParty) (*ledger.JournalEntry, error)
	PostCreditNote(ctx context.Context, creditNoteID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)
	ReverseCostForReturn(ctx context.Context, creditNoteID uuid.UUID, warehouseID int64, tenantID, userID int64) (*ledger.JournalEntry, error)
	PostPayroll(ctx context.Context, periodID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)
}

// PostingJob executes queued posting tasks against the ledger. A missing
// account mapping leaves the task in the queue for retry so finishing
// the configuration later completes the posting; permanent conditions
// skip retries.
type PostingJob struct {
	adapters PostingAdapters
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

// NewPostingJob initialises the posting task handlers.
func NewPostingJob(adapters PostingAdapters, metrics *jobmetrics.Metrics, logger *slog.Logger) *PostingJob {
	return &PostingJob{adapters: adapters, metrics: metrics, logger: logger}
}

// Handlers returns the task registrations for the worker.
func (j *PostingJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskLedgerPostInvoice, Handler: j.handleDocument(TaskLedgerPostInvoice, j.adapters.PostInvoice)},
		{Type: TaskLedgerReverseInvoice, Handler: j.handleDocument(TaskLedgerReverseInvoice, j.adapters.ReverseInvoice)},
		{Type: TaskLedgerPostPayment, Handler: j.handleDocument(TaskLedgerPostPayment, j.adapters.PostPayment)},
		{Type: TaskLedgerPostCostOfSales, Handler: j.handleDocument(TaskLedgerPostCostOfSales, j.adapters.PostCostOfSales)},
		{Type: TaskLedgerPostCreditNote, Handler: j.handleDocument(TaskLedgerPostCreditNote, j.adapters.PostCreditNote)},
		{Type: TaskLedgerPostPayroll, Handler: j.handleDocument(TaskLedgerPostPayroll, j.adapters.PostPayroll)},
		{Type: TaskLedgerPostPurchase, Handler: j.handlePurchase},
		{Type: TaskLedgerReverseReturnCost, Handler: j.handleReturnCost},
	}
}

type documentPoster func(ctx context.Context, docID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error)

func (j *PostingJob) handleDocument(taskType string, post documentPoster) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DocumentPostingPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := j.metrics.Track(taskType)
		entry, err := post(ctx, payload.DocID, payload.TenantID, payload.UserID)
		return tracker.End(j.finish(taskType, payload.TenantID, payload.DocID, entry, err))
	}
}

func (j *PostingJob) handlePurchase(ctx context.Context, t *asynq.Task) error {
	var payload PurchasePostingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskLedgerPostPurchase)
	entry, err := j.adapters.PostInventoryPurchase(ctx, payload.PurchaseID, payload.TenantID, payload.UserID, payload.TotalCost, posting.ThirdParty{
		ID:    payload.SupplierID,
		Name:  payload.SupplierName,
		TaxID: payload.SupplierTaxID,
	})
	return tracker.End(j.finish(TaskLedgerPostPurchase, payload.TenantID, payload.PurchaseID, entry, err))
}

func (j *PostingJob) handleReturnCost(ctx context.Context, t *asynq.Task) error {
	var payload ReturnCostPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskLedgerReverseReturnCost)
	entry, err := j.adapters.ReverseCostForReturn(ctx, payload.CreditNoteID, payload.WarehouseID, payload.TenantID, payload.UserID)
	return tracker.End(j.finish(TaskLedgerReverseReturnCost, payload.TenantID, payload.CreditNoteID, entry, err))
}

// finish logs the outcome and classifies the error for Asynq: retryable
// config gaps keep the task queued, permanent conditions drop it.
func (j *PostingJob) finish(taskType string, tenantID int64, docID uuid.UUID, entry *ledger.JournalEntry, err error) error {
	logger := j.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("task", taskType),
		slog.Int64("tenant_id", tenantID),
		slog.String("doc_id", docID.String()),
	)
	if err == nil {
		if entry == nil {
			logger.Info("posting skipped, nothing to record")
			return nil
		}
		logger.Info("posting complete", slog.String("number", entry.Number))
		return nil
	}

	var postErr *posting.LedgerPostError
	if errors.As(err, &postErr) {
		if postErr.Retryable {
			logger.Warn("posting deferred", slog.Any("error", err))
			return err
		}
		logger.Error("posting failed permanently", slog.Any("error", err))
		return fmt.Errorf("%s: %w", postErr.Message, asynq.SkipRetry)
	}
	if errors.Is(err, posting.ErrInvoiceNotEligible) || errors.Is(err, shared.ErrNotFound) {
		logger.Error("posting rejected", slog.Any("error", err))
		return fmt.Errorf("%s: %w", err.Error(), asynq.SkipRetry)
	}
	logger.Error("posting failed", slog.Any("error", err))
	return err
}
