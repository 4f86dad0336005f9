package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andino-erp/andino/internal/ledger"
	"github.com/andino-erp/andino/internal/ledger/config"
)

// Ledger exposes the journal operations adapters need.
type Ledger interface {
	CreateForSource(ctx context.Context, tenantID, userID int64, input ledger.EntryInput, sourceDocID uuid.UUID, sourceType string) (ledger.JournalEntry, error)
	FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (ledger.JournalEntry, error)
	GetEntry(ctx context.Context, tenantID, entryID int64) (ledger.JournalEntry, error)
}

// ConfigStore resolves semantic roles to chart accounts.
type ConfigStore interface {
	ResolveRole(ctx context.Context, tenantID int64, role config.Role) (int64, error)
	RequireRoles(ctx context.Context, tenantID int64, roles ...config.Role) (map[config.Role]int64, error)
}

// Hooks wires business events from the operational modules into the
// ledger. One method per event family; each loads the source document,
// checks idempotency, resolves the account configuration, builds a
// balanced line set and posts it tagged with the document identity.
type Hooks struct {
	ledger      Ledger
	cfg         ConfigStore
	invoices    InvoiceReader
	payments    PaymentReader
	creditNotes CreditNoteReader
	payroll     PayrollReader
	logger      *slog.Logger
	now         func() time.Time
}

// NewHooks constructs the posting adapters.
func NewHooks(lg Ledger, cfg ConfigStore, invoices InvoiceReader, payments PaymentReader, creditNotes CreditNoteReader, payroll PayrollReader, logger *slog.Logger) *Hooks {
	return &Hooks{
		ledger:      lg,
		cfg:         cfg,
		invoices:    invoices,
		payments:    payments,
		creditNotes: creditNotes,
		payroll:     payroll,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the adapter clock for testing.
func (h *Hooks) WithNow(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// existing returns the already-posted entry for the source tuple, if any.
func (h *Hooks) existing(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (*ledger.JournalEntry, error) {
	entry, err := h.ledger.FindBySource(ctx, tenantID, sourceDocID, sourceType)
	if err == nil {
		return &entry, nil
	}
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return nil, nil
	}
	return nil, err
}

// PostInvoice posts the revenue entry for a sale: receivable debit for
// the full total against revenue and, when tax is due, generated VAT.
func (h *Hooks) PostInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error) {
	inv, err := h.invoices.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if entry, err := h.existing(ctx, tenantID, inv.ID, SourceTypeInvoice); entry != nil || err != nil {
		return entry, err
	}

	need := []config.Role{config.RoleAccountsReceivable, config.RoleSalesRevenue}
	if inv.Tax > 0 {
		need = append(need, config.RoleVATGenerated)
	}
	accounts, err := h.cfg.RequireRoles(ctx, tenantID, need...)
	if err != nil {
		return nil, err
	}

	lines := []ledger.LineInput{
		{
			AccountID:       accounts[config.RoleAccountsReceivable],
			Debit:           round2(inv.Total),
			ThirdPartyID:    inv.Customer.ID,
			ThirdPartyName:  inv.Customer.Name,
			ThirdPartyTaxID: inv.Customer.TaxID,
		},
		{AccountID: accounts[config.RoleSalesRevenue], Credit: round2(inv.Subtotal)},
	}
	if inv.Tax > 0 {
		lines = append(lines, ledger.LineInput{AccountID: accounts[config.RoleVATGenerated], Credit: round2(inv.Tax)})
	}

	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        inv.Date,
		Type:        ledger.EntryTypeIncome,
		Description: fmt.Sprintf("Invoice %s", inv.Number),
		Reference:   inv.Number,
		Lines:       lines,
	}, inv.ID, SourceTypeInvoice)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReverseInvoice posts a new entry that mirrors the invoice entry line
// for line, debits and credits swapped. A voided invoice never mutates
// its original entry. No-op when the invoice was never posted.
func (h *Hooks) ReverseInvoice(ctx context.Context, invoiceID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error) {
	original, err := h.existing(ctx, tenantID, invoiceID, SourceTypeInvoice)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, nil
	}
	if entry, err := h.existing(ctx, tenantID, invoiceID, SourceTypeInvoiceReversal); entry != nil || err != nil {
		return entry, err
	}
	full, err := h.ledger.GetEntry(ctx, tenantID, original.ID)
	if err != nil {
		return nil, err
	}

	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        full.Date,
		Type:        full.Type,
		Description: fmt.Sprintf("Reversal of %s", full.Number),
		Reference:   full.Reference,
		Lines:       swapLines(full.Lines),
	}, invoiceID, SourceTypeInvoiceReversal)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PostPayment posts a received payment: cash or bank debit against the
// customer receivable. CARD and TRANSFER use the bank role, falling
// back to cash when the tenant has no bank account mapped.
func (h *Hooks) PostPayment(ctx context.Context, paymentID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error) {
	pay, err := h.payments.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if entry, err := h.existing(ctx, tenantID, pay.ID, SourceTypePayment); entry != nil || err != nil {
		return entry, err
	}

	debitAccount, err := h.resolveFundsAccount(ctx, tenantID, pay.Method)
	if err != nil {
		return nil, err
	}
	arAccount, err := h.cfg.ResolveRole(ctx, tenantID, config.RoleAccountsReceivable)
	if err != nil {
		return nil, err
	}

	amount := round2(pay.Amount)
	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        pay.Date,
		Type:        ledger.EntryTypeIncome,
		Description: fmt.Sprintf("Payment %s", pay.Number),
		Reference:   pay.Number,
		Lines: []ledger.LineInput{
			{AccountID: debitAccount, Debit: amount},
			{
				AccountID:       arAccount,
				Credit:          amount,
				ThirdPartyID:    pay.Customer.ID,
				ThirdPartyName:  pay.Customer.Name,
				ThirdPartyTaxID: pay.Customer.TaxID,
			},
		},
	}, pay.ID, SourceTypePayment)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// resolveFundsAccount maps a payment method to the cash or bank role.
func (h *Hooks) resolveFundsAccount(ctx context.Context, tenantID int64, method string) (int64, error) {
	if method == PaymentMethodCard || method == PaymentMethodTransfer {
		accountID, err := h.cfg.ResolveRole(ctx, tenantID, config.RoleBank)
		if err == nil {
			return accountID, nil
		}
		var missing *config.MissingRolesError
		if !errors.As(err, &missing) {
			return 0, err
		}
		// Bank role unset: electronic payments land on the cash account.
		if h.logger != nil {
			h.logger.Warn("bank role not configured, falling back to cash", slog.String("method", method))
		}
	}
	return h.cfg.ResolveRole(ctx, tenantID, config.RoleCash)
}

// PostCostOfSales posts the cost entry for an invoice: cost of sales
// against inventory, summed over stock-tracked items. Skipped entirely
// when the computed cost is zero.
func (h *Hooks) PostCostOfSales(ctx context.Context, invoiceID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error) {
	inv, err := h.invoices.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if entry, err := h.existing(ctx, tenantID, inv.ID, SourceTypeInvoiceCost); entry != nil || err != nil {
		return entry, err
	}

	var cost float64
	for _, item := range inv.Items {
		if !item.StockTracked {
			continue
		}
		cost += monetary(item.Qty, item.UnitCost)
	}
	cost = round2(cost)
	if cost == 0 {
		return nil, nil
	}

	accounts, err := h.cfg.RequireRoles(ctx, tenantID, config.RoleCostOfSales, config.RoleInventory)
	if err != nil {
		return nil, err
	}
	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        inv.Date,
		Type:        ledger.EntryTypeCostSales,
		Description: fmt.Sprintf("Cost of sales for invoice %s", inv.Number),
		Reference:   inv.Number,
		Lines: []ledger.LineInput{
			{AccountID: accounts[config.RoleCostOfSales], Debit: cost},
			{AccountID: accounts[config.RoleInventory], Credit: cost},
		},
	}, inv.ID, SourceTypeInvoiceCost)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PostInventoryPurchase posts a goods receipt: inventory debit against
// the supplier payable.
func (h *Hooks) PostInventoryPurchase(ctx context.Context, purchaseID uuid.UUID, tenantID, userID int64, totalCost float64, supplier ThirdParty) (*ledger.JournalEntry, error) {
	if totalCost <= 0 {
		return nil, fmt.Errorf("posting: purchase %s total cost must be positive", purchaseID)
	}
	if entry, err := h.existing(ctx, tenantID, purchaseID, SourceTypePurchase); entry != nil || err != nil {
		return entry, err
	}

	accounts, err := h.cfg.RequireRoles(ctx, tenantID, config.RoleInventory, config.RoleAccountsPayable)
	if err != nil {
		return nil, err
	}
	amount := round2(totalCost)
	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        h.now(),
		Type:        ledger.EntryTypeExpense,
		Description: fmt.Sprintf("Inventory purchase %s", purchaseID),
		Lines: []ledger.LineInput{
			{AccountID: accounts[config.RoleInventory], Debit: amount},
			{
				AccountID:       accounts[config.RoleAccountsPayable],
				Credit:          amount,
				ThirdPartyID:    supplier.ID,
				ThirdPartyName:  supplier.Name,
				ThirdPartyTaxID: supplier.TaxID,
			},
		},
	}, purchaseID, SourceTypePurchase)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PostCreditNote posts the return entry for a credit note: the exact
// mirror of the invoice entry. Only electronic invoices already SENT or
// ACCEPTED may receive one. Failures are wrapped as LedgerPostError so
// the surrounding document transaction can proceed; the caller logs the
// gap instead of aborting.
func (h *Hooks) PostCreditNote(ctx context.Context, creditNoteID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error) {
	note, err := h.creditNotes.GetCreditNote(ctx, tenantID, creditNoteID)
	if err != nil {
		return nil, err
	}
	if !note.Invoice.Electronic || (note.Invoice.ElectronicStatus != InvoiceStatusSent && note.Invoice.ElectronicStatus != InvoiceStatusAccepted) {
		return nil, ErrInvoiceNotEligible
	}
	if entry, err := h.existing(ctx, tenantID, note.ID, SourceTypeCreditNote); entry != nil || err != nil {
		return entry, err
	}

	need := []config.Role{config.RoleSalesRevenue, config.RoleAccountsReceivable}
	if note.Tax > 0 {
		need = append(need, config.RoleVATGenerated)
	}
	accounts, err := h.cfg.RequireRoles(ctx, tenantID, need...)
	if err != nil {
		return nil, wrapLedgerPostError(err)
	}

	lines := []ledger.LineInput{
		{AccountID: accounts[config.RoleSalesRevenue], Debit: round2(note.Subtotal)},
	}
	if note.Tax > 0 {
		lines = append(lines, ledger.LineInput{AccountID: accounts[config.RoleVATGenerated], Debit: round2(note.Tax)})
	}
	lines = append(lines, ledger.LineInput{
		AccountID:       accounts[config.RoleAccountsReceivable],
		Credit:          round2(note.Total),
		ThirdPartyID:    note.Customer.ID,
		ThirdPartyName:  note.Customer.Name,
		ThirdPartyTaxID: note.Customer.TaxID,
	})

	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        note.Date,
		Type:        ledger.EntryTypeIncome,
		Description: fmt.Sprintf("Credit note %s for invoice %s", note.Number, note.Invoice.Number),
		Reference:   note.Number,
		Lines:       lines,
	}, note.ID, SourceTypeCreditNote)
	if err != nil {
		return nil, wrapLedgerPostError(err)
	}
	return &entry, nil
}

// ReverseCostForReturn puts the returned goods cost back into
// inventory: inventory debit against cost of sales. Only created when
// the returned cost is positive; uses its own source type so it never
// collides with the credit-note entry.
func (h *Hooks) ReverseCostForReturn(ctx context.Context, creditNoteID uuid.UUID, warehouseID int64, tenantID, userID int64) (*ledger.JournalEntry, error) {
	note, err := h.creditNotes.GetCreditNote(ctx, tenantID, creditNoteID)
	if err != nil {
		return nil, err
	}
	if entry, err := h.existing(ctx, tenantID, note.ID, SourceTypeCreditNoteCostRev); entry != nil || err != nil {
		return entry, err
	}

	items, err := h.creditNotes.GetReturnedItems(ctx, tenantID, creditNoteID, warehouseID)
	if err != nil {
		return nil, err
	}
	var cost float64
	for _, item := range items {
		cost += monetary(item.Qty, item.UnitCost)
	}
	cost = round2(cost)
	if cost <= 0 {
		return nil, nil
	}

	accounts, err := h.cfg.RequireRoles(ctx, tenantID, config.RoleInventory, config.RoleCostOfSales)
	if err != nil {
		return nil, wrapLedgerPostError(err)
	}
	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        note.Date,
		Type:        ledger.EntryTypeCostSales,
		Description: fmt.Sprintf("Cost reversal for credit note %s", note.Number),
		Reference:   note.Number,
		Lines: []ledger.LineInput{
			{AccountID: accounts[config.RoleInventory], Debit: cost},
			{AccountID: accounts[config.RoleCostOfSales], Credit: cost},
		},
	}, note.ID, SourceTypeCreditNoteCostRev)
	if err != nil {
		return nil, wrapLedgerPostError(err)
	}
	return &entry, nil
}

// PostPayroll posts a payroll run: salary expense debit for total
// earnings against payroll liabilities (deductions) and the bank
// account (net pay). Accounts resolve through the configuration store
// and the entry goes through the normal draft gate, the same as every
// other adapter.
func (h *Hooks) PostPayroll(ctx context.Context, periodID uuid.UUID, tenantID, userID int64) (*ledger.JournalEntry, error) {
	run, err := h.payroll.GetPayrollRun(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if entry, err := h.existing(ctx, tenantID, run.ID, SourceTypePayroll); entry != nil || err != nil {
		return entry, err
	}

	accounts, err := h.cfg.RequireRoles(ctx, tenantID, config.RoleSalaryExpense, config.RolePayrollLiability)
	if err != nil {
		return nil, err
	}
	bankAccount, err := h.resolveFundsAccount(ctx, tenantID, PaymentMethodTransfer)
	if err != nil {
		return nil, err
	}

	lines := []ledger.LineInput{
		{AccountID: accounts[config.RoleSalaryExpense], Debit: round2(run.TotalEarnings)},
	}
	if run.TotalDeductions > 0 {
		lines = append(lines, ledger.LineInput{AccountID: accounts[config.RolePayrollLiability], Credit: round2(run.TotalDeductions)})
	}
	lines = append(lines, ledger.LineInput{AccountID: bankAccount, Credit: round2(run.NetPay)})

	entry, err := h.ledger.CreateForSource(ctx, tenantID, userID, ledger.EntryInput{
		Date:        run.Date,
		Type:        ledger.EntryTypeComprobanteEgreso,
		Description: fmt.Sprintf("Payroll %s", run.Name),
		Reference:   run.Name,
		Lines:       lines,
	}, run.ID, SourceTypePayroll)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func swapLines(lines []ledger.JournalLine) []ledger.LineInput {
	out := make([]ledger.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.LineInput{
			AccountID:       line.AccountID,
			Debit:           line.Credit,
			Credit:          line.Debit,
			ThirdPartyID:    line.ThirdPartyID,
			ThirdPartyName:  line.ThirdPartyName,
			ThirdPartyTaxID: line.ThirdPartyTaxID,
		})
	}
	return out
}
