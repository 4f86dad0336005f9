package posting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andino-erp/andino/internal/ledger"
	"github.com/andino-erp/andino/internal/ledger/config"
)

type fakeLedger struct {
	entries map[string]ledger.JournalEntry
	byID    map[int64]ledger.JournalEntry
	nextID  int64
	creates int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		entries: make(map[string]ledger.JournalEntry),
		byID:    make(map[int64]ledger.JournalEntry),
	}
}

func sourceKey(tenantID int64, docID uuid.UUID, sourceType string) string {
	return fmt.Sprintf("%d|%s|%s", tenantID, docID, sourceType)
}

func (l *fakeLedger) CreateForSource(ctx context.Context, tenantID, userID int64, input ledger.EntryInput, sourceDocID uuid.UUID, sourceType string) (ledger.JournalEntry, error) {
	key := sourceKey(tenantID, sourceDocID, sourceType)
	if existing, ok := l.entries[key]; ok {
		return existing, nil
	}
	l.creates++
	l.nextID++
	docID := sourceDocID
	entry := ledger.JournalEntry{
		ID:          l.nextID,
		TenantID:    tenantID,
		Number:      fmt.Sprintf("%s-%04d", ledger.PeriodOf(input.Date), l.nextID),
		Date:        input.Date,
		Type:        input.Type,
		Description: input.Description,
		Reference:   input.Reference,
		Status:      ledger.EntryStatusDraft,
		SourceDocID: &docID,
		SourceType:  sourceType,
		CreatedBy:   userID,
	}
	for _, line := range input.Lines {
		entry.TotalDebit += line.Debit
		entry.TotalCredit += line.Credit
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			EntryID:         entry.ID,
			AccountID:       line.AccountID,
			Debit:           line.Debit,
			Credit:          line.Credit,
			ThirdPartyID:    line.ThirdPartyID,
			ThirdPartyName:  line.ThirdPartyName,
			ThirdPartyTaxID: line.ThirdPartyTaxID,
		})
	}
	l.entries[key] = entry
	l.byID[entry.ID] = entry
	return entry, nil
}

func (l *fakeLedger) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (ledger.JournalEntry, error) {
	entry, ok := l.entries[sourceKey(tenantID, sourceDocID, sourceType)]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return entry, nil
}

func (l *fakeLedger) GetEntry(ctx context.Context, tenantID, entryID int64) (ledger.JournalEntry, error) {
	entry, ok := l.byID[entryID]
	if !ok || entry.TenantID != tenantID {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return entry, nil
}

type fakeConfig struct {
	roles map[config.Role]int64
}

func (c *fakeConfig) ResolveRole(ctx context.Context, tenantID int64, role config.Role) (int64, error) {
	id, ok := c.roles[role]
	if !ok {
		return 0, &config.MissingRolesError{Roles: []config.Role{role}}
	}
	return id, nil
}

func (c *fakeConfig) RequireRoles(ctx context.Context, tenantID int64, roles ...config.Role) (map[config.Role]int64, error) {
	resolved := make(map[config.Role]int64, len(roles))
	var missing []config.Role
	for _, role := range roles {
		id, ok := c.roles[role]
		if !ok {
			missing = append(missing, role)
			continue
		}
		resolved[role] = id
	}
	if len(missing) > 0 {
		return nil, &config.MissingRolesError{Roles: missing}
	}
	return resolved, nil
}

type stubDocs struct {
	invoices map[uuid.UUID]Invoice
	payments map[uuid.UUID]Payment
	notes    map[uuid.UUID]CreditNote
	returned map[uuid.UUID][]ReturnedItem
	payrolls map[uuid.UUID]PayrollRun
}

func newStubDocs() *stubDocs {
	return &stubDocs{
		invoices: make(map[uuid.UUID]Invoice),
		payments: make(map[uuid.UUID]Payment),
		notes:    make(map[uuid.UUID]CreditNote),
		returned: make(map[uuid.UUID][]ReturnedItem),
		payrolls: make(map[uuid.UUID]PayrollRun),
	}
}

func (d *stubDocs) GetInvoice(ctx context.Context, tenantID int64, invoiceID uuid.UUID) (Invoice, error) {
	inv, ok := d.invoices[invoiceID]
	if !ok {
		return Invoice{}, fmt.Errorf("stub: invoice %s not found", invoiceID)
	}
	return inv, nil
}

func (d *stubDocs) GetPayment(ctx context.Context, tenantID int64, paymentID uuid.UUID) (Payment, error) {
	pay, ok := d.payments[paymentID]
	if !ok {
		return Payment{}, fmt.Errorf("stub: payment %s not found", paymentID)
	}
	return pay, nil
}

func (d *stubDocs) GetCreditNote(ctx context.Context, tenantID int64, creditNoteID uuid.UUID) (CreditNote, error) {
	note, ok := d.notes[creditNoteID]
	if !ok {
		return CreditNote{}, fmt.Errorf("stub: credit note %s not found", creditNoteID)
	}
	return note, nil
}

func (d *stubDocs) GetReturnedItems(ctx context.Context, tenantID int64, creditNoteID uuid.UUID, warehouseID int64) ([]ReturnedItem, error) {
	return d.returned[creditNoteID], nil
}

func (d *stubDocs) GetPayrollRun(ctx context.Context, tenantID int64, periodID uuid.UUID) (PayrollRun, error) {
	run, ok := d.payrolls[periodID]
	if !ok {
		return PayrollRun{}, fmt.Errorf("stub: payroll run %s not found", periodID)
	}
	return run, nil
}

func fullRoleSet() *fakeConfig {
	return &fakeConfig{roles: map[config.Role]int64{
		config.RoleCash:               10,
		config.RoleBank:               11,
		config.RoleAccountsReceivable: 12,
		config.RoleAccountsPayable:    13,
		config.RoleInventory:          14,
		config.RoleSalesRevenue:       15,
		config.RoleVATGenerated:       16,
		config.RoleCostOfSales:        17,
		config.RoleSalaryExpense:      18,
		config.RolePayrollLiability:   19,
	}}
}

func testHooks(cfg *fakeConfig, docs *stubDocs) (*Hooks, *fakeLedger) {
	lg := newFakeLedger()
	h := NewHooks(lg, cfg, docs, docs, docs, docs, nil)
	h.WithNow(func() time.Time {
		return time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	})
	return h, lg
}

func customer() ThirdParty {
	id := int64(42)
	name := "Constructora ABC"
	taxID := "900123456-7"
	return ThirdParty{ID: &id, Name: &name, TaxID: &taxID}
}

func sampleInvoice(id uuid.UUID) Invoice {
	return Invoice{
		ID:               id,
		Number:           "FV-0042",
		Date:             time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		Customer:         customer(),
		Subtotal:         100,
		Tax:              19,
		Total:            119,
		Electronic:       true,
		ElectronicStatus: InvoiceStatusAccepted,
		Items: []InvoiceItem{
			{ProductID: 1, Qty: 2, UnitCost: 20, StockTracked: true},
			{ProductID: 2, Qty: 1, UnitCost: 35, StockTracked: false},
		},
	}
}

func TestPostInvoice(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	docs.invoices[invoiceID] = sampleInvoice(invoiceID)
	h, lg := testHooks(fullRoleSet(), docs)

	entry, err := h.PostInvoice(context.Background(), invoiceID, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, ledger.EntryTypeIncome, entry.Type)
	require.Equal(t, SourceTypeInvoice, entry.SourceType)
	require.Len(t, entry.Lines, 3)

	ar := entry.Lines[0]
	require.Equal(t, int64(12), ar.AccountID)
	require.InDelta(t, 119.0, ar.Debit, 0.001)
	require.NotNil(t, ar.ThirdPartyName)
	require.Equal(t, "Constructora ABC", *ar.ThirdPartyName)

	require.Equal(t, int64(15), entry.Lines[1].AccountID)
	require.InDelta(t, 100.0, entry.Lines[1].Credit, 0.001)
	require.Equal(t, int64(16), entry.Lines[2].AccountID)
	require.InDelta(t, 19.0, entry.Lines[2].Credit, 0.001)

	require.InDelta(t, entry.TotalDebit, entry.TotalCredit, 0.001)
	require.Equal(t, 1, lg.creates)
}

func TestPostInvoiceZeroTax(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	inv := sampleInvoice(invoiceID)
	inv.Tax = 0
	inv.Total = 100
	docs.invoices[invoiceID] = inv
	// VAT role deliberately unset: a zero-tax invoice must not need it.
	cfg := fullRoleSet()
	delete(cfg.roles, config.RoleVATGenerated)
	h, _ := testHooks(cfg, docs)

	entry, err := h.PostInvoice(context.Background(), invoiceID, 1, 7)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	require.InDelta(t, 100.0, entry.TotalDebit, 0.001)
	require.InDelta(t, 100.0, entry.TotalCredit, 0.001)
}

func TestPostInvoiceMissingRoles(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	docs.invoices[invoiceID] = sampleInvoice(invoiceID)
	cfg := fullRoleSet()
	delete(cfg.roles, config.RoleSalesRevenue)
	delete(cfg.roles, config.RoleVATGenerated)
	h, lg := testHooks(cfg, docs)

	_, err := h.PostInvoice(context.Background(), invoiceID, 1, 7)
	var missing *config.MissingRolesError
	require.ErrorAs(t, err, &missing)
	require.ElementsMatch(t, []config.Role{config.RoleSalesRevenue, config.RoleVATGenerated}, missing.Roles)
	require.Zero(t, lg.creates)
}

func TestPostInvoiceIdempotent(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	docs.invoices[invoiceID] = sampleInvoice(invoiceID)
	h, lg := testHooks(fullRoleSet(), docs)
	ctx := context.Background()

	first, err := h.PostInvoice(ctx, invoiceID, 1, 7)
	require.NoError(t, err)
	second, err := h.PostInvoice(ctx, invoiceID, 1, 7)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, lg.creates)
}

func TestReverseInvoice(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	docs.invoices[invoiceID] = sampleInvoice(invoiceID)
	h, _ := testHooks(fullRoleSet(), docs)
	ctx := context.Background()

	original, err := h.PostInvoice(ctx, invoiceID, 1, 7)
	require.NoError(t, err)

	reversal, err := h.ReverseInvoice(ctx, invoiceID, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, reversal)
	require.Equal(t, SourceTypeInvoiceReversal, reversal.SourceType)
	require.Len(t, reversal.Lines, len(original.Lines))
	for i, line := range reversal.Lines {
		require.Equal(t, original.Lines[i].AccountID, line.AccountID)
		require.InDelta(t, original.Lines[i].Debit, line.Credit, 0.001)
		require.InDelta(t, original.Lines[i].Credit, line.Debit, 0.001)
	}

	// Reversing twice returns the same reversal entry.
	again, err := h.ReverseInvoice(ctx, invoiceID, 1, 7)
	require.NoError(t, err)
	require.Equal(t, reversal.ID, again.ID)
}

func TestReverseInvoiceNeverPosted(t *testing.T) {
	h, _ := testHooks(fullRoleSet(), newStubDocs())

	entry, err := h.ReverseInvoice(context.Background(), uuid.New(), 1, 7)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestPostPaymentMethods(t *testing.T) {
	cases := []struct {
		name        string
		method      string
		roles       *fakeConfig
		wantAccount int64
	}{
		{"cash", PaymentMethodCash, fullRoleSet(), 10},
		{"card uses bank", PaymentMethodCard, fullRoleSet(), 11},
		{"transfer uses bank", PaymentMethodTransfer, fullRoleSet(), 11},
	}
	noBank := fullRoleSet()
	delete(noBank.roles, config.RoleBank)
	cases = append(cases, struct {
		name        string
		method      string
		roles       *fakeConfig
		wantAccount int64
	}{"card without bank falls back to cash", PaymentMethodCard, noBank, 10})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs := newStubDocs()
			paymentID := uuid.New()
			docs.payments[paymentID] = Payment{
				ID:       paymentID,
				Number:   "RC-0007",
				Date:     time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC),
				Method:   tc.method,
				Amount:   59.5,
				Customer: customer(),
			}
			h, _ := testHooks(tc.roles, docs)

			entry, err := h.PostPayment(context.Background(), paymentID, 1, 7)
			require.NoError(t, err)
			require.Len(t, entry.Lines, 2)
			require.Equal(t, tc.wantAccount, entry.Lines[0].AccountID)
			require.InDelta(t, 59.5, entry.Lines[0].Debit, 0.001)
			require.Equal(t, int64(12), entry.Lines[1].AccountID)
			require.InDelta(t, 59.5, entry.Lines[1].Credit, 0.001)
			require.NotNil(t, entry.Lines[1].ThirdPartyID)
		})
	}
}

func TestPostCostOfSales(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	docs.invoices[invoiceID] = sampleInvoice(invoiceID)
	h, _ := testHooks(fullRoleSet(), docs)

	entry, err := h.PostCostOfSales(context.Background(), invoiceID, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, ledger.EntryTypeCostSales, entry.Type)
	require.Len(t, entry.Lines, 2)
	// Only the stock-tracked item counts: 2 x 20.
	require.Equal(t, int64(17), entry.Lines[0].AccountID)
	require.InDelta(t, 40.0, entry.Lines[0].Debit, 0.001)
	require.Equal(t, int64(14), entry.Lines[1].AccountID)
	require.InDelta(t, 40.0, entry.Lines[1].Credit, 0.001)
}

func TestPostCostOfSalesZeroCost(t *testing.T) {
	docs := newStubDocs()
	invoiceID := uuid.New()
	inv := sampleInvoice(invoiceID)
	inv.Items = []InvoiceItem{{ProductID: 2, Qty: 1, UnitCost: 35, StockTracked: false}}
	docs.invoices[invoiceID] = inv
	h, lg := testHooks(fullRoleSet(), docs)

	entry, err := h.PostCostOfSales(context.Background(), invoiceID, 1, 7)
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Zero(t, lg.creates)
}

func TestPostInventoryPurchase(t *testing.T) {
	h, _ := testHooks(fullRoleSet(), newStubDocs())
	purchaseID := uuid.New()
	supplierID := int64(55)
	supplierName := "Ferreteria El Tornillo"

	entry, err := h.PostInventoryPurchase(context.Background(), purchaseID, 1, 7, 250, ThirdParty{ID: &supplierID, Name: &supplierName})
	require.NoError(t, err)
	require.Equal(t, ledger.EntryTypeExpense, entry.Type)
	require.Equal(t, SourceTypePurchase, entry.SourceType)
	require.Equal(t, int64(14), entry.Lines[0].AccountID)
	require.InDelta(t, 250.0, entry.Lines[0].Debit, 0.001)
	require.Equal(t, int64(13), entry.Lines[1].AccountID)
	require.NotNil(t, entry.Lines[1].ThirdPartyID)
	require.Equal(t, supplierID, *entry.Lines[1].ThirdPartyID)

	_, err = h.PostInventoryPurchase(context.Background(), uuid.New(), 1, 7, 0, ThirdParty{})
	require.Error(t, err)
}

func sampleCreditNote(noteID, invoiceID uuid.UUID) CreditNote {
	return CreditNote{
		ID:       noteID,
		Number:   "NC-0003",
		Date:     time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC),
		Invoice:  sampleInvoice(invoiceID),
		Customer: customer(),
		Subtotal: 100,
		Tax:      19,
		Total:    119,
	}
}

func TestPostCreditNote(t *testing.T) {
	docs := newStubDocs()
	noteID := uuid.New()
	docs.notes[noteID] = sampleCreditNote(noteID, uuid.New())
	h, _ := testHooks(fullRoleSet(), docs)

	entry, err := h.PostCreditNote(context.Background(), noteID, 1, 7)
	require.NoError(t, err)
	require.Equal(t, SourceTypeCreditNote, entry.SourceType)
	require.Len(t, entry.Lines, 3)
	// Mirror of the invoice entry: revenue and VAT debited, AR credited.
	require.InDelta(t, 100.0, entry.Lines[0].Debit, 0.001)
	require.InDelta(t, 19.0, entry.Lines[1].Debit, 0.001)
	require.Equal(t, int64(12), entry.Lines[2].AccountID)
	require.InDelta(t, 119.0, entry.Lines[2].Credit, 0.001)
}

func TestPostCreditNoteIneligibleInvoice(t *testing.T) {
	docs := newStubDocs()
	noteID := uuid.New()
	note := sampleCreditNote(noteID, uuid.New())
	note.Invoice.Electronic = false
	docs.notes[noteID] = note
	h, _ := testHooks(fullRoleSet(), docs)

	_, err := h.PostCreditNote(context.Background(), noteID, 1, 7)
	require.ErrorIs(t, err, ErrInvoiceNotEligible)

	draft := sampleCreditNote(noteID, uuid.New())
	draft.Invoice.ElectronicStatus = "DRAFT"
	docs.notes[noteID] = draft
	_, err = h.PostCreditNote(context.Background(), noteID, 1, 7)
	require.ErrorIs(t, err, ErrInvoiceNotEligible)
}

func TestPostCreditNoteWrapsConfigGap(t *testing.T) {
	docs := newStubDocs()
	noteID := uuid.New()
	docs.notes[noteID] = sampleCreditNote(noteID, uuid.New())
	cfg := fullRoleSet()
	delete(cfg.roles, config.RoleSalesRevenue)
	h, _ := testHooks(cfg, docs)

	_, err := h.PostCreditNote(context.Background(), noteID, 1, 7)
	var postErr *LedgerPostError
	require.ErrorAs(t, err, &postErr)
	require.True(t, postErr.Retryable)
	var missing *config.MissingRolesError
	require.ErrorAs(t, err, &missing)
}

func TestReverseCostForReturn(t *testing.T) {
	docs := newStubDocs()
	noteID := uuid.New()
	docs.notes[noteID] = sampleCreditNote(noteID, uuid.New())
	docs.returned[noteID] = []ReturnedItem{
		{ProductID: 1, Qty: 2, UnitCost: 20},
		{ProductID: 3, Qty: 1, UnitCost: 5},
	}
	h, _ := testHooks(fullRoleSet(), docs)

	entry, err := h.ReverseCostForReturn(context.Background(), noteID, 3, 1, 7)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, int64(14), entry.Lines[0].AccountID)
	require.InDelta(t, 45.0, entry.Lines[0].Debit, 0.001)
	require.Equal(t, int64(17), entry.Lines[1].AccountID)
	require.InDelta(t, 45.0, entry.Lines[1].Credit, 0.001)
}

func TestReverseCostForReturnNothingRestocked(t *testing.T) {
	docs := newStubDocs()
	noteID := uuid.New()
	docs.notes[noteID] = sampleCreditNote(noteID, uuid.New())
	h, lg := testHooks(fullRoleSet(), docs)

	entry, err := h.ReverseCostForReturn(context.Background(), noteID, 3, 1, 7)
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Zero(t, lg.creates)
}

func TestPostPayroll(t *testing.T) {
	docs := newStubDocs()
	periodID := uuid.New()
	docs.payrolls[periodID] = PayrollRun{
		ID:              periodID,
		Name:            "2025-03",
		Date:            time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
		TotalEarnings:   5000,
		TotalDeductions: 800,
		NetPay:          4200,
	}
	h, _ := testHooks(fullRoleSet(), docs)

	entry, err := h.PostPayroll(context.Background(), periodID, 1, 7)
	require.NoError(t, err)
	require.Equal(t, ledger.EntryTypeComprobanteEgreso, entry.Type)
	require.Equal(t, ledger.EntryStatusDraft, entry.Status)
	require.Len(t, entry.Lines, 3)
	require.Equal(t, int64(18), entry.Lines[0].AccountID)
	require.InDelta(t, 5000.0, entry.Lines[0].Debit, 0.001)
	require.Equal(t, int64(19), entry.Lines[1].AccountID)
	require.InDelta(t, 800.0, entry.Lines[1].Credit, 0.001)
	require.Equal(t, int64(11), entry.Lines[2].AccountID)
	require.InDelta(t, 4200.0, entry.Lines[2].Credit, 0.001)
	require.InDelta(t, entry.TotalDebit, entry.TotalCredit, 0.001)
}

func TestPostPayrollNoDeductions(t *testing.T) {
	docs := newStubDocs()
	periodID := uuid.New()
	docs.payrolls[periodID] = PayrollRun{
		ID:            periodID,
		Name:          "2025-04",
		Date:          time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC),
		TotalEarnings: 3000,
		NetPay:        3000,
	}
	h, _ := testHooks(fullRoleSet(), docs)

	entry, err := h.PostPayroll(context.Background(), periodID, 1, 7)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
}
