package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andino-erp/andino/internal/shared"
)

// Repository reads source documents from the operational tables. It
// satisfies every reader port so a single instance can back all hooks.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the document reader backed by Postgres.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ InvoiceReader = (*Repository)(nil)
var _ PaymentReader = (*Repository)(nil)
var _ CreditNoteReader = (*Repository)(nil)
var _ PayrollReader = (*Repository)(nil)

const invoiceColumns = `i.id, i.number, i.date, i.subtotal, i.tax, i.total,
	i.electronic, i.electronic_status,
	i.customer_id, c.name, c.tax_id`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.Date, &inv.Subtotal, &inv.Tax, &inv.Total,
		&inv.Electronic, &inv.ElectronicStatus,
		&inv.Customer.ID, &inv.Customer.Name, &inv.Customer.TaxID,
	)
	return inv, err
}

// GetInvoice loads an invoice with the item cost data needed for
// cost-of-sales posting.
func (r *Repository) GetInvoice(ctx context.Context, tenantID int64, invoiceID uuid.UUID) (Invoice, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM invoices i
		LEFT JOIN third_parties c ON c.id = i.customer_id
		WHERE i.tenant_id = $1 AND i.id = $2`, invoiceColumns)
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, tenantID, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}

	rows, err := r.db.Query(ctx, `SELECT ii.product_id, ii.qty, ii.unit_cost, p.stock_tracked
		FROM invoice_items ii
		JOIN products p ON p.id = ii.product_id
		WHERE ii.invoice_id = $1
		ORDER BY ii.id`, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.UnitCost, &item.StockTracked); err != nil {
			return Invoice{}, err
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, rows.Err()
}

// GetPayment loads a received payment with its customer identity.
func (r *Repository) GetPayment(ctx context.Context, tenantID int64, paymentID uuid.UUID) (Payment, error) {
	var pay Payment
	err := r.db.QueryRow(ctx, `SELECT p.id, p.number, p.invoice_id, p.date, p.method, p.amount,
			p.customer_id, c.name, c.tax_id
		FROM payments p
		LEFT JOIN third_parties c ON c.id = p.customer_id
		WHERE p.tenant_id = $1 AND p.id = $2`, tenantID, paymentID).Scan(
		&pay.ID, &pay.Number, &pay.InvoiceID, &pay.Date, &pay.Method, &pay.Amount,
		&pay.Customer.ID, &pay.Customer.Name, &pay.Customer.TaxID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	return pay, nil
}

// GetCreditNote loads a credit note together with the invoice it voids.
func (r *Repository) GetCreditNote(ctx context.Context, tenantID int64, creditNoteID uuid.UUID) (CreditNote, error) {
	var note CreditNote
	query := fmt.Sprintf(`SELECT n.id, n.number, n.date, n.subtotal, n.tax, n.total,
			n.customer_id, c.name, c.tax_id,
			%s
		FROM credit_notes n
		LEFT JOIN third_parties c ON c.id = n.customer_id
		JOIN invoices i ON i.id = n.invoice_id
		WHERE n.tenant_id = $1 AND n.id = $2`, invoiceColumns)
	err := r.db.QueryRow(ctx, query, tenantID, creditNoteID).Scan(
		&note.ID, &note.Number, &note.Date, &note.Subtotal, &note.Tax, &note.Total,
		&note.Customer.ID, &note.Customer.Name, &note.Customer.TaxID,
		&note.Invoice.ID, &note.Invoice.Number, &note.Invoice.Date,
		&note.Invoice.Subtotal, &note.Invoice.Tax, &note.Invoice.Total,
		&note.Invoice.Electronic, &note.Invoice.ElectronicStatus,
		&note.Invoice.Customer.ID, &note.Invoice.Customer.Name, &note.Invoice.Customer.TaxID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditNote{}, shared.ErrNotFound
	}
	if err != nil {
		return CreditNote{}, err
	}
	return note, nil
}

// GetReturnedItems resolves the items restocked into the given
// warehouse for a credit note, with their product cost.
func (r *Repository) GetReturnedItems(ctx context.Context, tenantID int64, creditNoteID uuid.UUID, warehouseID int64) ([]ReturnedItem, error) {
	rows, err := r.db.Query(ctx, `SELECT ni.product_id, ni.qty, ni.unit_cost
		FROM credit_note_items ni
		JOIN credit_notes n ON n.id = ni.credit_note_id
		WHERE n.tenant_id = $1 AND ni.credit_note_id = $2 AND ni.warehouse_id = $3
		ORDER BY ni.id`, tenantID, creditNoteID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReturnedItem
	for rows.Next() {
		var item ReturnedItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.UnitCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetPayrollRun loads the totals of a settled payroll period.
func (r *Repository) GetPayrollRun(ctx context.Context, tenantID int64, periodID uuid.UUID) (PayrollRun, error) {
	var run PayrollRun
	err := r.db.QueryRow(ctx, `SELECT id, name, date, total_earnings, total_deductions, net_pay
		FROM payroll_runs
		WHERE tenant_id = $1 AND id = $2`, tenantID, periodID).Scan(
		&run.ID, &run.Name, &run.Date, &run.TotalEarnings, &run.TotalDeductions, &run.NetPay,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayrollRun{}, shared.ErrNotFound
	}
	if err != nil {
		return PayrollRun{}, err
	}
	return run, nil
}
