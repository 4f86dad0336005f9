package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andino-erp/andino/internal/platform/db"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, tenantID int64, filter Filter) ([]JournalEntry, error)
	Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
	FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the write operations available within a transaction.
type TxRepository interface {
	// NextSequence increments and returns the per tenant+period entry
	// counter as one atomic statement.
	NextSequence(ctx context.Context, tenantID int64, period string) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
	SumLines(ctx context.Context, entryID int64) (debit, credit float64, err error)
	MarkApproved(ctx context.Context, tenantID, entryID, userID int64, at time.Time) error
	FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, number, date, period, type, description, reference, status, total_debit, total_credit, source_doc_id, source_type, created_by, approved_by, approved_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.Date, &e.Period, &e.Type, &e.Description, &e.Reference, &e.Status, &e.TotalDebit, &e.TotalCredit, &e.SourceDocID, &e.SourceType, &e.CreatedBy, &e.ApprovedBy, &e.ApprovedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, tenantID int64, filter Filter) ([]JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE tenant_id=$1`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status=$2`
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		query += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		query += ` AND date <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY date DESC, id DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, a.code, a.name, l.debit, l.credit, l.third_party_id, l.third_party_name, l.third_party_tax_id, l.created_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.entry_id=$1 ORDER BY l.id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.AccountName, &line.Debit, &line.Credit, &line.ThirdPartyID, &line.ThirdPartyName, &line.ThirdPartyTaxID, &line.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (r *repository) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND source_doc_id=$2 AND source_type=$3`, tenantID, sourceDocID, sourceType))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextSequence(ctx context.Context, tenantID int64, period string) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_sequences (tenant_id, period, value) VALUES ($1,$2,1)
ON CONFLICT (tenant_id, period) DO UPDATE SET value = entry_sequences.value + 1
RETURNING value`, tenantID, period).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, number, date, period, type, description, reference, status, total_debit, total_credit, source_doc_id, source_type, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at, updated_at`,
		entry.TenantID, entry.Number, entry.Date, entry.Period, entry.Type, entry.Description, entry.Reference, entry.Status, entry.TotalDebit, entry.TotalCredit, entry.SourceDocID, entry.SourceType, entry.CreatedBy)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return JournalEntry{}, ErrSourceConflict
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, third_party_id, third_party_name, third_party_tax_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entryID, line.AccountID, line.Debit, line.Credit, line.ThirdPartyID, line.ThirdPartyName, line.ThirdPartyTaxID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, entryID))
}

func (r *txRepository) SumLines(ctx context.Context, entryID int64) (float64, float64, error) {
	var debit, credit float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM journal_lines WHERE entry_id=$1`, entryID).Scan(&debit, &credit)
	return debit, credit, err
}

func (r *txRepository) MarkApproved(ctx context.Context, tenantID, entryID, userID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$3, approved_by=$4, approved_at=$5, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, entryID, EntryStatusApproved, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) FindBySource(ctx context.Context, tenantID int64, sourceDocID uuid.UUID, sourceType string) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND source_doc_id=$2 AND source_type=$3`, tenantID, sourceDocID, sourceType))
}
