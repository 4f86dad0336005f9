package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the per-tenant role to account mapping. One row
// per tenant; each role is a nullable account foreign key column.
type Repository interface {
	Get(ctx context.Context, tenantID int64) (Config, error)
	Upsert(ctx context.Context, tenantID int64, patch Patch) (Config, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func roleColumn(role Role) string {
	return string(role) + "_account_id"
}

func (r *repository) Get(ctx context.Context, tenantID int64) (Config, error) {
	cols := make([]string, 0, len(AllRoles))
	for _, role := range AllRoles {
		cols = append(cols, roleColumn(role))
	}
	query := `SELECT ` + strings.Join(cols, ", ") + `, updated_at FROM accounting_configs WHERE tenant_id=$1`

	values := make([]*int64, len(AllRoles))
	dests := make([]any, 0, len(AllRoles)+1)
	for i := range values {
		dests = append(dests, &values[i])
	}
	cfg := Config{TenantID: tenantID, Roles: map[Role]int64{}}
	dests = append(dests, &cfg.UpdatedAt)

	if err := r.db.QueryRow(ctx, query, tenantID).Scan(dests...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrConfigNotFound
		}
		return Config{}, err
	}
	for i, role := range AllRoles {
		if values[i] != nil {
			cfg.Roles[role] = *values[i]
		}
	}
	return cfg, nil
}

func (r *repository) Upsert(ctx context.Context, tenantID int64, patch Patch) (Config, error) {
	if len(patch) == 0 {
		return r.Get(ctx, tenantID)
	}
	cols := []string{"tenant_id"}
	placeholders := []string{"$1"}
	updates := []string{"updated_at = NOW()"}
	args := []any{tenantID}
	for _, role := range AllRoles {
		accountID, ok := patch[role]
		if !ok {
			continue
		}
		args = append(args, accountID)
		col := roleColumn(role)
		cols = append(cols, col)
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	query := fmt.Sprintf(`INSERT INTO accounting_configs (%s) VALUES (%s)
ON CONFLICT (tenant_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return Config{}, err
	}
	return r.Get(ctx, tenantID)
}
