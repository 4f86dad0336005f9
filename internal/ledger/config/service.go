package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andino-erp/andino/internal/coa"
)

const cacheTTL = 5 * time.Minute

// Service is the Accounting Configuration Store. Every adapter reads
// it before posting; absence of a required role is a hard precondition
// failure for the adapter that needs it.
type Service struct {
	repo     Repository
	accounts coa.Repository
	cache    *redis.Client
	logger   *slog.Logger
}

func NewService(repo Repository, accounts coa.Repository, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, accounts: accounts, cache: cache, logger: logger}
}

func cacheKey(tenantID int64) string {
	return fmt.Sprintf("ledger:cfg:%d", tenantID)
}

// Get returns the full role mapping with accounts resolved.
func (s *Service) Get(ctx context.Context, tenantID int64) (Config, error) {
	cfg, err := s.load(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}
	cfg.Accounts = make(map[Role]coa.Account, len(cfg.Roles))
	for role, accountID := range cfg.Roles {
		account, err := s.accounts.GetByID(ctx, tenantID, accountID)
		if err != nil {
			if errors.Is(err, coa.ErrAccountNotFound) {
				// Stale mapping to a removed account behaves as unset.
				continue
			}
			return Config{}, err
		}
		cfg.Accounts[role] = account
	}
	return cfg, nil
}

// Upsert creates or merges the tenant mapping and invalidates the cache.
func (s *Service) Upsert(ctx context.Context, tenantID int64, patch Patch) (Config, error) {
	for role, accountID := range patch {
		if !knownRole(role) {
			return Config{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		if _, err := s.accounts.GetByID(ctx, tenantID, accountID); err != nil {
			return Config{}, fmt.Errorf("ledger/config: role %s: %w", role, err)
		}
	}
	cfg, err := s.repo.Upsert(ctx, tenantID, patch)
	if err != nil {
		return Config{}, err
	}
	s.invalidate(ctx, tenantID)
	return cfg, nil
}

// Validate reports which required roles the tenant has not mapped yet.
func (s *Service) Validate(ctx context.Context, tenantID int64) (Validation, error) {
	cfg, err := s.load(ctx, tenantID)
	if errors.Is(err, ErrConfigNotFound) {
		return Validation{IsValid: false, MissingRoles: append([]Role(nil), RequiredRoles...)}, nil
	}
	if err != nil {
		return Validation{}, err
	}
	var missing []Role
	for _, role := range RequiredRoles {
		if _, ok := cfg.Roles[role]; !ok {
			missing = append(missing, role)
		}
	}
	return Validation{IsValid: len(missing) == 0, MissingRoles: missing}, nil
}

// ResolveRole returns the account id mapped to a single role.
func (s *Service) ResolveRole(ctx context.Context, tenantID int64, role Role) (int64, error) {
	cfg, err := s.load(ctx, tenantID)
	if errors.Is(err, ErrConfigNotFound) {
		return 0, &MissingRolesError{Roles: []Role{role}}
	}
	if err != nil {
		return 0, err
	}
	accountID, ok := cfg.Roles[role]
	if !ok {
		return 0, &MissingRolesError{Roles: []Role{role}}
	}
	return accountID, nil
}

// RequireRoles resolves several roles at once and reports every gap in
// a single error, so the operator sees the whole mapping shortfall.
func (s *Service) RequireRoles(ctx context.Context, tenantID int64, roles ...Role) (map[Role]int64, error) {
	cfg, err := s.load(ctx, tenantID)
	if errors.Is(err, ErrConfigNotFound) {
		return nil, &MissingRolesError{Roles: roles}
	}
	if err != nil {
		return nil, err
	}
	resolved := make(map[Role]int64, len(roles))
	var missing []Role
	for _, role := range roles {
		accountID, ok := cfg.Roles[role]
		if !ok {
			missing = append(missing, role)
			continue
		}
		resolved[role] = accountID
	}
	if len(missing) > 0 {
		return nil, &MissingRolesError{Roles: missing}
	}
	return resolved, nil
}

// load fetches the raw role map, preferring the cache.
func (s *Service) load(ctx context.Context, tenantID int64) (Config, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(tenantID)).Bytes()
		if err == nil {
			var roles map[Role]int64
			if err := json.Unmarshal(raw, &roles); err == nil {
				return Config{TenantID: tenantID, Roles: roles}, nil
			}
		} else if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("config cache read failed", slog.Any("error", err))
		}
	}
	cfg, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(cfg.Roles); err == nil {
			if err := s.cache.Set(ctx, cacheKey(tenantID), raw, cacheTTL).Err(); err != nil && s.logger != nil {
				s.logger.Warn("config cache write failed", slog.Any("error", err))
			}
		}
	}
	return cfg, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(tenantID)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("config cache invalidation failed", slog.Any("error", err))
	}
}

func knownRole(role Role) bool {
	for _, known := range AllRoles {
		if role == known {
			return true
		}
	}
	return false
}
