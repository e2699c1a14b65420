package coa

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts account storage for the service.
type RepositoryPort interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool, actorID int64) error
	GetMapping(ctx context.Context, module, key string) (AccountMapping, error)
	ListMappings(ctx context.Context, module string) ([]AccountMapping, error)
}

// AuditPort records account administration events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes read-mostly chart of accounts operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns the full chart of accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetByCode loads one account by chart code.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, code)
}

// SetActive toggles the activation flag. System accounts are immutable once
// configured; deactivating one would orphan automated postings.
func (s *Service) SetActive(ctx context.Context, id int64, active bool, actorID int64) (Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.IsSystemAccount {
		return Account{}, fmt.Errorf("%w: %s", ErrSystemAccount, account.Code)
	}
	if err := s.repo.SetAccountActive(ctx, id, active, actorID); err != nil {
		return Account{}, err
	}
	account.IsActive = active
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "coa.account.set_active",
			Entity:   "account",
			EntityID: account.Code,
			Meta:     map[string]any{"active": active},
		})
	}
	return account, nil
}

// ResolveAccount returns the account id configured for a posting key.
func (s *Service) ResolveAccount(ctx context.Context, module, key string) (int64, error) {
	mapping, err := s.repo.GetMapping(ctx, module, key)
	if err != nil {
		return 0, fmt.Errorf("resolve %s/%s: %w", module, key, err)
	}
	return mapping.AccountID, nil
}

// Mappings lists the posting keys configured for a module.
func (s *Service) Mappings(ctx context.Context, module string) ([]AccountMapping, error) {
	return s.repo.ListMappings(ctx, module)
}
