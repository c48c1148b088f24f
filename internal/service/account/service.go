package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountServicer interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
	ListAccounts(ctx context.Context, filters *model.AccountFilters) ([]*model.Account, error)
	Me(ctx context.Context, principal model.Principal) (*Profile, error)
}

// Profile is the signed-in account together with its doctor profile, if any.
type Profile struct {
	Account *model.Account       `json:"account"`
	Doctor  *model.DoctorProfile `json:"doctor,omitempty"`
}

type Service struct {
	accountRepo repository.AccountRepository
	doctorRepo  repository.DoctorRepository
}

func NewService(accountRepo repository.AccountRepository, doctorRepo repository.DoctorRepository) *Service {
	return &Service{
		accountRepo: accountRepo,
		doctorRepo:  doctorRepo,
	}
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.accountRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, filters *model.AccountFilters) ([]*model.Account, error) {
	if filters != nil && filters.Role != "" && !filters.Role.IsValid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown role %q", filters.Role), nil)
	}
	accounts, err := s.accountRepo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Me resolves the caller's own record. A doctor whose profile is gone still
// gets the account back.
func (s *Service) Me(ctx context.Context, principal model.Principal) (*Profile, error) {
	account, err := s.GetAccount(ctx, principal.AccountID)
	if err != nil {
		return nil, err
	}
	out := &Profile{Account: account}
	if account.Role != model.RoleDoctor {
		return out, nil
	}

	doctor, err := s.doctorRepo.Get(ctx, account.ID)
	switch {
	case err == nil:
		out.Doctor = doctor
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to get doctor profile: %w", err)
	}
	return out, nil
}
