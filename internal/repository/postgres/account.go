package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

const accountColumns = `id, name, email, role, phone, created_at, updated_at`

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

func (r *accountRepository) Register(ctx context.Context, account *model.Account, cred *model.Credential, profile *model.DoctorProfile) error {
	now := time.Now().UTC()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	cred.AccountID = account.ID
	cred.CreatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, email, role, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			account.ID, account.Name, account.Email, account.Role, account.Phone,
			account.CreatedAt, account.UpdatedAt,
		)
		if err != nil {
			return translate(err, "create account")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (account_id, email, password_hash, created_at)
			VALUES ($1, $2, $3, $4)`,
			cred.AccountID, cred.Email, cred.PasswordHash, cred.CreatedAt,
		)
		if err != nil {
			return translate(err, "create credential")
		}

		if profile == nil {
			return nil
		}
		profile.ID = account.ID
		profile.CreatedAt = now
		profile.UpdatedAt = now
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO doctor_profiles (
				id, slug, name, specialty, phone, email, address, qualifications,
				experience_years, consultation_fee, bio, status, available_slots,
				created_at, updated_at
			) VALUES (
				:id, :slug, :name, :specialty, :phone, :email, :address, :qualifications,
				:experience_years, :consultation_fee, :bio, :status, :available_slots,
				:created_at, :updated_at
			)`, profile)
		return translate(err, "create doctor profile")
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "get account")
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	if err != nil {
		return nil, translate(err, "get account by email")
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, filters *model.AccountFilters) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []interface{}
	if filters != nil && filters.Role != "" {
		query += ` WHERE role = $1`
		args = append(args, filters.Role)
	}
	query += ` ORDER BY created_at DESC`

	accounts := []*model.Account{}
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, translate(err, "list accounts")
	}
	return accounts, nil
}

func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete account")
	}
	return expectRows(res, "delete account")
}
