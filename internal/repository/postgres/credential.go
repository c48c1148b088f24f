package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

type credentialRepository struct {
	BaseRepository
}

func NewCredentialRepository(base BaseRepository) repository.CredentialRepository {
	return &credentialRepository{base}
}

func (r *credentialRepository) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.GetContext(ctx, &cred, `
		SELECT account_id, email, password_hash, created_at
		FROM credentials
		WHERE email = $1`, email)
	if err != nil {
		return nil, translate(err, "get credential")
	}
	return &cred, nil
}

func (r *credentialRepository) Delete(ctx context.Context, accountID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE account_id = $1`, accountID)
	if err != nil {
		return translate(err, "delete credential")
	}
	return expectRows(res, "delete credential")
}
