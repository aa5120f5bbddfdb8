package credentials

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResetTokens owns the reset-token lifecycle. Consumption is a
// storage-level conditional update: of N concurrent attempts with the
// same secret exactly one succeeds, the rest see ErrResetTokenInvalid.
// Rows are never deleted; consumed tokens stay for audit.
type PasswordResetTokens interface {
	GetByID(ctx context.Context, id uuid.UUID) (*PasswordResetToken, error)
	Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (*PasswordResetToken, string, error)
	IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, ttl time.Duration) (*PasswordResetToken, string, error)
	Consume(ctx context.Context, accountID uuid.UUID, token string, now time.Time) (*PasswordResetToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, token string, now time.Time) (*PasswordResetToken, error)
}

type passwordResetTokens struct {
	repository.Repository[*PasswordResetToken]
	db *bun.DB
}

var _ PasswordResetTokens = (*passwordResetTokens)(nil)

func NewPasswordResetTokensRepository(db *bun.DB) PasswordResetTokens {
	repo := repository.NewRepository[*PasswordResetToken](db, repository.ModelHandlers[*PasswordResetToken]{
		NewRecord: func() *PasswordResetToken { return &PasswordResetToken{} },
		GetID: func(t *PasswordResetToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *PasswordResetToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &passwordResetTokens{Repository: repo, db: db}
}

func (r *passwordResetTokens) GetByID(ctx context.Context, id uuid.UUID) (*PasswordResetToken, error) {
	record := &PasswordResetToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetTokenInvalid.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve reset token")
	}

	return record, nil
}

func (r *passwordResetTokens) Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (*PasswordResetToken, string, error) {
	return r.IssueTx(ctx, r.db, accountID, ttl)
}

// IssueTx creates a fresh token and retires any still-actionable token
// for the account, so at most one unused, unexpired token exists.
func (r *passwordResetTokens) IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, ttl time.Duration) (*PasswordResetToken, string, error) {
	plaintext, digest, err := GenerateSecretToken()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()

	if _, err := tx.NewUpdate().
		Model((*PasswordResetToken)(nil)).
		Set("expires_at = ?", now).
		Where("account_id = ?", accountID).
		Where("used_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to retire outstanding reset tokens")
	}

	record := &PasswordResetToken{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: digest,
		ExpiresAt: now.Add(ttl),
	}

	created, err := r.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to persist reset token")
	}

	return created, plaintext, nil
}

func (r *passwordResetTokens) Consume(ctx context.Context, accountID uuid.UUID, token string, now time.Time) (*PasswordResetToken, error) {
	return r.ConsumeTx(ctx, r.db, accountID, token, now)
}

// ConsumeTx sets used_at exactly once via a conditional update. A token
// already used or past expires_at is permanently inert.
func (r *passwordResetTokens) ConsumeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, token string, now time.Time) (*PasswordResetToken, error) {
	digest := HashSecretToken(token)

	res, err := tx.NewUpdate().
		Model((*PasswordResetToken)(nil)).
		Set("used_at = ?", now).
		Where("token_hash = ?", digest).
		Where("account_id = ?", accountID).
		Where("used_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume reset token")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume reset token")
	}

	if rows == 0 {
		return nil, ErrResetTokenInvalid.Clone()
	}

	record := &PasswordResetToken{}
	if err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", digest).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load consumed reset token")
	}

	return record, nil
}

// VerificationTokens mirrors the reset-token lifecycle for the
// email-verification flow.
type VerificationTokens interface {
	Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (*VerificationToken, string, error)
	IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, ttl time.Duration) (*VerificationToken, string, error)
	Consume(ctx context.Context, accountID uuid.UUID, token string, now time.Time) (*VerificationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, token string, now time.Time) (*VerificationToken, error)
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var _ VerificationTokens = (*verificationTokens)(nil)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(t *VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &verificationTokens{Repository: repo, db: db}
}

func (r *verificationTokens) Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (*VerificationToken, string, error) {
	return r.IssueTx(ctx, r.db, accountID, ttl)
}

func (r *verificationTokens) IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, ttl time.Duration) (*VerificationToken, string, error) {
	plaintext, digest, err := GenerateSecretToken()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()

	if _, err := tx.NewUpdate().
		Model((*VerificationToken)(nil)).
		Set("expires_at = ?", now).
		Where("account_id = ?", accountID).
		Where("used_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to retire outstanding verification tokens")
	}

	record := &VerificationToken{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: digest,
		ExpiresAt: now.Add(ttl),
	}

	created, err := r.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to persist verification token")
	}

	return created, plaintext, nil
}

func (r *verificationTokens) Consume(ctx context.Context, accountID uuid.UUID, token string, now time.Time) (*VerificationToken, error) {
	return r.ConsumeTx(ctx, r.db, accountID, token, now)
}

func (r *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, token string, now time.Time) (*VerificationToken, error) {
	digest := HashSecretToken(token)

	res, err := tx.NewUpdate().
		Model((*VerificationToken)(nil)).
		Set("used_at = ?", now).
		Where("token_hash = ?", digest).
		Where("account_id = ?", accountID).
		Where("used_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume verification token")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume verification token")
	}

	if rows == 0 {
		return nil, ErrVerificationTokenInvalid.Clone()
	}

	record := &VerificationToken{}
	if err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", digest).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load consumed verification token")
	}

	return record, nil
}
