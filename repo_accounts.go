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

var UpdateAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

var MarkEmailVerifiedSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_verified" = TRUE,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

// DependentCleaner is the collaborator notified after an account
// soft-delete commits, so resources owned by the account (todos,
// profiles) can be removed or annotated outside this module.
type DependentCleaner interface {
	CleanupAccount(ctx context.Context, accountID uuid.UUID) error
}

type noopDependentCleaner struct{}

func (noopDependentCleaner) CleanupAccount(context.Context, uuid.UUID) error { return nil }

// Accounts is the credential store. Lookups used for authentication
// exclude soft-deleted rows; uniqueness is enforced case-insensitively
// by normalizing at write time and relying on the store's unique index.
type Accounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	GetByEmailWithDeleted(ctx context.Context, email string) (*Account, error)

	Register(ctx context.Context, record *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)

	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

type accounts struct {
	repository.Repository[*Account]
	db      *bun.DB
	cleaner DependentCleaner
}

var _ Accounts = (*accounts)(nil)

type AccountsOption func(*accounts)

// WithDependentCleaner wires the collaborator invoked after soft delete.
func WithDependentCleaner(cleaner DependentCleaner) AccountsOption {
	return func(a *accounts) {
		if cleaner != nil {
			a.cleaner = cleaner
		}
	}
}

func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoAccounts := &accounts{
		Repository: repo,
		db:         db,
		cleaner:    noopDependentCleaner{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoAccounts)
		}
	}

	return repoAccounts
}

func (a *accounts) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *accounts) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound.Clone().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account")
	}

	return record, nil
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	return a.getByEmail(ctx, tx, email, false)
}

// GetByEmailWithDeleted includes soft-deleted rows. Never used on an
// authentication path.
func (a *accounts) GetByEmailWithDeleted(ctx context.Context, email string) (*Account, error) {
	return a.getByEmail(ctx, a.db, email, true)
}

func (a *accounts) getByEmail(ctx context.Context, tx bun.IDB, email string, withDeleted bool) (*Account, error) {
	record := &Account{}
	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1)

	if withDeleted {
		q = q.WhereAllWithDeleted()
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound.Clone().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account by email")
	}

	return record, nil
}

func (a *accounts) Register(ctx context.Context, record *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, record)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	prepareAccountDefaults(record)

	// Friendly duplicate check first; the unique index is the authority
	// under concurrent registrations.
	if _, err := a.GetByEmailTx(ctx, tx, record.Email); err == nil {
		return nil, ErrDuplicateEmail.Clone().
			WithMetadata(map[string]any{"email": record.Email})
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	created, err := a.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail.Clone().
				WithMetadata(map[string]any{"email": record.Email})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create account")
	}

	return created, nil
}

func (a *accounts) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.UpdatePasswordHashTx(ctx, a.db, id, hash)
}

func (a *accounts) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	res, err := a.Repository.RawTx(ctx, tx, UpdateAccountPasswordSQL, hash, time.Now(), id.String())
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update password hash")
	}

	if len(res) == 0 {
		return ErrAccountNotFound.Clone().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *accounts) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return a.MarkEmailVerifiedTx(ctx, a.db, id)
}

func (a *accounts) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, MarkEmailVerifiedSQL, time.Now(), id.String())
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to mark email verified")
	}

	if len(res) == 0 {
		return ErrAccountNotFound.Clone().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// SoftDelete marks the account deleted and then notifies the dependent
// cleaner. The account stops authenticating the moment the update
// commits; dependent resource cleanup is the collaborator's concern.
func (a *accounts) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	res, err := a.db.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"deleted_at" = ?,
			"updated_at" = ?
		WHERE
			("acc"."id" = ?)
			AND "acc"."deleted_at" IS NULL;
	`, now, now, id).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to soft delete account")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to soft delete account")
	}

	if rows == 0 {
		return ErrAccountNotFound.Clone().
			WithMetadata(map[string]any{"id": id.String()})
	}

	if err := a.cleaner.CleanupAccount(ctx, id); err != nil {
		// The account is gone either way; cleanup failures surface to the
		// caller so they can retry the collaborator.
		return errors.Wrap(err, errors.CategoryInternal, "dependent resource cleanup failed")
	}

	return nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("acc"."id" = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)

	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	now := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"login_attempts" = ?,
			"login_attempt_at" = ?
		WHERE
			("acc"."id" = ?)
			AND "acc"."deleted_at" IS NULL;
	`, account.LoginAttempts+1, now, account.ID).Exec(ctx)

	return err
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
