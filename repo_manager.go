package credentials

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories plus a shared transaction
// runner so multi-store operations commit or roll back together.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Accounts() Accounts
	PasswordResets() PasswordResetTokens
	VerificationTokens() VerificationTokens
	AuthSessions() AuthSessions
}

type mngr struct {
	db                 *bun.DB
	accounts           Accounts
	passwordResets     PasswordResetTokens
	verificationTokens VerificationTokens
	authSessions       AuthSessions
}

// ManagerOption customizes a RepositoryManager during construction.
type ManagerOption func(*mngr)

// WithAccountsRepository swaps in a custom Accounts store, e.g. one
// wired with a DependentCleaner.
func WithAccountsRepository(accounts Accounts) ManagerOption {
	return func(m *mngr) {
		m.accounts = accounts
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:                 db,
		accounts:           NewAccountsRepository(db),
		passwordResets:     NewPasswordResetTokensRepository(db),
		verificationTokens: NewVerificationTokensRepository(db),
		authSessions:       NewAuthSessionsRepository(db),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	if m.verificationTokens == nil {
		return errors.New("repository verificationTokens should be initialized")
	}

	if m.authSessions == nil {
		return errors.New("repository authSessions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) PasswordResets() PasswordResetTokens {
	return m.passwordResets
}

func (m mngr) VerificationTokens() VerificationTokens {
	return m.verificationTokens
}

func (m mngr) AuthSessions() AuthSessions {
	return m.authSessions
}
