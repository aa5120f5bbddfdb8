package credentials_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/notify"
)

// testConfig implements credentials.Config for tests.
type testConfig struct {
	signingKey           string
	issuer               string
	audience             []string
	accessTTL            time.Duration
	refreshTTL           time.Duration
	requireVerifiedEmail bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: "test-signing-key",
		issuer:     "test-issuer",
		accessTTL:  15 * time.Minute,
		refreshTTL: 24 * time.Hour,
	}
}

func (c *testConfig) GetSigningKey() string             { return c.signingKey }
func (c *testConfig) GetSigningMethod() string          { return "HS256" }
func (c *testConfig) GetIssuer() string                 { return c.issuer }
func (c *testConfig) GetAudience() []string             { return c.audience }
func (c *testConfig) GetContextKey() string             { return "identity" }
func (c *testConfig) GetTokenLookup() string            { return "header:Authorization" }
func (c *testConfig) GetAuthScheme() string             { return "Bearer" }
func (c *testConfig) GetAccessTokenTTL() time.Duration  { return c.accessTTL }
func (c *testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }
func (c *testConfig) GetRequireVerifiedEmail() bool     { return c.requireVerifiedEmail }

// MockLogger implements credentials.Logger for testing
type MockLogger struct{}

func (MockLogger) Debug(format string, args ...any) {}
func (MockLogger) Info(format string, args ...any)  {}
func (MockLogger) Warn(format string, args ...any)  {}
func (MockLogger) Error(format string, args ...any) {}

// MockAccounts implements credentials.Accounts
type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) GetByID(ctx context.Context, id uuid.UUID) (*credentials.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*credentials.Account, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*credentials.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*credentials.Account, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) GetByEmailWithDeleted(ctx context.Context, email string) (*credentials.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) Register(ctx context.Context, record *credentials.Account) (*credentials.Account, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) RegisterTx(ctx context.Context, tx bun.IDB, record *credentials.Account) (*credentials.Account, error) {
	args := m.Called(ctx, tx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.Account), args.Error(1)
}

func (m *MockAccounts) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockAccounts) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	args := m.Called(ctx, tx, id, hash)
	return args.Error(0)
}

func (m *MockAccounts) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccounts) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockAccounts) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockAccounts) TrackAttemptedLogin(ctx context.Context, account *credentials.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccounts) TrackSuccessfulLogin(ctx context.Context, account *credentials.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockPasswordResetTokens implements credentials.PasswordResetTokens
type MockPasswordResetTokens struct {
	mock.Mock
}

func (m *MockPasswordResetTokens) GetByID(ctx context.Context, id uuid.UUID) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.PasswordResetToken), args.Error(1)
}

func (m *MockPasswordResetTokens) Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (*credentials.PasswordResetToken, string, error) {
	args := m.Called(ctx, accountID, ttl)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*credentials.PasswordResetToken), args.String(1), args.Error(2)
}

func (m *MockPasswordResetTokens) IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, ttl time.Duration) (*credentials.PasswordResetToken, string, error) {
	args := m.Called(ctx, tx, accountID, ttl)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*credentials.PasswordResetToken), args.String(1), args.Error(2)
}

func (m *MockPasswordResetTokens) Consume(ctx context.Context, accountID uuid.UUID, token string, now time.Time) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, accountID, token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.PasswordResetToken), args.Error(1)
}

func (m *MockPasswordResetTokens) ConsumeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, token string, now time.Time) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, tx, accountID, token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.PasswordResetToken), args.Error(1)
}

// MockVerificationTokens implements credentials.VerificationTokens
type MockVerificationTokens struct {
	mock.Mock
}

func (m *MockVerificationTokens) Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (*credentials.VerificationToken, string, error) {
	args := m.Called(ctx, accountID, ttl)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*credentials.VerificationToken), args.String(1), args.Error(2)
}

func (m *MockVerificationTokens) IssueTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, ttl time.Duration) (*credentials.VerificationToken, string, error) {
	args := m.Called(ctx, tx, accountID, ttl)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*credentials.VerificationToken), args.String(1), args.Error(2)
}

func (m *MockVerificationTokens) Consume(ctx context.Context, accountID uuid.UUID, token string, now time.Time) (*credentials.VerificationToken, error) {
	args := m.Called(ctx, accountID, token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.VerificationToken), args.Error(1)
}

func (m *MockVerificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, token string, now time.Time) (*credentials.VerificationToken, error) {
	args := m.Called(ctx, tx, accountID, token, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.VerificationToken), args.Error(1)
}

// MockAuthSessions implements credentials.AuthSessions
type MockAuthSessions struct {
	mock.Mock
}

func (m *MockAuthSessions) GetByID(ctx context.Context, id uuid.UUID) (*credentials.AuthSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.AuthSession), args.Error(1)
}

func (m *MockAuthSessions) Start(ctx context.Context, session *credentials.AuthSession) (*credentials.AuthSession, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.AuthSession), args.Error(1)
}

func (m *MockAuthSessions) StartTx(ctx context.Context, tx bun.IDB, session *credentials.AuthSession) (*credentials.AuthSession, error) {
	args := m.Called(ctx, tx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.AuthSession), args.Error(1)
}

func (m *MockAuthSessions) Rotate(ctx context.Context, id uuid.UUID, now time.Time) (*credentials.AuthSession, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.AuthSession), args.Error(1)
}

func (m *MockAuthSessions) RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*credentials.AuthSession, error) {
	args := m.Called(ctx, tx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentials.AuthSession), args.Error(1)
}

func (m *MockAuthSessions) RevokeAll(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	args := m.Called(ctx, accountID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthSessions) RevokeAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, now time.Time) (int64, error) {
	args := m.Called(ctx, tx, accountID, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockRepositoryManager wires the mock stores together. RunInTx runs
// the closure with a zero transaction, the mock stores ignore it.
type MockRepositoryManager struct {
	accounts           *MockAccounts
	passwordResets     *MockPasswordResetTokens
	verificationTokens *MockVerificationTokens
	authSessions       *MockAuthSessions
}

func NewMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{
		accounts:           &MockAccounts{},
		passwordResets:     &MockPasswordResetTokens{},
		verificationTokens: &MockVerificationTokens{},
		authSessions:       &MockAuthSessions{},
	}
}

func (m *MockRepositoryManager) Validate() error { return nil }
func (m *MockRepositoryManager) MustValidate()   {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Accounts() credentials.Accounts { return m.accounts }
func (m *MockRepositoryManager) PasswordResets() credentials.PasswordResetTokens {
	return m.passwordResets
}
func (m *MockRepositoryManager) VerificationTokens() credentials.VerificationTokens {
	return m.verificationTokens
}
func (m *MockRepositoryManager) AuthSessions() credentials.AuthSessions { return m.authSessions }

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	ch chan notify.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan notify.Notification, 8)}
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.ch <- n
	return nil
}

// waitFor returns the next notification or a zero value on timeout.
func (r *recordingNotifier) waitFor(d time.Duration) (notify.Notification, bool) {
	select {
	case n := <-r.ch:
		return n, true
	case <-time.After(d):
		return notify.Notification{}, false
	}
}
