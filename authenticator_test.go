package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/notify"
)

func fastBcrypt(t *testing.T) {
	t.Helper()
	previous := credentials.DefaultBcryptCost
	credentials.DefaultBcryptCost = 4
	t.Cleanup(func() {
		credentials.DefaultBcryptCost = previous
	})
}

func testAccount(t *testing.T, password string) *credentials.Account {
	t.Helper()

	hash, err := credentials.HashPassword(password)
	require.NoError(t, err)

	return &credentials.Account{
		ID:            uuid.New(),
		Email:         "pepe.rone@example.com",
		PasswordHash:  hash,
		Role:          credentials.RoleUser,
		EmailVerified: true,
	}
}

func expectSessionStart(repo *MockRepositoryManager) {
	repo.authSessions.On("Start", mock.Anything, mock.AnythingOfType("*credentials.AuthSession")).
		Return(&credentials.AuthSession{ID: uuid.New()}, nil)
}

func TestAuther_Register(t *testing.T) {
	fastBcrypt(t)

	t.Run("user registration issues verification token", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		notifier := newRecordingNotifier()

		auther := credentials.NewAuthenticator(repo, newTestConfig()).
			WithLogger(MockLogger{}).
			WithNotifier(notifier)

		accountID := uuid.New()
		created := &credentials.Account{
			ID:    accountID,
			Email: "pepe.rone@example.com",
			Role:  credentials.RoleUser,
		}

		repo.accounts.On("RegisterTx", mock.Anything, mock.Anything, mock.AnythingOfType("*credentials.Account")).
			Return(created, nil).Once()

		repo.verificationTokens.On("IssueTx", mock.Anything, mock.Anything, accountID, mock.Anything).
			Return(&credentials.VerificationToken{ID: uuid.New(), AccountID: accountID}, "plaintext-token", nil).Once()

		expectSessionStart(repo)

		authorized, err := auther.Register(context.Background(), credentials.RegisterInput{
			Email:    "pepe.rone@example.com",
			Password: "some_secret_word",
			Role:     credentials.RoleUser,
		})
		require.NoError(t, err)
		assert.Equal(t, accountID.String(), authorized.AccountID)
		assert.NotEmpty(t, authorized.Token.Access)
		assert.NotEmpty(t, authorized.Token.Refresh)

		n, ok := notifier.waitFor(2 * time.Second)
		require.True(t, ok, "expected a verification notification")
		assert.Equal(t, notify.KindEmailVerification, n.Kind)
		assert.Equal(t, "plaintext-token", n.Payload["token"])

		repo.accounts.AssertExpectations(t)
		repo.verificationTokens.AssertExpectations(t)
	})

	t.Run("admin registration skips verification", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		notifier := newRecordingNotifier()

		auther := credentials.NewAuthenticator(repo, newTestConfig()).
			WithLogger(MockLogger{}).
			WithNotifier(notifier)

		repo.accounts.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(a *credentials.Account) bool {
			return a.EmailVerified && a.Role == credentials.RoleAdmin
		})).Return(&credentials.Account{
			ID:            uuid.New(),
			Email:         "root@example.com",
			Role:          credentials.RoleAdmin,
			EmailVerified: true,
		}, nil).Once()

		expectSessionStart(repo)

		_, err := auther.Register(context.Background(), credentials.RegisterInput{
			Email:    "root@example.com",
			Password: "some_secret_word",
			Role:     credentials.RoleAdmin,
		})
		require.NoError(t, err)

		n, ok := notifier.waitFor(2 * time.Second)
		require.True(t, ok)
		assert.Equal(t, notify.KindWelcome, n.Kind)

		repo.verificationTokens.AssertNotCalled(t, "IssueTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate email surfaces conflict", func(t *testing.T) {
		repo := NewMockRepositoryManager()

		auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

		repo.accounts.On("RegisterTx", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, credentials.ErrDuplicateEmail.Clone()).Once()

		_, err := auther.Register(context.Background(), credentials.RegisterInput{
			Email:    "pepe.rone@example.com",
			Password: "some_secret_word",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

		_, err := auther.Register(context.Background(), credentials.RegisterInput{
			Email:    "not-an-email",
			Password: "short",
		})
		assert.Error(t, err)
		repo.accounts.AssertNotCalled(t, "RegisterTx", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuther_Login(t *testing.T) {
	fastBcrypt(t)

	t.Run("valid credentials return token pair", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")

		auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()
		repo.accounts.On("TrackSuccessfulLogin", mock.Anything, account).Return(nil).Once()
		expectSessionStart(repo)

		authorized, err := auther.Login(context.Background(), account.Email, "some_secret_word")
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), authorized.AccountID)
		assert.NotEmpty(t, authorized.Token.Access)
		assert.NotEmpty(t, authorized.Token.Refresh)
		assert.True(t, authorized.Token.RefreshableUntil.After(authorized.Token.ExpiresAt))

		repo.accounts.AssertExpectations(t)
	})

	t.Run("unknown email and wrong password share one error", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")

		auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

		repo.accounts.On("GetByEmail", mock.Anything, "ghost@example.com").
			Return(nil, credentials.ErrAccountNotFound.Clone()).Once()
		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()
		repo.accounts.On("TrackAttemptedLogin", mock.Anything, account).Return(nil).Once()

		_, unknownErr := auther.Login(context.Background(), "ghost@example.com", "whatever")
		require.Error(t, unknownErr)

		_, wrongErr := auther.Login(context.Background(), account.Email, "not-the-password")
		require.Error(t, wrongErr)

		assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	})

	t.Run("unverified user is rejected when verification is required", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")
		account.EmailVerified = false

		cfg := newTestConfig()
		cfg.requireVerifiedEmail = true

		auther := credentials.NewAuthenticator(repo, cfg).WithLogger(MockLogger{})

		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()

		_, err := auther.Login(context.Background(), account.Email, "some_secret_word")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not been verified")
	})

	t.Run("unverified admin may login", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")
		account.EmailVerified = false
		account.Role = credentials.RoleAdmin

		cfg := newTestConfig()
		cfg.requireVerifiedEmail = true

		auther := credentials.NewAuthenticator(repo, cfg).WithLogger(MockLogger{})

		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()
		repo.accounts.On("TrackSuccessfulLogin", mock.Anything, account).Return(nil).Once()
		expectSessionStart(repo)

		_, err := auther.Login(context.Background(), account.Email, "some_secret_word")
		assert.NoError(t, err)
	})

	t.Run("throttles after repeated failures inside the cooldown", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")

		lastAttempt := time.Now().Add(-time.Minute)
		account.LoginAttempts = 5
		account.LoginAttemptAt = &lastAttempt

		auther := credentials.NewAuthenticator(repo, newTestConfig()).
			WithLogger(MockLogger{}).
			WithLoginThrottle(5, "15m")

		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()

		_, err := auther.Login(context.Background(), account.Email, "some_secret_word")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many login attempts")
	})

	t.Run("cooldown expires and login proceeds", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")

		lastAttempt := time.Now().Add(-time.Hour)
		account.LoginAttempts = 5
		account.LoginAttemptAt = &lastAttempt

		auther := credentials.NewAuthenticator(repo, newTestConfig()).
			WithLogger(MockLogger{}).
			WithLoginThrottle(5, "15m")

		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()
		repo.accounts.On("TrackSuccessfulLogin", mock.Anything, account).Return(nil).Once()
		expectSessionStart(repo)

		_, err := auther.Login(context.Background(), account.Email, "some_secret_word")
		assert.NoError(t, err)
	})

	t.Run("soft deleted account cannot login", func(t *testing.T) {
		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")
		deleted := time.Now()
		account.DeletedAt = &deleted

		auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

		repo.accounts.On("GetByEmail", mock.Anything, account.Email).Return(account, nil).Once()

		_, err := auther.Login(context.Background(), account.Email, "some_secret_word")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid credentials")
	})
}

func TestAuther_Refresh(t *testing.T) {
	fastBcrypt(t)

	setup := func(t *testing.T) (*MockRepositoryManager, *credentials.Auther, *credentials.Account, string, uuid.UUID) {
		t.Helper()

		repo := NewMockRepositoryManager()
		account := testAccount(t, "some_secret_word")

		auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

		sessionID := uuid.New()
		refresh, _, err := auther.TokenService().IssueRefresh(account.Identity(), sessionID)
		require.NoError(t, err)

		return repo, auther, account, refresh, sessionID
	}

	t.Run("valid refresh rotates the session", func(t *testing.T) {
		repo, auther, account, refresh, sessionID := setup(t)

		rotated := time.Now()
		repo.authSessions.On("Rotate", mock.Anything, sessionID, mock.Anything).
			Return(&credentials.AuthSession{
				ID:        sessionID,
				AccountID: account.ID,
				RotatedAt: &rotated,
			}, nil).Once()
		repo.accounts.On("GetByID", mock.Anything, account.ID).Return(account, nil).Once()
		expectSessionStart(repo)

		authorized, err := auther.Refresh(context.Background(), refresh)
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), authorized.AccountID)
		assert.NotEmpty(t, authorized.Token.Refresh)
		assert.NotEqual(t, refresh, authorized.Token.Refresh)

		repo.authSessions.AssertExpectations(t)
	})

	t.Run("reused refresh token is rejected", func(t *testing.T) {
		repo, auther, _, refresh, sessionID := setup(t)

		repo.authSessions.On("Rotate", mock.Anything, sessionID, mock.Anything).
			Return(nil, credentials.ErrInvalidRefreshToken.Clone()).Once()

		_, err := auther.Refresh(context.Background(), refresh)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid refresh token")
	})

	t.Run("access token cannot refresh", func(t *testing.T) {
		repo, auther, account, _, _ := setup(t)

		access, _, err := auther.TokenService().IssueAccess(account.Identity())
		require.NoError(t, err)

		_, err = auther.Refresh(context.Background(), access)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid refresh token")

		repo.authSessions.AssertNotCalled(t, "Rotate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, auther, _, _, _ := setup(t)

		_, err := auther.Refresh(context.Background(), "garbage")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid refresh token")
	})

	t.Run("refresh for a deleted account fails", func(t *testing.T) {
		repo, auther, account, refresh, sessionID := setup(t)

		deleted := time.Now()
		account.DeletedAt = &deleted

		repo.authSessions.On("Rotate", mock.Anything, sessionID, mock.Anything).
			Return(&credentials.AuthSession{ID: sessionID, AccountID: account.ID}, nil).Once()
		repo.accounts.On("GetByID", mock.Anything, account.ID).Return(account, nil).Once()

		_, err := auther.Refresh(context.Background(), refresh)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid refresh token")
	})
}

func TestAuther_RevokeSessions(t *testing.T) {
	repo := NewMockRepositoryManager()
	auther := credentials.NewAuthenticator(repo, newTestConfig()).WithLogger(MockLogger{})

	accountID := uuid.New()
	repo.authSessions.On("RevokeAll", mock.Anything, accountID, mock.Anything).
		Return(int64(3), nil).Once()

	revoked, err := auther.RevokeSessions(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)
}
