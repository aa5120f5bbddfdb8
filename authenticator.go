package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-credentials/notify"
)

// DefaultMaxLoginAttempts is how many consecutive failed logins an
// account absorbs before the cool-down window applies.
var DefaultMaxLoginAttempts = 5

// DefaultLoginCooldown is the threshold pattern for the login cool-down.
var DefaultLoginCooldown = "15m"

// DefaultVerificationTTL bounds how long an email-verification token
// stays actionable.
var DefaultVerificationTTL = 24 * time.Hour

// RegisterInput carries everything needed to create an account.
type RegisterInput struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     AccountRole `json:"role"`
	// UseHashid derives the account id deterministically from the email
	// instead of minting a random uuid.
	UseHashid bool `json:"-"`
}

func (i RegisterInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Email, validation.Required, is.Email),
		validation.Field(&i.Password, validation.Required, validation.Length(8, 128)),
	)
}

// AuthorizationToken is the credential pair handed to clients.
type AuthorizationToken struct {
	Access           string    `json:"access_token"`
	Refresh          string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshableUntil time.Time `json:"refreshable_until"`
}

// Authorized is the outcome of a successful register, login, or refresh.
type Authorized struct {
	AccountID string             `json:"account_id"`
	Email     string             `json:"email"`
	Role      string             `json:"role"`
	Token     AuthorizationToken `json:"token"`
}

type Auther struct {
	repo             RepositoryManager
	config           Config
	logger           Logger
	tokenService     TokenService
	notifier         notify.Notifier
	maxLoginAttempts int
	loginCooldown    string
	verificationTTL  time.Duration
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, opts Config) *Auther {
	return &Auther{
		repo:             repo,
		config:           opts,
		logger:           defLogger{},
		tokenService:     NewTokenService(opts, defLogger{}),
		notifier:         notify.Noop{},
		maxLoginAttempts: DefaultMaxLoginAttempts,
		loginCooldown:    DefaultLoginCooldown,
		verificationTTL:  DefaultVerificationTTL,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.tokenService = NewTokenService(s.config, logger)
	return s
}

// WithNotifier configures the transport used for verification and
// welcome messages.
func (s *Auther) WithNotifier(notifier notify.Notifier) *Auther {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	s.notifier = notifier
	return s
}

// WithTokenService sets a custom token service, e.g. one with a
// different signing setup.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	s.tokenService = ts
	return s
}

// WithLoginThrottle overrides the failed-login budget and cool-down
// pattern, e.g. (3, "30m").
func (s *Auther) WithLoginThrottle(maxAttempts int, cooldown string) *Auther {
	s.maxLoginAttempts = maxAttempts
	s.loginCooldown = cooldown
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Register creates an account and signs it in. Admin accounts skip
// email verification; user accounts get a verification token delivered
// out of band.
func (s *Auther) Register(ctx context.Context, input RegisterInput) (*Authorized, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid registration input")
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, errors.Wrap(richErr, errors.CategoryValidation, "invalid password provided")
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
	}

	if input.UseHashid {
		if id, err := hashid.NewUUID(NormalizeEmail(input.Email)); err == nil {
			account.ID = id
		}
	}

	if account.Role == RoleAdmin {
		account.EmailVerified = true
	}

	var verificationToken string

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.Accounts().RegisterTx(ctx, tx, account)
		if err != nil {
			return err
		}
		account = created

		if account.Role != RoleAdmin {
			_, plaintext, err := s.repo.VerificationTokens().IssueTx(ctx, tx, account.ID, s.verificationTTL)
			if err != nil {
				return err
			}
			verificationToken = plaintext
		}

		return nil
	})

	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "registration transaction failed")
	}

	s.deliverRegistration(account.Email, account.Role, verificationToken)

	return s.issuePair(ctx, account, uuid.Nil)
}

// Login verifies credentials. Unknown email and wrong password produce
// the same error so callers cannot probe which addresses exist.
func (s *Auther) Login(ctx context.Context, email, password string) (*Authorized, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("Login lookup error: %v", err)
		if errors.IsNotFound(err) {
			return nil, ErrInvalidCredentials.Clone()
		}
		return nil, ErrStoreUnavailable.Clone()
	}

	if !account.IsActive() {
		s.logger.Warn("Login blocked, account inactive: %s", account.ID)
		return nil, ErrInvalidCredentials.Clone()
	}

	if err := s.ensureNotThrottled(account); err != nil {
		return nil, err
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if trackErr := s.repo.Accounts().TrackAttemptedLogin(ctx, account); trackErr != nil {
			s.logger.Warn("Login attempt tracking error: %v", trackErr)
		}
		return nil, ErrInvalidCredentials.Clone()
	}

	if s.config.GetRequireVerifiedEmail() && account.Role != RoleAdmin && !account.EmailVerified {
		return nil, ErrEmailNotVerified.Clone()
	}

	if err := s.repo.Accounts().TrackSuccessfulLogin(ctx, account); err != nil {
		s.logger.Warn("Login success tracking error: %v", err)
	}

	return s.issuePair(ctx, account, uuid.Nil)
}

// Refresh rotates a refresh token. Every failure mode collapses into
// ErrInvalidRefreshToken so the refresh surface leaks nothing about
// token or account state.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*Authorized, error) {
	claims, err := s.tokenService.Validate(refreshToken, TokenUseRefresh)
	if err != nil {
		s.logger.Error("Refresh validation error: %v", err)
		return nil, ErrInvalidRefreshToken.Clone()
	}

	sessionID, err := claims.SessionID()
	if err != nil {
		s.logger.Error("Refresh session id error: %v", err)
		return nil, ErrInvalidRefreshToken.Clone()
	}

	session, err := s.repo.AuthSessions().Rotate(ctx, sessionID, time.Now())
	if err != nil {
		s.logger.Error("Refresh rotation error: %v", err)
		return nil, ErrInvalidRefreshToken.Clone()
	}

	account, err := s.repo.Accounts().GetByID(ctx, session.AccountID)
	if err != nil {
		s.logger.Error("Refresh account lookup error: %v", err)
		return nil, ErrInvalidRefreshToken.Clone()
	}

	if !account.IsActive() {
		s.logger.Warn("Refresh blocked, account inactive: %s", account.ID)
		return nil, ErrInvalidRefreshToken.Clone()
	}

	return s.issuePair(ctx, account, session.ID)
}

// RevokeSessions invalidates every live session for the account and
// reports how many it revoked.
func (s *Auther) RevokeSessions(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.repo.AuthSessions().RevokeAll(ctx, accountID, time.Now())
}

// issuePair starts a session row and mints an access plus refresh token
// against it. The refresh token's jti is the session id; parent tracks
// rotation lineage.
func (s *Auther) issuePair(ctx context.Context, account *Account, parent uuid.UUID) (*Authorized, error) {
	now := time.Now().UTC()

	session := &AuthSession{
		ID:        uuid.New(),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.config.GetRefreshTokenTTL()),
	}
	if parent != uuid.Nil {
		session.ParentID = &parent
	}

	session, err := s.repo.AuthSessions().Start(ctx, session)
	if err != nil {
		return nil, err
	}

	identity := account.Identity()

	access, accessExp, err := s.tokenService.IssueAccess(identity)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.tokenService.IssueRefresh(identity, session.ID)
	if err != nil {
		return nil, err
	}

	return &Authorized{
		AccountID: identity.ID(),
		Email:     identity.Email(),
		Role:      identity.Role(),
		Token: AuthorizationToken{
			Access:           access,
			Refresh:          refresh,
			ExpiresAt:        accessExp,
			RefreshableUntil: refreshExp,
		},
	}, nil
}

// ensureNotThrottled applies the cool-down once the failed-attempt
// budget is spent. Counters reset on the next successful login.
func (s *Auther) ensureNotThrottled(account *Account) error {
	if account.LoginAttempts < s.maxLoginAttempts {
		return nil
	}

	if account.LoginAttemptAt == nil {
		return nil
	}

	outside, err := IsOutsideThresholdPeriod(*account.LoginAttemptAt, s.loginCooldown)
	if err != nil {
		s.logger.Warn("Login throttle pattern error: %v", err)
		return nil
	}

	if outside {
		return nil
	}

	return ErrTooManyLoginAttempts.Clone()
}

// deliverRegistration sends the post-registration message without
// blocking the caller. Failures are logged, never returned.
func (s *Auther) deliverRegistration(email string, role AccountRole, token string) {
	kind := notify.KindWelcome
	payload := map[string]string{}

	if role != RoleAdmin && token != "" {
		kind = notify.KindEmailVerification
		payload["token"] = token
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.notifier.Notify(ctx, notify.Notification{
			Recipient: email,
			Kind:      kind,
			Payload:   payload,
		}); err != nil {
			s.logger.Warn("notification delivery error: %v", err)
		}
	}()
}
