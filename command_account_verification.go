package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-credentials/notify"
)

type RequestAccountVerificationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *RequestAccountVerificationResponse)
}

func (p RequestAccountVerificationMessage) Type() string { return "account.verification_request" }

// RequestAccountVerificationResponse always reports success; the flow
// must not reveal which addresses are registered or already verified.
type RequestAccountVerificationResponse struct {
	Success bool
}

type RequestAccountVerificationHandler struct {
	repo     RepositoryManager
	notifier notify.Notifier
	logger   Logger
	tokenTTL time.Duration
}

func NewRequestAccountVerificationHandler(repo RepositoryManager) *RequestAccountVerificationHandler {
	return &RequestAccountVerificationHandler{
		repo:     repo,
		notifier: notify.Noop{},
		logger:   defLogger{},
		tokenTTL: DefaultVerificationTTL,
	}
}

func (h *RequestAccountVerificationHandler) WithNotifier(notifier notify.Notifier) *RequestAccountVerificationHandler {
	if notifier != nil {
		h.notifier = notifier
	}
	return h
}

func (h *RequestAccountVerificationHandler) WithLogger(logger Logger) *RequestAccountVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestAccountVerificationHandler) Execute(ctx context.Context, event RequestAccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestAccountVerificationHandler) execute(ctx context.Context, event RequestAccountVerificationMessage) error {
	resp := &RequestAccountVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var plaintext string
	var recipient string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification")
		}

		if !account.IsActive() || account.EmailVerified {
			return nil
		}

		_, token, err := h.repo.VerificationTokens().IssueTx(ctx, tx, account.ID, h.tokenTTL)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
		}

		plaintext = token
		recipient = account.Email

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request account verification")
	}

	if plaintext != "" {
		go func() {
			nctx, ncancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer ncancel()

			if err := h.notifier.Notify(nctx, notify.Notification{
				Recipient: recipient,
				Kind:      notify.KindEmailVerification,
				Payload:   map[string]string{"token": plaintext},
			}); err != nil {
				h.logger.Warn("verification notification error: %v", err)
			}
		}()
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

type ConfirmAccountVerificationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Token      string `json:"token" doc:"Verification token from the email link."`
	OnResponse func(resp *ConfirmAccountVerificationResponse)
}

func (p ConfirmAccountVerificationMessage) Type() string { return "account.verification_confirm" }

type ConfirmAccountVerificationResponse struct {
	Success bool
}

type ConfirmAccountVerificationHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewConfirmAccountVerificationHandler(repo RepositoryManager) *ConfirmAccountVerificationHandler {
	return &ConfirmAccountVerificationHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

func (h *ConfirmAccountVerificationHandler) WithLogger(logger Logger) *ConfirmAccountVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmAccountVerificationHandler) Execute(ctx context.Context, event ConfirmAccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountVerificationHandler) execute(ctx context.Context, event ConfirmAccountVerificationMessage) error {
	resp := &ConfirmAccountVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := time.Now()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrVerificationTokenInvalid.Clone()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification")
		}

		if _, err := h.repo.VerificationTokens().ConsumeTx(ctx, tx, account.ID, event.Token, now); err != nil {
			return err
		}

		// verifying twice is harmless, the flag is already set
		if account.EmailVerified {
			return nil
		}

		if err := h.repo.Accounts().MarkEmailVerifiedTx(ctx, tx, account.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeVerifyTokenInvalid {
			h.logger.Warn("verification confirm rejected: %v", err)
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account verification")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
