package credentials

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"

	"github.com/goliatone/go-credentials/notify"
)

// RegisterAuthRoutes mounts the credential endpoints on the app.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.RegistrationCreate).Name("register.post")
	app.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")
	app.Post(controller.Routes.Refresh, controller.RefreshPost).Name("refresh.post")
	app.Post(controller.Routes.Revoke, controller.RevokePost).Name("revoke.post")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).Name("pwd-reset.post")
	app.Post(controller.Routes.PasswordResetComplete, controller.PasswordResetExecute).Name("pwd-reset-do.post")
	app.Post(controller.Routes.Verify, controller.VerificationRequestPost).Name("verify.post")
	app.Post(controller.Routes.VerifyConfirm, controller.VerificationConfirmPost).Name("verify-confirm.post")
}

type AuthControllerRoutes struct {
	Register              string
	Login                 string
	Refresh               string
	Revoke                string
	PasswordReset         string
	PasswordResetComplete string
	Verify                string
	VerifyConfirm         string
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auther   Authenticator
	Notifier notify.Notifier
	Routes   *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthenticator(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerNotifier(notifier notify.Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = notifier
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Notifier: notify.Noop{},
		Routes: &AuthControllerRoutes{
			Register:              "/auth/register",
			Login:                 "/auth/login",
			Refresh:               "/auth/refresh",
			Revoke:                "/auth/revoke",
			PasswordReset:         "/auth/password-reset",
			PasswordResetComplete: "/auth/password-reset/complete",
			Verify:                "/auth/verify",
			VerifyConfirm:         "/auth/verify/confirm",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// RegistrationCreatePayload is the registration body
type RegistrationCreatePayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(&r.Role, validation.In("", string(RoleUser), string(RoleAdmin))),
	)
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: %v", err)
		return validationJSON(c, err)
	}

	role := AccountRole(payload.Role)
	if role == "" {
		role = RoleUser
	}

	authorized, err := a.Auther.Register(c.Context(), RegisterInput{
		Email:    payload.Email,
		Password: payload.Password,
		Role:     role,
	})
	if err != nil {
		return a.errorJSON(c, err)
	}

	a.debugDump("REGISTER", authorized)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    authorized,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	authorized, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.errorJSON(c, err)
	}

	a.debugDump("LOGIN", authorized)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    authorized,
	})
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshRequest)

	if err := c.BodyParser(payload); err != nil {
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	authorized, err := a.Auther.Refresh(c.Context(), payload.RefreshToken)
	if err != nil {
		return a.errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    authorized,
	})
}

// identityClaims is the slice of the middleware claims the revoke
// endpoint needs. Matching it structurally avoids an import cycle.
type identityClaims interface {
	AccountID() string
}

// RevokePost signs the authenticated account out everywhere. It runs
// behind the token middleware and reads the account from its claims.
func (a *AuthController) RevokePost(c *fiber.Ctx) error {
	claims, ok := c.Locals("identity").(identityClaims)
	if !ok {
		return failJSON(c, fiber.StatusUnauthorized, TextCodeInvalidCredentials, "missing identity")
	}

	accountID, err := uuid.Parse(claims.AccountID())
	if err != nil {
		return failJSON(c, fiber.StatusUnauthorized, TextCodeInvalidCredentials, "invalid identity")
	}

	revoked, err := a.Auther.RevokeSessions(c.Context(), accountID)
	if err != nil {
		return a.errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"revoked": revoked},
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)

	if err := c.BodyParser(payload); err != nil {
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	var res *InitializePasswordResetResponse

	req := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	}

	handler := NewInitializePasswordResetHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(c.Context(), req); err != nil {
		return a.errorJSON(c, err)
	}

	a.debugDump("PASSWORD RESET", res)

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// PasswordResetVerifyPayload holds values for password reset
type PasswordResetVerifyPayload struct {
	Email           string `json:"email"`
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(c *fiber.Ctx) error {
	payload := new(PasswordResetVerifyPayload)

	if err := c.BodyParser(payload); err != nil {
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	var res *FinalizePasswordResetResponse

	req := FinalizePasswordResetMessage{
		Email:    payload.Email,
		Token:    payload.Token,
		Password: payload.Password,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			res = resp
		},
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)

	if err := handler.Execute(c.Context(), req); err != nil {
		return a.errorJSON(c, err)
	}

	a.debugDump("PASSWORD RESET COMPLETE", res)

	if res == nil || !res.Success {
		return failJSON(c, fiber.StatusBadRequest, TextCodeResetTokenInvalid, "invalid or expired reset token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"revoked": res.Revoked},
	})
}

// VerificationRequestPayload asks for a fresh verification token.
type VerificationRequestPayload struct {
	Email string `json:"email"`
}

func (r VerificationRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) VerificationRequestPost(c *fiber.Ctx) error {
	payload := new(VerificationRequestPayload)

	if err := c.BodyParser(payload); err != nil {
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	req := RequestAccountVerificationMessage{Email: payload.Email}

	handler := NewRequestAccountVerificationHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithLogger(a.Logger)

	if err := handler.Execute(c.Context(), req); err != nil {
		return a.errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// VerificationConfirmPayload confirms an address with a token.
type VerificationConfirmPayload struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (r VerificationConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AuthController) VerificationConfirmPost(c *fiber.Ctx) error {
	payload := new(VerificationConfirmPayload)

	if err := c.BodyParser(payload); err != nil {
		return failJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	var res *ConfirmAccountVerificationResponse

	req := ConfirmAccountVerificationMessage{
		Email: payload.Email,
		Token: payload.Token,
		OnResponse: func(resp *ConfirmAccountVerificationResponse) {
			res = resp
		},
	}

	handler := NewConfirmAccountVerificationHandler(a.Repo).WithLogger(a.Logger)

	if err := handler.Execute(c.Context(), req); err != nil {
		return a.errorJSON(c, err)
	}

	if res == nil || !res.Success {
		return failJSON(c, fiber.StatusBadRequest, TextCodeVerifyTokenInvalid, "invalid or expired verification token")
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (a *AuthController) debugDump(label string, v any) {
	if !a.Debug {
		return
	}
	fmt.Printf("======= AUTH %s ======\n", label)
	fmt.Println(print.MaybePrettyJSON(v))
	fmt.Println("=========================")
}

// errorJSON maps rich errors onto HTTP envelopes.
func (a *AuthController) errorJSON(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		a.Logger.Error("unhandled error: %v", err)
		return failJSON(c, fiber.StatusInternalServerError, "INTERNAL", "internal error")
	}

	status := statusFromCategory(richErr)

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request error: %v", err)
	}

	return failJSON(c, status, richErr.TextCode, richErr.Message)
}

func statusFromCategory(err *goerrors.Error) int {
	switch err.Category {
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryAuth:
		if err.TextCode == TextCodeEmailNotVerified {
			return fiber.StatusForbidden
		}
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

func failJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

func validationJSON(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success":    false,
		"validation": FormatValidationErrorToMap(err),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors to a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if goerrors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return validation.NewError("validation_match", "values must match")
		}
		return nil
	}
}
