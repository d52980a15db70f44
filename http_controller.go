package auth

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// LoginPayload is the input of RouteAuthenticator.Login
type LoginPayload interface {
	GetEmail() string
	GetPassword() string
}

// RegisterAuthRoutes mounts the auth and account routes on app, which
// is expected to be the group serving the configured base path.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	controller.RegisterRoutes(app)
	return controller
}

type AuthControllerRoutes struct {
	Auth           string
	Refresh        string
	ForgotPassword string
	Users          string
	User           string
	Deactivate     string
}

type AuthController struct {
	Debug          bool
	Logger         Logger
	BasePath       string
	Routes         *AuthControllerRoutes
	HTTP           *RouteAuthenticator
	Register       *RegisterAccountHandler
	UpdatePassword *UpdatePasswordHandler
	ResetPassword  *RequestPasswordResetHandler
	Accounts       *AccountService
	ErrorHandler   fiber.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func WithControllerBasePath(basePath string) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.BasePath = strings.TrimSuffix(basePath, "/")
		return ac
	}
}

func WithRouteAuthenticator(ra *RouteAuthenticator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.HTTP = ra
		if ra != nil {
			ac.ErrorHandler = ra.ErrorHandler
		}
		return ac
	}
}

func WithRegisterHandler(h *RegisterAccountHandler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Register = h
		return ac
	}
}

func WithUpdatePasswordHandler(h *UpdatePasswordHandler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.UpdatePassword = h
		return ac
	}
}

func WithPasswordResetHandler(h *RequestPasswordResetHandler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.ResetPassword = h
		return ac
	}
}

func WithAccountService(s *AccountService) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Accounts = s
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   newDefaultLogger(),
		BasePath: "/api/v1",
		Routes: &AuthControllerRoutes{
			Auth:           "/auth",
			Refresh:        "/auth/refresh",
			ForgotPassword: "/auth/forgot-password",
			Users:          "/users",
			User:           "/users/:refId",
			Deactivate:     "/users/deactivate",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.HTTP == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}
	if c.Register == nil || c.UpdatePassword == nil || c.ResetPassword == nil {
		panic("Missing command handlers in auth controller...")
	}
	if c.Accounts == nil {
		panic("Missing AccountService in auth controller...")
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = c.HTTP.ErrorHandler
	}

	return c
}

// RegisterRoutes mounts every route on r. The gate must run in front of r.
func (a *AuthController) RegisterRoutes(r fiber.Router) {
	r.Post(a.Routes.Auth, a.LoginPost).Name("auth.login")
	r.Post(a.Routes.Refresh, a.RefreshPost).Name("auth.refresh")
	r.Post(a.Routes.ForgotPassword, a.ForgotPasswordPost).Name("auth.forgot-password")
	r.Patch(a.Routes.Auth, a.PasswordPatch).Name("auth.password")

	r.Post(a.Routes.Users, a.RegistrationCreate).Name("users.create")
	r.Get(a.Routes.Users, Guard(RequireRole(RoleAdmin), a.ErrorHandler), a.UsersList).Name("users.list")
	r.Patch(a.Routes.Deactivate, a.UserToggleStatus).Name("users.deactivate")
	r.Patch(a.Routes.Users, a.UserUpdate).Name("users.update")
	r.Get(a.Routes.User, a.UserGet).Name("users.get")
	r.Delete(a.Routes.User, Guard(RequireRole(RoleAdmin), a.ErrorHandler), a.UserDelete).Name("users.delete")
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) GetEmail() string    { return r.Email }
func (r LoginRequest) GetPassword() string { return r.Password }

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		a.Logger.Debug("login request", "payload", print.MaybePrettyJSON(map[string]any{
			"email": payload.Email,
		}))
	}

	token, err := a.HTTP.Login(c, payload)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.JSON(token)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	token, err := a.HTTP.Refresh(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.JSON(token)
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ForgotPasswordPost always answers 204 for well formed requests so
// callers can not learn which emails are registered.
func (a *AuthController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	err := a.ResetPassword.Execute(c.UserContext(), RequestPasswordResetMessage{
		Email: payload.Email,
	})
	if err != nil {
		a.Logger.Error("password reset request failed", "error", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdatePasswordRequest payload
type UpdatePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (r UpdatePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 72)),
	)
}

func (a *AuthController) PasswordPatch(c *fiber.Ctx) error {
	principal, err := RequirePrincipal(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	payload := new(UpdatePasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	err = a.UpdatePassword.Execute(c.UserContext(), UpdatePasswordMessage{
		Principal:   principal,
		NewPassword: payload.NewPassword,
	})
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RegistrationRequest payload
type RegistrationRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (r RegistrationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.FirstName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
	)
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationRequest)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		a.Logger.Debug("registration request", "payload", print.MaybePrettyJSON(map[string]any{
			"email":     payload.Email,
			"firstName": payload.FirstName,
			"lastName":  payload.LastName,
		}))
	}

	var created *Account
	err := a.Register.Execute(c.UserContext(), RegisterAccountMessage{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		OnResponse: func(account *Account) {
			created = account
		},
	})
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	c.Location(fmt.Sprintf("%s%s/%s", a.BasePath, a.Routes.Users, created.IdentityRef))
	return c.Status(fiber.StatusCreated).JSON(NewAccountResponse(created))
}

func (a *AuthController) UsersList(c *fiber.Ctx) error {
	accounts, err := a.Accounts.List(c.UserContext())
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	out := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, NewAccountResponse(acc))
	}
	return c.JSON(out)
}

func (a *AuthController) UserGet(c *fiber.Ctx) error {
	principal, err := RequirePrincipal(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	ref, err := ParseIdentityRef(c.Params("refId"))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	account, err := a.Accounts.Get(c.UserContext(), principal, ref)
	if err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.JSON(NewAccountResponse(account))
}

// UpdateProfileRequest payload
type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
	)
}

func (a *AuthController) UserUpdate(c *fiber.Ctx) error {
	principal, err := RequirePrincipal(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	payload := new(UpdateProfileRequest)
	if err := a.bind(c, payload); err != nil {
		return a.ErrorHandler(c, err)
	}

	if _, err := a.Accounts.UpdateProfile(c.UserContext(), principal, payload.FirstName, payload.LastName); err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) UserToggleStatus(c *fiber.Ctx) error {
	principal, err := RequirePrincipal(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	if _, err := a.Accounts.ToggleStatus(c.UserContext(), principal); err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) UserDelete(c *fiber.Ctx) error {
	principal, err := RequirePrincipal(c)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	ref, err := ParseIdentityRef(c.Params("refId"))
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	if err := a.Accounts.Delete(c.UserContext(), principal, ref); err != nil {
		return a.ErrorHandler(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type validatable interface {
	Validate() error
}

func (a *AuthController) bind(c *fiber.Ctx, payload validatable) error {
	if err := c.BodyParser(payload); err != nil {
		return Derive(ErrInvalidArguments, "malformed request body", err)
	}
	return payload.Validate()
}

// AccountResponse is the public view of an account
type AccountResponse struct {
	IdentityRef string        `json:"identityRef"`
	Email       string        `json:"email"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	Roles       []Role        `json:"roles"`
	Status      AccountStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func NewAccountResponse(account *Account) AccountResponse {
	if account == nil {
		return AccountResponse{}
	}
	return AccountResponse{
		IdentityRef: account.IdentityRef.String(),
		Email:       account.Email(),
		FirstName:   account.FirstName,
		LastName:    account.LastName,
		Roles:       account.Roles,
		Status:      account.Status,
		CreatedAt:   account.CreatedAt,
	}
}
