// Package account serves password signup and login and hands out bearer
// tokens for the billing routes.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subscription-api/handler"
	"github.com/dmitrymomot/subscription-api/pkg/logger"
	"github.com/dmitrymomot/subscription-api/svc/auth"
)

// Authenticator registers and verifies users.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID, email, role string) (string, error)
}

var (
	errEmailTaken   = handler.HTTPError{Code: http.StatusBadRequest, Key: "email_already_exists", Message: "Email already exists"}
	errInvalidCreds = handler.HTTPError{Code: http.StatusUnauthorized, Key: "invalid_credentials", Message: "Invalid credentials"}
)

// Module serves /auth routes.
type Module struct {
	auth   Authenticator
	tokens TokenIssuer
	log    *slog.Logger
}

// New builds the module. log may be nil.
func New(a Authenticator, tokens TokenIssuer, log *slog.Logger) *Module {
	if log == nil {
		log = logger.Discard()
	}
	return &Module{auth: a, tokens: tokens, log: log.With(logger.Component("account"))}
}

// Handle returns the module router.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	m.Routes(r)
	return r
}

// Routes registers the module routes on r.
func (m *Module) Routes(r chi.Router) {
	r.Post("/auth/signup", handler.Wrap(m.signup,
		handler.WithBinder[credentials](handler.BindJSON),
		handler.WithErrorHandler[credentials](m.renderError),
	))
	r.Post("/auth/login", handler.Wrap(m.login,
		handler.WithBinder[credentials](handler.BindJSON),
		handler.WithErrorHandler[credentials](m.renderError),
	))
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (m *Module) signup(r *http.Request, req credentials) handler.Response {
	user, err := m.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		return handler.Error(err)
	}
	return m.issue(user, http.StatusCreated)
}

func (m *Module) login(r *http.Request, req credentials) handler.Response {
	user, err := m.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		return handler.Error(err)
	}
	return m.issue(user, http.StatusOK)
}

func (m *Module) issue(user *auth.User, status int) handler.Response {
	token, err := m.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSONStatus(status, tokenResponse{AccessToken: token})
}

func (m *Module) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrEmailAlreadyExists):
		err = errEmailTaken
	case errors.Is(err, auth.ErrInvalidCredentials):
		err = errInvalidCreds
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		err = handler.ErrBadRequest.WithMessage(err.Error())
	default:
		var httpErr handler.HTTPError
		if !errors.As(err, &httpErr) {
			m.log.ErrorContext(r.Context(), "account request failed", logger.Error(err))
		}
	}
	handler.DefaultErrorHandler(w, r, err)
}
