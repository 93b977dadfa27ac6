// Package billing exposes the subscription engine over HTTP: checkout,
// provider webhooks, the current subscription, cancellation, the checkout
// success page and the plan catalog.
package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/subscription-api/handler"
	"github.com/dmitrymomot/subscription-api/pkg/jwt"
	"github.com/dmitrymomot/subscription-api/pkg/logger"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

// MaxWebhookBody caps provider webhook payloads.
const MaxWebhookBody = 64 << 10

// SuccessMessage is shown after a completed checkout.
const SuccessMessage = "Payment successful! You can now close this page."

// Engine is the part of subscription.Engine the HTTP layer drives.
type Engine interface {
	RequestCheckout(ctx context.Context, userID, planID string) (*subscription.CheckoutResult, error)
	RequestCancel(ctx context.Context, userID string) (*subscription.Subscription, error)
	GetCurrent(ctx context.Context, userID string) (*subscription.Subscription, error)
	HandleEvent(ctx context.Context, ev subscription.Event) error
	ConfirmCheckout(ctx context.Context, sessionID string) (*subscription.SessionInfo, error)
	Plans() []subscription.Plan
}

// EventVerifier authenticates and decodes raw provider webhooks.
type EventVerifier interface {
	VerifyAndParseEvent(payload []byte, signatureHeader string) (subscription.Event, error)
}

// Module serves the billing routes.
type Module struct {
	engine          Engine
	verifier        EventVerifier
	signatureHeader string
	auth            func(http.Handler) http.Handler
	log             *slog.Logger
	languages       language.Matcher
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.log = l
		}
	}
}

// WithLanguages sets the languages offered for price formatting. The first
// one is the fallback.
func WithLanguages(tags ...language.Tag) Option {
	return func(m *Module) {
		if len(tags) > 0 {
			m.languages = language.NewMatcher(tags)
		}
	}
}

// New builds the module. auth must verify the caller and put its claims in
// the request context, see jwt.Middleware. signatureHeader names the header
// carrying the provider signature.
func New(engine Engine, verifier EventVerifier, signatureHeader string, auth func(http.Handler) http.Handler, opts ...Option) *Module {
	m := &Module{
		engine:          engine,
		verifier:        verifier,
		signatureHeader: signatureHeader,
		auth:            auth,
		log:             logger.Discard(),
		languages:       language.NewMatcher([]language.Tag{language.AmericanEnglish}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("billing"))
	return m
}

// Handle returns the module router.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	m.Routes(r)
	return r
}

// Routes registers the module routes on r.
func (m *Module) Routes(r chi.Router) {
	r.Get("/plans", handler.Wrap(m.plans))

	r.Route("/subscription", func(r chi.Router) {
		r.Post("/webhook", m.webhook)
		r.Get("/success", handler.Wrap(m.success))

		r.Group(func(r chi.Router) {
			r.Use(m.auth)
			r.Get("/", handler.Wrap(m.current, handler.WithErrorHandler[handler.Empty](m.renderError)))
			r.Post("/checkout", handler.Wrap(m.checkout,
				handler.WithBinder[checkoutRequest](handler.BindJSON),
				handler.WithErrorHandler[checkoutRequest](m.renderError),
			))
			r.Post("/cancel", handler.Wrap(m.cancel, handler.WithErrorHandler[handler.Empty](m.renderError)))
		})
	})
}

func (m *Module) renderError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := mapError(err)
	var httpErr handler.HTTPError
	if !errors.As(mapped, &httpErr) {
		m.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
	}
	handler.DefaultErrorHandler(w, r, mapped)
}

type checkoutRequest struct {
	PlanID string `json:"planId"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func (m *Module) checkout(r *http.Request, req checkoutRequest) handler.Response {
	if strings.TrimSpace(req.PlanID) == "" {
		return handler.Error(errMissingPlan)
	}

	res, err := m.engine.RequestCheckout(r.Context(), jwt.UserIDFromContext(r.Context()), req.PlanID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(checkoutResponse{URL: res.RedirectURL})
}

func (m *Module) current(r *http.Request, _ handler.Empty) handler.Response {
	sub, err := m.engine.GetCurrent(r.Context(), jwt.UserIDFromContext(r.Context()))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sub)
}

func (m *Module) cancel(r *http.Request, _ handler.Empty) handler.Response {
	sub, err := m.engine.RequestCancel(r.Context(), jwt.UserIDFromContext(r.Context()))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sub)
}

type webhookResponse struct {
	Received bool `json:"received"`
}

// webhook reads the body untouched; any re-encoding would break the
// provider signature.
func (m *Module) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handler.DefaultErrorHandler(w, r, handler.ErrRequestEntityTooLarge)
			return
		}
		handler.DefaultErrorHandler(w, r, handler.ErrBadRequest)
		return
	}

	ev, err := m.verifier.VerifyAndParseEvent(payload, r.Header.Get(m.signatureHeader))
	if err != nil {
		m.log.WarnContext(r.Context(), "webhook rejected", logger.Error(err))
		handler.DefaultErrorHandler(w, r, errInvalidEvent.WithMessage("Webhook Error: "+err.Error()))
		return
	}

	if err := m.engine.HandleEvent(r.Context(), ev); err != nil {
		m.log.ErrorContext(r.Context(), "webhook processing failed",
			logger.EventID(ev.EventID()), logger.EventType(ev.EventType()), logger.Error(err))
		handler.DefaultErrorHandler(w, r, handler.ErrInternalServerError)
		return
	}

	_ = handler.JSON(webhookResponse{Received: true}).Render(w, r)
}

func (m *Module) success(r *http.Request, _ handler.Empty) handler.Response {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		sessionID = q.Get("sessionId")
	}
	if sessionID == "" {
		return handler.JSONError(invalidSession("session_id is required"))
	}

	if _, err := m.engine.ConfirmCheckout(r.Context(), sessionID); err != nil {
		m.log.InfoContext(r.Context(), "checkout confirmation failed", logger.SessionID(sessionID), logger.Error(err))
		if subscription.IsTransient(err) {
			return handler.JSONError(errProviderDown)
		}
		return handler.JSONError(invalidSession(err.Error()))
	}
	return handler.Text(SuccessMessage)
}

type planResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Price        subscription.Money `json:"price"`
	Interval     string             `json:"interval"`
	DisplayPrice string             `json:"displayPrice"`
}

func (m *Module) plans(r *http.Request, _ handler.Empty) handler.Response {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	tag, _, _ := m.languages.Match(tags...)

	plans := m.engine.Plans()
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			Price:        p.Price,
			Interval:     string(p.Interval),
			DisplayPrice: p.Price.Format(tag),
		})
	}
	return handler.JSON(out)
}
