package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subscription-api/handler"
	"github.com/dmitrymomot/subscription-api/pkg/logger"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

// sandboxCheckout stands in for the provider's hosted checkout page. It pays
// the session, feeds the signed completion webhook back through the engine
// and redirects to the success URL carried in the query.
func sandboxCheckout(engine *subscription.Engine, gw *subscription.SandboxGateway, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID := chi.URLParam(r, "sessionID")

		payload, signature, err := gw.Complete(sessionID)
		if err != nil {
			handler.DefaultErrorHandler(w, r, handler.ErrNotFound.WithMessage(err.Error()))
			return
		}
		ev, err := gw.VerifyAndParseEvent(payload, signature)
		if err == nil {
			err = engine.HandleEvent(ctx, ev)
		}
		if err != nil {
			log.ErrorContext(ctx, "sandbox checkout failed", logger.SessionID(sessionID), logger.Error(err))
			handler.DefaultErrorHandler(w, r, handler.ErrInternalServerError)
			return
		}

		if next := r.URL.Query().Get("success_url"); next != "" {
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
