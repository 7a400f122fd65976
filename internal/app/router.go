package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ironstone-erp/ironstone-erp/internal/auth"
	"github.com/ironstone-erp/ironstone-erp/internal/authz"
	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/customers"
	"github.com/ironstone-erp/ironstone-erp/internal/observability"
	"github.com/ironstone-erp/ironstone-erp/internal/orders"
	"github.com/ironstone-erp/ironstone-erp/internal/quotes"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
	"github.com/ironstone-erp/ironstone-erp/internal/statements"
	"github.com/ironstone-erp/ironstone-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	AuthHandler       *auth.Handler
	AuthzMiddleware   authz.Middleware
	CustomersHandler  *customers.Handler
	QuotesHandler     *quotes.Handler
	OrdersHandler     *orders.Handler
	BillingHandler    *billing.Handler
	StatementsHandler *statements.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Ironstone defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// The CSRF token rides the session; clients fetch it here and echo it in
	// the X-CSRF-Token header on mutating requests.
	r.Get("/csrf", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + token + `"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	requireUser := params.AuthzMiddleware.RequireUser
	requireAdmin := params.AuthzMiddleware.RequireAdmin

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/customers", params.CustomersHandler.MountRoutes)
		r.Route("/quotes", func(r chi.Router) {
			params.QuotesHandler.MountRoutes(r, requireAdmin)
		})
		r.Route("/orders", func(r chi.Router) {
			params.OrdersHandler.MountRoutes(r, requireAdmin)
		})
		r.Route("/billing", func(r chi.Router) {
			params.BillingHandler.MountRoutes(r, requireAdmin)
		})
		r.Route("/statements", params.StatementsHandler.MountRoutes)

		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(requireAdmin)
				params.JobHandler.MountRoutes(r)
			})
		}
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
