package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatewarden/gatewarden/internal/authz"
	"github.com/gatewarden/gatewarden/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthzHandler   *authz.Handler
	Metrics        *observability.Metrics
	HealthHandlers []func(chi.Router)
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	for _, mount := range params.HealthHandlers {
		mount(r)
	}

	r.Route("/v1", func(r chi.Router) {
		tokenHash := ""
		if params.Config != nil {
			tokenHash = params.Config.APITokenHash
		}
		r.Use(TokenAuth(tokenHash, params.Logger))
		params.AuthzHandler.MountRoutes(r)
	})

	return r
}
