package httpapi

import (
	"expvar"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging(app.Metrics))
	r.Use(WithRecover)
	r.Use(cors.Handler(corsOptions(app.Cfg.CORSOrigins)))
	r.Use(WithIdentity(app.Sessions))

	r.Get("/", app.indexHandler)
	r.Get("/healthz", app.healthHandler)
	r.Get("/debug/metrics", app.metricsHandler)
	r.Handle("/debug/vars", expvar.Handler())
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/login", app.loginHandler)
			r.Post("/logout", app.logoutHandler)
			r.Get("/current", app.currentUserHandler)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", app.listProductsHandler)
			r.Post("/add", app.addProductHandler)
			r.Post("/markFake", app.markFakeHandler)
			r.Get("/check/{id}", app.checkProductHandler)
			r.Get("/verify", app.verifyQRHandler)
			r.Get("/stats", app.statsHandler)
		})
		r.Get("/activity", app.activityHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "Route not found.", "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed.", "method_not_allowed")
	})
	return r
}

// corsOptions allows credentialed requests from origins. Browsers refuse a
// literal "*" on credentialed responses, so a wildcard list echoes the caller's
// origin instead.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return opts
}
