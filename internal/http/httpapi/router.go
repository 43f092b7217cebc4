// Package httpapi assembles the chi router: middleware chain, public
// endpoints and the session-gated API surface.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"adforge/internal/http/handlers"
	"adforge/internal/infra"
	"adforge/internal/infra/geoip"
	"adforge/internal/middleware"
)

// NewRouter builds the HTTP routing tree. staticDir, when non-empty, mounts a
// file server under /static for the local filesystem store used in
// development.
func NewRouter(app *handlers.App, logger infra.Logger, countries geoip.CountryResolver, staticDir string) http.Handler {
	r := chi.NewRouter()

	var lookup middleware.CountryLookup
	if countries != nil {
		lookup = countries.CountryCode
	}

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(logger, lookup))
	r.Use(middleware.CORS)
	r.Use(middleware.I18N("en"))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Post("/auth/google", app.AuthGoogle)

		// SSE clients cannot set Authorization headers from EventSource,
		// so the stream endpoint stays public and is keyed by email.
		r.Get("/ads/events", app.AdsEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(app.JWTSecret))

			r.Get("/me", app.Me)

			r.Route("/ads", func(r chi.Router) {
				r.Post("/", app.AdsSubmit)
				r.Get("/", app.AdsList)
				r.Get("/{ad_id}", app.AdsGet)
				r.Post("/{ad_id}/video", app.AdsGenerateVideo)
			})
		})
	})

	if staticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	return r
}
