package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewMux builds the collector's HTTP surface for pull-based scrapers:
// /metrics (exposition), /snapshot (JSON), /alerts (recent events),
// /healthz. The handler only ever reads the store; it never triggers a
// collection of its own.
func NewMux(store *Store, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			log.Debug().Str("path", req.URL.Path).Str("remote", req.RemoteAddr).Msg("scrape")
		})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		b, err := store.LoadExposition()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write(b)
	})

	r.Get("/snapshot", func(w http.ResponseWriter, req *http.Request) {
		snap, err := store.LoadSnapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})

	r.Get("/alerts", func(w http.ResponseWriter, req *http.Request) {
		events, err := store.Alerts().Tail(100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// process-level metrics of the collector itself
	r.Get("/internal/metrics", promhttp.Handler().ServeHTTP)

	return r
}
