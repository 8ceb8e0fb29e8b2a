// Package webhook receives build completion notifications from the hosted
// CI backends, normalizes them into the canonical result and hands them to
// the configured sink. One HTTP delivery produces at most one result.
package webhook

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/result"
)

const deliveryHeader = "X-Delivery"

// Delivery is one normalized webhook delivery.
type Delivery struct {
	ID      string
	Backend string
	Build   *result.BuildResult
	Native  *result.NativeBuild
}

// Sink consumes normalized deliveries. It is called once per accepted
// delivery, retries are the sender's responsibility.
type Sink func(ctx context.Context, delivery Delivery) error

// OptionsResolver decides which normalization options apply to a delivery.
// It typically looks up the exercise behind the build. A nil resolver
// normalizes with everything disabled.
type OptionsResolver func(backend string, native *result.NativeBuild) result.Options

// Server is the webhook HTTP server.
type Server struct {
	registry *ci.Registry
	secret   string
	resolve  OptionsResolver
	sink     Sink
}

// NewServer creates the webhook server. The secret authenticates deliveries,
// an empty secret disables the check for local setups.
func NewServer(registry *ci.Registry, secret string, resolve OptionsResolver, sink Sink) *Server {
	return &Server{registry: registry, secret: secret, resolve: resolve, sink: sink}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/webhooks/{backend}/results", s.handleResult).Methods(http.MethodPost)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"up"}`))
}

// handleResult is the single entry point for build completion payloads. The
// backend named in the path parses its own payload, normalization and the
// first-build filter are shared.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "invalid authorization", http.StatusForbidden)
		return
	}

	backendName := mux.Vars(r)["backend"]
	backend, err := s.registry.Get(backendName)
	if err != nil {
		http.Error(w, "unknown backend", http.StatusNotFound)
		return
	}

	deliveryID := r.Header.Get(deliveryHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		http.Error(w, "could not read payload", http.StatusBadRequest)
		return
	}

	native, err := backend.ParseResult(payload)
	if err != nil {
		slog.Error("Could not parse build notification", "backend", backendName, "delivery", deliveryID, "error", err)
		http.Error(w, "could not parse payload", http.StatusBadRequest)
		return
	}

	opts := result.Options{}
	if s.resolve != nil {
		opts = s.resolve(backendName, native)
	}
	build := result.Normalize(native, opts)
	if build == nil {
		// The initial plan verification build carries no student work and is
		// dropped here, acknowledged so the backend does not retry.
		slog.Info("Dropped first build of a new plan", "backend", backendName, "delivery", deliveryID)
		w.WriteHeader(http.StatusOK)
		return
	}

	delivery := Delivery{ID: deliveryID, Backend: backendName, Build: build, Native: native}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.sink(ctx, delivery); err != nil {
		slog.Error("Could not process build result", "backend", backendName, "delivery", deliveryID, "error", err)
		http.Error(w, "could not process result", http.StatusInternalServerError)
		return
	}
	slog.Info("Processed build result", "backend", backendName, "delivery", deliveryID, "successful", build.Successful)
	w.WriteHeader(http.StatusOK)
}

// authorized compares the Authorization header against the configured
// secret in constant time.
func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	given := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(given), []byte(s.secret)) == 1
}
