// Package webhookapi serves the GitHub webhook endpoint and run lookups.
package webhookapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/triagebot/internal/authmw"
	"github.com/linnemanlabs/triagebot/internal/triage"
)

// TriageService defines the business operations webhookapi needs.
type TriageService interface {
	Submit(ctx context.Context, ev *triage.Event) (*triage.SubmitResult, error)
	Get(ctx context.Context, id string) (*triage.Run, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger        log.Logger
	svc           TriageService
	webhookSecret string
	apiToken      string
}

// New creates a new API handler. Both secrets are required.
func New(logger log.Logger, svc TriageService, webhookSecret, apiToken string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if webhookSecret == "" || apiToken == "" {
		panic(xerrors.New("webhook secret and api token are required"))
	}
	return &API{
		logger:        logger,
		svc:           svc,
		webhookSecret: webhookSecret,
		apiToken:      apiToken,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(authmw.GitHubSignature(a.webhookSecret)).Post("/webhook", a.handleWebhook)
		r.With(authmw.BearerToken(a.apiToken)).Get("/runs/{id}", a.handleGetRun)
	})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("triage.run.id", id))

	run, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("triage.run.status", string(run.Status)))
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
