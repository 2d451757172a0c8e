package webhookapi

import (
	"io"
	"net/http"

	gh "github.com/google/go-github/v84/github"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/triagebot/internal/event"
)

// webhookResponse is the body returned for every accepted delivery.
type webhookResponse struct {
	ID      string `json:"id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := gh.WebHookType(r)
	delivery := gh.DeliveryID(r)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("github.event", name),
		attribute.String("github.delivery", delivery),
	)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ev, reason, err := event.Parse(name, payload)
	if err != nil {
		a.logger.Warn(ctx, "rejected webhook", "event", name, "delivery", delivery, "error", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if ev == nil {
		a.logger.Info(ctx, "webhook ignored", "event", name, "delivery", delivery, "reason", reason)
		writeJSON(w, http.StatusOK, webhookResponse{Skipped: true, Reason: reason})
		return
	}

	res, err := a.svc.Submit(ctx, ev)
	if err != nil {
		a.logger.Error(ctx, err, "failed to submit event", "issue", ev.Ref.String(), "delivery", delivery)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if res.Skipped {
		writeJSON(w, http.StatusOK, webhookResponse{Skipped: true, Reason: res.Reason})
		return
	}

	span.SetAttributes(attribute.String("triage.run.id", res.ID))
	a.logger.Info(ctx, "webhook accepted",
		"event", name,
		"delivery", delivery,
		"issue", ev.Ref.String(),
		"event_kind", ev.Kind,
		"run_id", res.ID,
	)
	writeJSON(w, http.StatusAccepted, webhookResponse{ID: res.ID})
}
