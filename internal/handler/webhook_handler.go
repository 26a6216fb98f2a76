// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/service"
)

// WebhookHandler is the gateway-facing ingestion endpoint plus the
// operator-facing event read paths.
type WebhookHandler struct {
	Correlator *service.Correlator
	Logger     zerolog.Logger
}

// gatewayEvent is the JSON body the messaging gateway posts for every event.
type gatewayEvent struct {
	OrganizationID int64  `json:"organization_id"`
	EventType      string `json:"event_type"`
	MessageID      string `json:"message_id"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`

	// Inbound-message fields.
	MessageType string         `json:"message_type,omitempty"`
	Content     string         `json:"content,omitempty"`
	MediaID     string         `json:"media_id,omitempty"`
	MediaURL    string         `json:"media_url,omitempty"`
	Interactive model.Document `json:"interactive,omitempty"`
	Context     *struct {
		MessageID string `json:"message_id"`
	} `json:"context,omitempty"`
}

// Ingest acks the gateway as soon as the raw event is durably recorded.
// Correlation runs afterwards in the same request; its outcome (including a
// miss) never changes the response, so the gateway does not redeliver events
// we already hold.
func (h *WebhookHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	var in gatewayEvent
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !model.KnownEventType(in.EventType) {
		http.Error(w, "unknown event type: "+in.EventType, http.StatusBadRequest)
		return
	}

	ev := &model.WebhookEvent{
		OrganizationID:  in.OrganizationID,
		EventType:       in.EventType,
		MessageID:       in.MessageID,
		FromNumber:      in.From,
		ToNumber:        in.To,
		RawPayload:      model.RawJSON(body),
		InteractiveData: in.Interactive,
	}
	if err := h.Correlator.Ingest(r.Context(), ev); err != nil {
		h.Logger.Error().Err(err).Msg("webhook ingest failed")
		http.Error(w, "ingest failed", http.StatusInternalServerError)
		return
	}

	if in.EventType == model.EventMessageReceived || in.EventType == model.EventInteractiveResponse {
		msg := &model.IncomingMessage{
			OrganizationID:  in.OrganizationID,
			MessageID:       in.MessageID,
			FromNumber:      in.From,
			ToNumber:        in.To,
			MessageType:     in.MessageType,
			Content:         in.Content,
			MediaID:         in.MediaID,
			MediaURL:        in.MediaURL,
			InteractiveData: in.Interactive,
			RawPayload:      model.RawJSON(body),
		}
		if in.Context != nil {
			msg.ContextMessageID = in.Context.MessageID
		}
		if _, err := h.Correlator.IngestInbound(r.Context(), msg); err != nil {
			h.Logger.Error().Err(err).Str("message_id", in.MessageID).Msg("inbound persist failed")
			http.Error(w, "ingest failed", http.StatusInternalServerError)
			return
		}
	}

	if err := h.Correlator.Correlate(r.Context(), ev); err != nil {
		// Infra failure only; the event stays unprocessed and is retried by
		// operator tooling. The gateway still gets its ack.
		h.Logger.Error().Err(err).Int64("event_id", ev.ID).Msg("correlation errored")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "received", "event_id": ev.ID})
}

func (h *WebhookHandler) ListUnprocessed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.Correlator.FindUnprocessed(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": events})
}

func (h *WebhookHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid organization id", http.StatusBadRequest)
		return
	}
	stats, err := h.Correlator.GetStatistics(r.Context(), orgID)
	if err != nil {
		http.Error(w, "failed to fetch statistics: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *WebhookHandler) ListByOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid organization id", http.StatusBadRequest)
		return
	}
	page, pageSize := 1, 50
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	events, err := h.Correlator.FindByOrganization(r.Context(), orgID, (page-1)*pageSize, pageSize)
	if err != nil {
		http.Error(w, "failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": events, "page": page})
}
