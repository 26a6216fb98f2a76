// internal/service/correlator.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// Correlator ingests asynchronous gateway events and reconciles them with
// audience records. Ingestion is append-only; correlation mutates each event
// exactly once (processed flag, optionally with an error message) and never
// propagates a correlation miss to the caller.
type Correlator struct {
	EventRepo    repository.WebhookEventRepositoryInterface
	IncomingRepo repository.IncomingMessageRepositoryInterface
	AudienceRepo repository.AudienceRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface

	Logger zerolog.Logger
}

// Ingest persists the raw event unconditionally with processed=false.
func (c *Correlator) Ingest(ctx context.Context, ev *model.WebhookEvent) error {
	return c.EventRepo.Insert(ctx, ev)
}

// Correlate matches the event to its audience record and applies the status
// change. Unknown message ids are recorded on the event row and surfaced via
// the unprocessed/statistics read paths; they are not errors here. Only infra
// failures (DB down) return an error, leaving the event unprocessed for the
// next attempt.
func (c *Correlator) Correlate(ctx context.Context, ev *model.WebhookEvent) error {
	status, reason, ok := statusForEvent(ev)
	if !ok {
		// Inbound content and presence events carry no delivery status; the
		// inbound path persists them separately.
		return c.EventRepo.MarkProcessed(ctx, ev.ID, "")
	}

	if ev.MessageID == "" {
		// Gateways occasionally emit receipts without a message id. An empty
		// key would match every not-yet-dispatched row, so it is a miss.
		miss := appErrors.NewCorrelationMiss(ev.MessageID, "event carries no message id")
		c.Logger.Warn().Str("event_type", ev.EventType).Msg("correlation miss")
		return c.EventRepo.MarkProcessed(ctx, ev.ID, miss.Error())
	}

	rec, err := c.AudienceRepo.FindByMessageID(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if rec == nil {
		// A receipt can race the worker recording the gateway message id;
		// the miss is recorded for operator tooling, not thrown.
		miss := appErrors.NewCorrelationMiss(ev.MessageID, "no audience record with this message id")
		c.Logger.Warn().Str("message_id", ev.MessageID).Str("event_type", ev.EventType).
			Msg("correlation miss")
		return c.EventRepo.MarkProcessed(ctx, ev.ID, miss.Error())
	}

	applied, err := c.AudienceRepo.UpdateStatus(ctx, rec.ID, status, reason)
	if err != nil {
		return err
	}
	if !applied {
		c.Logger.Debug().Int64("audience_id", rec.ID).Str("status", status).
			Msg("stale or duplicate event, status unchanged")
	}

	if err := c.EventRepo.LinkAudience(ctx, ev.ID, rec.CampaignID, rec.ID); err != nil {
		return err
	}
	if err := c.CampaignRepo.RefreshCounters(ctx, rec.CampaignID); err != nil {
		return err
	}
	return c.EventRepo.MarkProcessed(ctx, ev.ID, "")
}

// statusForEvent maps a gateway event to the recipient status it implies.
func statusForEvent(ev *model.WebhookEvent) (status, reason string, ok bool) {
	switch ev.EventType {
	case model.EventDeliveryReceipt:
		return model.MessageStatusDelivered, "", true
	case model.EventReadReceipt:
		return model.MessageStatusRead, "", true
	case model.EventError:
		return model.MessageStatusFailed, errorReason(ev.RawPayload), true
	case model.EventMessageStatus:
		var body struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(ev.RawPayload, &body); err != nil {
			return "", "", false
		}
		switch body.Status {
		case "sent":
			return model.MessageStatusSent, "", true
		case "delivered":
			return model.MessageStatusDelivered, "", true
		case "read":
			return model.MessageStatusRead, "", true
		case "failed":
			return model.MessageStatusFailed, errorReason(ev.RawPayload), true
		}
	}
	return "", "", false
}

func errorReason(raw model.RawJSON) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Message == "" {
		return "gateway reported failure"
	}
	if body.Error.Code != 0 {
		return fmt.Sprintf("%s (code %d)", body.Error.Message, body.Error.Code)
	}
	return body.Error.Message
}

// IngestInbound persists one inbound message, idempotent on the gateway
// message id: a redelivered webhook is swallowed. When the message answers a
// campaign send, the originating campaign is resolved from the context
// message id, and campaigns configured with an auto-reply template get the
// row flagged for the auto-reply engine.
func (c *Correlator) IngestInbound(ctx context.Context, msg *model.IncomingMessage) (bool, error) {
	if msg.ContextMessageID != "" && msg.ContextCampaignID == nil {
		rec, err := c.AudienceRepo.FindByMessageID(ctx, msg.ContextMessageID)
		if err != nil {
			return false, err
		}
		if rec != nil {
			msg.ContextCampaignID = &rec.CampaignID
		}
	}

	if msg.ContextCampaignID != nil && !msg.IsAutoReply {
		campaign, err := c.CampaignRepo.GetByID(ctx, *msg.ContextCampaignID)
		if err != nil {
			// A deleted campaign just means no auto-reply flag. Anything else
			// must abort before the row is persisted: inserting without the
			// flag would let the dedupe swallow the gateway's redelivery.
			var notFound *appErrors.ErrCampaignNotFound
			if !errors.As(err, &notFound) {
				return false, err
			}
		} else if campaign.AutoReplyTemplateID != nil {
			msg.IsAutoReply = true
			msg.AutoReplyTemplateID = campaign.AutoReplyTemplateID
			msg.SendAutoReply = model.AutoReplyPending
		}
	}

	created, err := c.IncomingRepo.Insert(ctx, msg)
	if err != nil {
		return false, err
	}
	if !created {
		c.Logger.Debug().Str("message_id", msg.MessageID).Msg("duplicate inbound webhook, skipping")
		return false, nil
	}

	if msg.ContextCampaignID != nil {
		if err := c.CampaignRepo.RefreshCounters(ctx, *msg.ContextCampaignID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// FindUnprocessed, GetStatistics and FindByOrganization are the operator-
// facing read paths; they stay off the ingestion hot path.

func (c *Correlator) FindUnprocessed(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	return c.EventRepo.FindUnprocessed(ctx, limit)
}

func (c *Correlator) GetStatistics(ctx context.Context, orgID int64) (map[string]int, error) {
	return c.EventRepo.GetStatistics(ctx, orgID)
}

func (c *Correlator) FindByOrganization(ctx context.Context, orgID int64, offset, limit int) ([]*model.WebhookEvent, error) {
	return c.EventRepo.FindByOrganization(ctx, orgID, offset, limit)
}
