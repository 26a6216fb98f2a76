// internal/service/autoreply.go
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/payload"
	"github.com/waflowhq/waflow-backend/internal/phone"
	"github.com/waflowhq/waflow-backend/internal/queue"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// AutoReplyEngine sends one best-effort reply to each qualifying inbound
// message. Replies are one-shot: a failed attempt marks the row failed and is
// never retried, unlike primary campaign dispatch.
type AutoReplyEngine struct {
	IncomingRepo repository.IncomingMessageRepositoryInterface
	AudienceRepo repository.AudienceRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Publisher    queue.Publisher

	RoutingKey string
	BatchSize  int
	Logger     zerolog.Logger
}

// Run is one auto-reply pass.
func (e *AutoReplyEngine) Run(ctx context.Context) error {
	pending, err := e.IncomingRepo.FindPendingAutoReply(ctx, e.BatchSize)
	if err != nil {
		return fmt.Errorf("find pending auto-replies: %w", err)
	}

	for _, msg := range pending {
		if err := e.reply(ctx, msg); err != nil {
			e.Logger.Warn().Err(err).Int64("incoming_id", msg.ID).
				Str("from", msg.FromNumber).Msg("auto-reply failed")
			if err := e.IncomingRepo.MarkAutoReply(ctx, msg.ID, model.AutoReplyFailed); err != nil {
				return err
			}
			continue
		}
		if err := e.IncomingRepo.MarkAutoReply(ctx, msg.ID, model.AutoReplySent); err != nil {
			return err
		}
	}
	return nil
}

func (e *AutoReplyEngine) reply(ctx context.Context, msg *model.IncomingMessage) error {
	if msg.AutoReplyTemplateID == nil {
		return appErrors.NewInvalidPayload("no auto-reply template on message")
	}
	if msg.ContextCampaignID == nil {
		return appErrors.NewInvalidPayload("inbound message has no campaign context")
	}

	tpl, err := e.TemplateRepo.GetByID(ctx, *msg.AutoReplyTemplateID)
	if err != nil {
		return err
	}
	if tpl.Status != model.TemplateStatusApproved {
		return appErrors.NewInvalidPayload("auto-reply template is not approved")
	}

	// The originating audience record supplies the personalization data;
	// without it there is nothing to build a reply from.
	rec, err := e.AudienceRepo.FindByCampaignAndPhone(ctx, *msg.ContextCampaignID, phone.Variants(msg.FromNumber))
	if err != nil {
		return err
	}
	if rec == nil {
		return appErrors.NewAudienceNotFound(*msg.ContextCampaignID, msg.FromNumber)
	}

	p := payload.Build(tpl, rec)
	p.IsAutoReply = true
	p.OriginalMessageID = msg.MessageID
	p.AutoReplyTemplateID = tpl.ID
	p.ContextMessageID = msg.MessageID

	if !payload.Validate(p) {
		return appErrors.NewInvalidPayload("auto-reply payload failed validation")
	}
	if _, err := e.Publisher.Publish(ctx, e.RoutingKey, p); err != nil {
		return err
	}
	e.Logger.Info().Int64("incoming_id", msg.ID).Str("to", p.To).Msg("auto-reply published")
	return nil
}
