// internal/service/retry.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/payload"
	"github.com/waflowhq/waflow-backend/internal/queue"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// RetryEngine rescans failed recipients whose backoff window has elapsed and
// resubmits them. Rows are claimed with row-level locks, so concurrent passes
// (including other process instances) never double-submit a recipient. A row
// that has spent its retry budget stays failed for good and is never claimed
// again.
type RetryEngine struct {
	AudienceRepo repository.AudienceRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Publisher    queue.Publisher

	RoutingKey string
	BatchSize  int
	MaxRetries int
	Backoff    time.Duration
	Logger     zerolog.Logger
}

// Run is one retry pass.
func (e *RetryEngine) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-e.Backoff)
	claimed, err := e.AudienceRepo.ClaimRetryable(ctx, e.MaxRetries, cutoff, e.BatchSize)
	if err != nil {
		return fmt.Errorf("claim retryable rows: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}
	e.Logger.Info().Int("count", len(claimed)).Msg("retrying failed recipients")

	templates := map[int64]*model.Template{}
	touched := map[int64]bool{}

	for i, rec := range claimed {
		touched[rec.CampaignID] = true

		tpl, ok := templates[rec.CampaignID]
		if !ok {
			campaign, err := e.CampaignRepo.GetByID(ctx, rec.CampaignID)
			if err != nil {
				return err
			}
			tpl, err = e.TemplateRepo.GetByID(ctx, campaign.TemplateID)
			if err != nil {
				e.failRecipient(ctx, rec, "template unavailable: "+err.Error())
				continue
			}
			templates[rec.CampaignID] = tpl
		}

		p := payload.Build(tpl, rec)
		if !payload.Validate(p) {
			e.failRecipient(ctx, rec, "payload validation failed")
			continue
		}
		if _, err := e.Publisher.Publish(ctx, e.RoutingKey, p); err != nil {
			if errors.Is(err, appErrors.ErrQueueUnavailable) {
				// Nothing from this row on was enqueued; release the claims so
				// the rows keep their retry budget and the next pass picks
				// them up once the queue returns.
				e.releaseClaims(ctx, claimed[i:])
				return err
			}
			e.failRecipient(ctx, rec, err.Error())
			continue
		}
		if _, err := e.AudienceRepo.UpdateStatus(ctx, rec.ID, model.MessageStatusSent, ""); err != nil {
			return err
		}
	}

	for campaignID := range touched {
		if err := e.CampaignRepo.RefreshCounters(ctx, campaignID); err != nil {
			return err
		}
	}
	return nil
}

func (e *RetryEngine) releaseClaims(ctx context.Context, rows []*model.CampaignAudience) {
	ids := make([]int64, len(rows))
	for i, rec := range rows {
		ids[i] = rec.ID
	}
	if err := e.AudienceRepo.ReleaseRetryClaim(ctx, ids); err != nil {
		e.Logger.Error().Err(err).Ints64("audience_ids", ids).Msg("could not release retry claims")
	}
}

func (e *RetryEngine) failRecipient(ctx context.Context, rec *model.CampaignAudience, reason string) {
	e.Logger.Warn().Int64("audience_id", rec.ID).Int("retry_count", rec.RetryCount).
		Str("reason", reason).Msg("retry attempt failed")
	if _, err := e.AudienceRepo.UpdateStatus(ctx, rec.ID, model.MessageStatusFailed, reason); err != nil {
		e.Logger.Error().Err(err).Int64("audience_id", rec.ID).Msg("could not record retry failure")
	}
}
