// internal/service/scheduler.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	appErrors "github.com/waflowhq/waflow-backend/internal/errors"
	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/payload"
	"github.com/waflowhq/waflow-backend/internal/queue"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// Scheduler drives the campaign state machine: it claims due campaigns,
// streams their audience in bounded batches, builds and enqueues one payload
// per recipient, and completes campaigns once every recipient is terminal.
type Scheduler struct {
	CampaignRepo repository.CampaignRepositoryInterface
	AudienceRepo repository.AudienceRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	OrgRepo      repository.OrganizationRepositoryInterface
	Publisher    queue.Publisher

	RoutingKey string
	BatchSize  int
	MaxRetries int
	Logger     zerolog.Logger
}

// Run is one poll tick. Infra errors abort the tick and are retried on the
// next one; per-recipient failures never do.
func (s *Scheduler) Run(ctx context.Context) error {
	due, err := s.CampaignRepo.ListDue(ctx, 20)
	if err != nil {
		return fmt.Errorf("list due campaigns: %w", err)
	}

	for _, c := range due {
		if err := s.launch(ctx, c); err != nil {
			if errors.Is(err, appErrors.ErrQueueUnavailable) {
				// Queue outage: stop the whole tick, nothing was advanced
				// past its last confirmed enqueue.
				return err
			}
			s.Logger.Error().Err(err).Int64("campaign_id", c.ID).Msg("campaign dispatch failed")
		}
	}

	return s.completeFinished(ctx)
}

func (s *Scheduler) launch(ctx context.Context, c *model.Campaign) error {
	org, err := s.OrgRepo.GetByID(ctx, c.OrganizationID)
	if err != nil {
		return err
	}
	if org == nil || !org.Active() {
		s.Logger.Warn().Int64("campaign_id", c.ID).Int64("org_id", c.OrganizationID).
			Msg("skipping campaign for inactive organization")
		return nil
	}

	// Claim the campaign. Losing the claim means another instance (or an
	// operator action) got there first. A campaign already running holds the
	// claim from an earlier tick whose batch was aborted mid-flight; resume
	// it without flipping the status again.
	if c.Status != model.CampaignStatusRunning {
		claimed, err := s.CampaignRepo.UpdateStatusIf(ctx, c.ID,
			[]string{model.CampaignStatusApproved, model.CampaignStatusReadyToLaunch},
			model.CampaignStatusRunning,
		)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
	}

	tpl, err := s.TemplateRepo.GetByID(ctx, c.TemplateID)
	if err != nil {
		// Without a template nothing can be built; park the campaign for the
		// operator rather than respinning every tick.
		s.Logger.Error().Err(err).Int64("campaign_id", c.ID).Msg("template lookup failed, pausing campaign")
		return s.CampaignRepo.UpdateStatus(ctx, c.ID, model.CampaignStatusPaused)
	}

	return s.dispatch(ctx, c, tpl)
}

// dispatch streams the campaign's audience and enqueues one payload per
// recipient. Recipient status only advances after a confirmed enqueue, so an
// aborted batch leaves the remaining rows dispatchable for the next tick.
func (s *Scheduler) dispatch(ctx context.Context, c *model.Campaign, tpl *model.Template) error {
	var afterID int64
	for {
		// Re-read the campaign each batch so a pause or cancel mid-flight
		// halts further dispatch without touching rows already enqueued.
		current, err := s.CampaignRepo.GetByID(ctx, c.ID)
		if err != nil {
			return err
		}
		if current.Status != model.CampaignStatusRunning {
			s.Logger.Info().Int64("campaign_id", c.ID).Str("status", current.Status).
				Msg("campaign no longer running, halting dispatch")
			return nil
		}

		batch, err := s.AudienceRepo.ListDispatchable(ctx, c.ID, afterID, s.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			afterID = rec.ID
			if err := s.dispatchRecipient(ctx, c, tpl, rec); err != nil {
				return err
			}
		}
		if len(batch) < s.BatchSize {
			break
		}
	}

	if err := s.CampaignRepo.RefreshCounters(ctx, c.ID); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) dispatchRecipient(ctx context.Context, c *model.Campaign, tpl *model.Template, rec *model.CampaignAudience) error {
	// Recipients of personalized-asset campaigns wait for the asset pipeline;
	// they become dispatchable at asset_generated / ready_to_send.
	if c.RequiresAssets() && rec.MessageStatus == model.MessageStatusPending {
		return nil
	}

	p := payload.Build(tpl, rec)
	if !payload.Validate(p) {
		return s.failRecipient(ctx, rec, "payload validation failed")
	}

	if _, err := s.Publisher.Publish(ctx, s.RoutingKey, p); err != nil {
		if errors.Is(err, appErrors.ErrQueueUnavailable) {
			return err
		}
		return s.failRecipient(ctx, rec, err.Error())
	}

	if _, err := s.AudienceRepo.UpdateStatus(ctx, rec.ID, model.MessageStatusSent, ""); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) failRecipient(ctx context.Context, rec *model.CampaignAudience, reason string) error {
	s.Logger.Warn().Int64("audience_id", rec.ID).Str("reason", reason).Msg("recipient dispatch failed")
	_, err := s.AudienceRepo.UpdateStatus(ctx, rec.ID, model.MessageStatusFailed, reason)
	return err
}

// completeFinished flips running campaigns whose every recipient has reached
// a terminal status.
func (s *Scheduler) completeFinished(ctx context.Context) error {
	running, _, err := s.CampaignRepo.ListCampaigns(ctx, 0, 100, repository.CampaignFilter{
		Status: model.CampaignStatusRunning,
	})
	if err != nil {
		return err
	}
	for _, c := range running {
		open, err := s.AudienceRepo.CountOpen(ctx, c.ID, s.MaxRetries)
		if err != nil {
			return err
		}
		if open > 0 {
			continue
		}
		if err := s.CampaignRepo.RefreshCounters(ctx, c.ID); err != nil {
			return err
		}
		done, err := s.CampaignRepo.UpdateStatusIf(ctx, c.ID,
			[]string{model.CampaignStatusRunning}, model.CampaignStatusCompleted)
		if err != nil {
			return err
		}
		if done {
			s.Logger.Info().Int64("campaign_id", c.ID).Msg("campaign completed")
		}
	}
	return nil
}
