// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// CampaignService exposes the operator-driven side of the campaign state
// machine: creation and the explicit lifecycle transitions. The scheduler
// owns the automatic transitions (running, completed).
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Logger       zerolog.Logger
}

// lifecycleTransitions maps each operator action to the states it is legal
// from.
var lifecycleTransitions = map[string][]string{
	model.CampaignStatusPendingApproval: {model.CampaignStatusDraft},
	model.CampaignStatusApproved:        {model.CampaignStatusPendingApproval},
	model.CampaignStatusRejected:        {model.CampaignStatusPendingApproval},
	model.CampaignStatusReadyToLaunch:   {model.CampaignStatusApproved, model.CampaignStatusScheduled, model.CampaignStatusAssetGenerated, model.CampaignStatusPaused},
	model.CampaignStatusPaused:          {model.CampaignStatusRunning, model.CampaignStatusApproved, model.CampaignStatusReadyToLaunch},
	model.CampaignStatusCancelled: {
		model.CampaignStatusDraft, model.CampaignStatusPendingApproval, model.CampaignStatusApproved,
		model.CampaignStatusScheduled, model.CampaignStatusReadyToLaunch, model.CampaignStatusRunning,
		model.CampaignStatusPaused,
	},
}

func (s *CampaignService) CreateCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	if c.Type == "" {
		c.Type = model.CampaignTypeImmediate
	}
	// scheduled_at is required exactly when the campaign is not immediate.
	if c.Type != model.CampaignTypeImmediate && c.ScheduledAt == nil {
		return nil, fmt.Errorf("scheduled_at is required for %s campaigns", c.Type)
	}
	if c.Type == model.CampaignTypeImmediate {
		c.ScheduledAt = nil
	}

	if _, err := s.TemplateRepo.GetByID(ctx, c.TemplateID); err != nil {
		return nil, err
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Transition applies one operator lifecycle action. Illegal transitions (for
// the campaign's current state) return an error rather than silently racing
// the scheduler.
func (s *CampaignService) Transition(ctx context.Context, campaignID int64, to string) (*model.Campaign, error) {
	from, ok := lifecycleTransitions[to]
	if !ok {
		return nil, fmt.Errorf("unknown campaign transition: %s", to)
	}
	applied, err := s.CampaignRepo.UpdateStatusIf(ctx, campaignID, from, to)
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := s.CampaignRepo.GetByID(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("campaign cannot move to %s from %s", to, current.Status)
	}
	s.Logger.Info().Int64("campaign_id", campaignID).Str("status", to).Msg("campaign transitioned")
	return s.CampaignRepo.GetByID(ctx, campaignID)
}

// ListCampaigns fetches campaigns with pagination and optional filters.
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, filter repository.CampaignFilter) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, filter)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// GetCampaignDetails returns the campaign with its counters refreshed.
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id int64) (*model.Campaign, error) {
	if err := s.CampaignRepo.RefreshCounters(ctx, id); err != nil {
		return nil, err
	}
	return s.CampaignRepo.GetByID(ctx, id)
}

// ParseScheduledAt parses an RFC3339 schedule timestamp from the API.
func ParseScheduledAt(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
