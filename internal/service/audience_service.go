// internal/service/audience_service.go
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/phone"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

// AudienceService owns recipient normalization, deduplication and status
// transitions for campaign audiences and the master directory.
type AudienceService struct {
	AudienceRepo  repository.AudienceRepositoryInterface
	DefaultRegion string
	Logger        zerolog.Logger
}

// ContactInput is one raw contact submitted for a campaign.
type ContactInput struct {
	Name       string         `json:"name"`
	Phone      string         `json:"phone"`
	Attributes model.Document `json:"attributes,omitempty"`
}

// ContactError reports a single rejected contact; the batch itself succeeds.
type ContactError struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

// AddResult partitions a batch into persisted recipients and per-item errors.
type AddResult struct {
	Added  []*model.CampaignAudience `json:"added"`
	Errors []ContactError            `json:"errors"`
}

// AddToCampaign normalizes and persists a batch of contacts. Bad phone
// numbers and duplicates already present in the campaign come back as
// per-item errors; the rest of the batch is committed. The campaign's
// targeted-audience counter is recomputed inside the same transaction.
func (s *AudienceService) AddToCampaign(ctx context.Context, campaignID, orgID int64, contacts []ContactInput, requiresAssets bool) (*AddResult, error) {
	result := &AddResult{}

	var valid []*model.CampaignAudience
	for _, c := range contacts {
		msisdn, err := phone.Normalize(c.Phone, s.DefaultRegion)
		if err != nil {
			s.Logger.Debug().Str("phone", c.Phone).Msg("rejecting contact with bad phone")
			result.Errors = append(result.Errors, ContactError{Phone: c.Phone, Reason: err.Error()})
			continue
		}
		assetStatus := model.AssetStatusNotRequired
		if requiresAssets {
			assetStatus = model.AssetStatusPending
		}
		valid = append(valid, &model.CampaignAudience{
			Name:          c.Name,
			MSISDN:        msisdn,
			Attributes:    c.Attributes,
			MessageStatus: model.MessageStatusPending,
			AssetStatus:   assetStatus,
		})
	}

	if len(valid) > 0 {
		added, duplicates, err := s.AudienceRepo.BulkAdd(ctx, campaignID, orgID, valid)
		if err != nil {
			return nil, err
		}
		result.Added = added
		for _, d := range duplicates {
			result.Errors = append(result.Errors, ContactError{Phone: d, Reason: "already in campaign"})
		}
	}
	return result, nil
}

// UpdateStatus applies a monotonic status transition; a stale or duplicate
// event returns applied=false and changes nothing.
func (s *AudienceService) UpdateStatus(ctx context.Context, audienceID int64, status, failureReason string) (bool, error) {
	return s.AudienceRepo.UpdateStatus(ctx, audienceID, status, failureReason)
}

// RemoveFromCampaign deletes a recipient and recomputes the targeted counter.
func (s *AudienceService) RemoveFromCampaign(ctx context.Context, campaignID int64, rawPhone string) error {
	msisdn, err := phone.Normalize(rawPhone, s.DefaultRegion)
	if err != nil {
		return err
	}
	return s.AudienceRepo.RemoveFromCampaign(ctx, campaignID, msisdn)
}
