// internal/service/campaign_service_test.go
package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/repository"
)

func newTestCampaignService(campaigns *fakeCampaignRepo, templates *fakeTemplateRepo) *CampaignService {
	return &CampaignService{CampaignRepo: campaigns, TemplateRepo: templates, Logger: zerolog.Nop()}
}

func TestCreateCampaignRequiresScheduleForScheduledType(t *testing.T) {
	s := newTestCampaignService(newFakeCampaignRepo(), newFakeTemplateRepo(textTemplate(1)))

	_, err := s.CreateCampaign(context.Background(), &model.Campaign{
		OrganizationID: 1, TemplateID: 1, Name: "launch", Type: model.CampaignTypeScheduled,
	})
	assert.Error(t, err)

	at := time.Now().Add(24 * time.Hour)
	c, err := s.CreateCampaign(context.Background(), &model.Campaign{
		OrganizationID: 1, TemplateID: 1, Name: "launch", Type: model.CampaignTypeScheduled, ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)
}

func TestCreateCampaignDropsScheduleForImmediate(t *testing.T) {
	s := newTestCampaignService(newFakeCampaignRepo(), newFakeTemplateRepo(textTemplate(1)))

	at := time.Now()
	c, err := s.CreateCampaign(context.Background(), &model.Campaign{
		OrganizationID: 1, TemplateID: 1, Name: "now", Type: model.CampaignTypeImmediate, ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.Nil(t, c.ScheduledAt)
}

func TestCreateCampaignRejectsMissingTemplate(t *testing.T) {
	s := newTestCampaignService(newFakeCampaignRepo(), newFakeTemplateRepo())
	_, err := s.CreateCampaign(context.Background(), &model.Campaign{
		OrganizationID: 1, TemplateID: 99, Name: "launch",
	})
	assert.Error(t, err)
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	s := newTestCampaignService(campaigns, newFakeTemplateRepo(textTemplate(1)))

	c := campaigns.add(&model.Campaign{OrganizationID: 1, TemplateID: 1, Status: model.CampaignStatusDraft})

	// draft → pending_approval → approved is the happy path.
	updated, err := s.Transition(context.Background(), c.ID, model.CampaignStatusPendingApproval)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPendingApproval, updated.Status)

	updated, err = s.Transition(context.Background(), c.ID, model.CampaignStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusApproved, updated.Status)

	// Approving twice is illegal: the campaign already left pending_approval.
	_, err = s.Transition(context.Background(), c.ID, model.CampaignStatusApproved)
	assert.Error(t, err)
	assert.Equal(t, model.CampaignStatusApproved, campaigns.status(c.ID))
}

func TestTransitionRejectsUnknownAction(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	s := newTestCampaignService(campaigns, newFakeTemplateRepo())
	c := campaigns.add(&model.Campaign{Status: model.CampaignStatusDraft})

	_, err := s.Transition(context.Background(), c.ID, "launched_hard")
	assert.Error(t, err)
}

func TestTransitionCancelFromMostStates(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	s := newTestCampaignService(campaigns, newFakeTemplateRepo())

	for _, status := range []string{
		model.CampaignStatusDraft, model.CampaignStatusApproved,
		model.CampaignStatusRunning, model.CampaignStatusPaused,
	} {
		c := campaigns.add(&model.Campaign{Status: status})
		_, err := s.Transition(context.Background(), c.ID, model.CampaignStatusCancelled)
		require.NoError(t, err, "cancel from %s", status)
	}

	done := campaigns.add(&model.Campaign{Status: model.CampaignStatusCompleted})
	_, err := s.Transition(context.Background(), done.ID, model.CampaignStatusCancelled)
	assert.Error(t, err)
}

func TestListCampaignsClampsPagination(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	s := newTestCampaignService(campaigns, newFakeTemplateRepo())

	for i := 0; i < 25; i++ {
		campaigns.add(&model.Campaign{OrganizationID: 1, Status: model.CampaignStatusDraft})
	}

	list, pagination, err := s.ListCampaigns(context.Background(), 0, -5, repository.CampaignFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 20)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 20, pagination["page_size"])
	assert.Equal(t, 25, pagination["total_count"])
	assert.Equal(t, 2, pagination["total_pages"])

	list, _, err = s.ListCampaigns(context.Background(), 2, 20, repository.CampaignFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestListCampaignsFilters(t *testing.T) {
	campaigns := newFakeCampaignRepo()
	s := newTestCampaignService(campaigns, newFakeTemplateRepo())

	campaigns.add(&model.Campaign{OrganizationID: 1, Status: model.CampaignStatusRunning})
	campaigns.add(&model.Campaign{OrganizationID: 1, Status: model.CampaignStatusDraft})
	campaigns.add(&model.Campaign{OrganizationID: 2, Status: model.CampaignStatusRunning})

	list, pagination, err := s.ListCampaigns(context.Background(), 1, 20, repository.CampaignFilter{
		OrganizationID: 1, Status: model.CampaignStatusRunning,
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, pagination["total_count"])
}

func TestParseScheduledAt(t *testing.T) {
	got, err := ParseScheduledAt(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	raw := "2026-09-01T08:00:00Z"
	got, err = ParseScheduledAt(&raw)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year())

	bad := "tomorrow"
	_, err = ParseScheduledAt(&bad)
	assert.Error(t, err)
}
