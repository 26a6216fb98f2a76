// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/waflowhq/waflow-backend/internal/model"
	"github.com/waflowhq/waflow-backend/internal/repository"
	"github.com/waflowhq/waflow-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	AudienceService *service.AudienceService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrganizationID      int64   `json:"organization_id"`
		TemplateID          int64   `json:"template_id"`
		Name                string  `json:"name"`
		Type                string  `json:"type"`
		ScheduledAt         *string `json:"scheduled_at"`
		BufferHours         int     `json:"buffer_hours"`
		AutoReplyTemplateID *int64  `json:"auto_reply_template_id"`
		RequiresAssets      bool    `json:"requires_assets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	scheduledAt, err := service.ParseScheduledAt(body.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		OrganizationID:      body.OrganizationID,
		TemplateID:          body.TemplateID,
		Name:                body.Name,
		Type:                body.Type,
		ScheduledAt:         scheduledAt,
		BufferHours:         body.BufferHours,
		AutoReplyTemplateID: body.AutoReplyTemplateID,
	}
	if body.RequiresAssets {
		campaign.AssetStatus = model.AssetStatusPending
	}

	created, err := c.CampaignService.CreateCampaign(r.Context(), campaign)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(created)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	orgID, _ := strconv.ParseInt(r.URL.Query().Get("organization_id"), 10, 64)

	filter := repository.CampaignFilter{
		OrganizationID: orgID,
		Status:         r.URL.Query().Get("status"),
		Type:           r.URL.Query().Get("type"),
	}
	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, filter)
	if err != nil {
		http.Error(w, "failed to fetch campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": campaigns, "pagination": pagination})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	details, err := c.CampaignService.GetCampaignDetails(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// Transition handles the lifecycle actions; the target status is bound to the
// route (submit, approve, reject, launch, pause, resume, cancel).
func (c *CampaignController) Transition(to string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := campaignID(r)
		if err != nil {
			http.Error(w, "invalid campaign id", http.StatusBadRequest)
			return
		}
		campaign, err := c.CampaignService.Transition(r.Context(), id, to)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(campaign)
	}
}

// AddAudience bulk-adds contacts; the response partitions successes and
// per-item errors, and a partial failure is still a 200.
func (c *CampaignController) AddAudience(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	var body struct {
		OrganizationID int64                  `json:"organization_id"`
		Contacts       []service.ContactInput `json:"contacts"`
		RequiresAssets bool                   `json:"requires_assets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	result, err := c.AudienceService.AddToCampaign(r.Context(), id, body.OrganizationID, body.Contacts, body.RequiresAssets)
	if err != nil {
		http.Error(w, "failed to add audience: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (c *CampaignController) RemoveAudience(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	msisdn := chi.URLParam(r, "msisdn")
	if err := c.AudienceService.RemoveFromCampaign(r.Context(), id, msisdn); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func campaignID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
