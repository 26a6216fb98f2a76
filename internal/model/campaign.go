// internal/model/campaign.go
package model

import "time"

// Campaign statuses. Forward path is draft → pending_approval → approved →
// scheduled → asset_generation → asset_generated → ready_to_launch → running →
// completed; rejected, cancelled and paused are side branches.
const (
	CampaignStatusDraft           = "draft"
	CampaignStatusPendingApproval = "pending_approval"
	CampaignStatusApproved        = "approved"
	CampaignStatusRejected        = "rejected"
	CampaignStatusScheduled       = "scheduled"
	CampaignStatusAssetGeneration = "asset_generation"
	CampaignStatusAssetGenerated  = "asset_generated"
	CampaignStatusReadyToLaunch   = "ready_to_launch"
	CampaignStatusRunning         = "running"
	CampaignStatusCompleted       = "completed"
	CampaignStatusPaused          = "paused"
	CampaignStatusCancelled       = "cancelled"
)

// Campaign types.
const (
	CampaignTypeImmediate = "immediate"
	CampaignTypeScheduled = "scheduled"
	CampaignTypeRecurring = "recurring"
)

// Asset-generation sub-statuses shared by Campaign and CampaignAudience.
const (
	AssetStatusNotRequired = "not_required"
	AssetStatusPending     = "pending"
	AssetStatusGenerating  = "generating"
	AssetStatusGenerated   = "generated"
	AssetStatusFailed      = "failed"
)

type Campaign struct {
	ID             int64      `db:"id" json:"id"`
	OrganizationID int64      `db:"organization_id" json:"organization_id"`
	TemplateID     int64      `db:"template_id" json:"template_id"`
	Name           string     `db:"name" json:"name"`
	Type           string     `db:"type" json:"type"`
	Status         string     `db:"status" json:"status"`
	AssetStatus    string     `db:"asset_status" json:"asset_status"`
	ScheduledAt    *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	BufferHours    int        `db:"buffer_hours" json:"buffer_hours"`

	// When set, inbound replies correlated to this campaign are flagged for an
	// automatic reply using this template.
	AutoReplyTemplateID *int64 `db:"auto_reply_template_id" json:"auto_reply_template_id,omitempty"`

	// Delivery counters, recomputed by aggregate recount, never incremented.
	TotalTargeted  int `db:"total_targeted_audience" json:"total_targeted_audience"`
	TotalSent      int `db:"total_sent" json:"total_sent"`
	TotalDelivered int `db:"total_delivered" json:"total_delivered"`
	TotalRead      int `db:"total_read" json:"total_read"`
	TotalReplied   int `db:"total_replied" json:"total_replied"`
	TotalFailed    int `db:"total_failed" json:"total_failed"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// RequiresAssets reports whether recipients go through per-recipient asset
// generation before dispatch.
func (c *Campaign) RequiresAssets() bool {
	return c.AssetStatus != "" && c.AssetStatus != AssetStatusNotRequired
}

// DispatchDue reports whether the campaign's scheduled time, adjusted by its
// buffer, has elapsed at now. Immediate campaigns are always due.
func (c *Campaign) DispatchDue(now time.Time) bool {
	if c.Type == CampaignTypeImmediate || c.ScheduledAt == nil {
		return true
	}
	due := c.ScheduledAt.Add(time.Duration(c.BufferHours) * time.Hour)
	return !due.After(now)
}
