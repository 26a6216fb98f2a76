// internal/model/audience.go
package model

import "time"

// Recipient message statuses. Forward-only; failed is reachable from any
// non-terminal state. delivered/read are success terminals, failed is terminal
// once retries are exhausted.
const (
	MessageStatusPending         = "pending"
	MessageStatusAssetGenerating = "asset_generating"
	MessageStatusAssetGenerated  = "asset_generated"
	MessageStatusReadyToSend     = "ready_to_send"
	MessageStatusSent            = "sent"
	MessageStatusDelivered       = "delivered"
	MessageStatusRead            = "read"
	MessageStatusFailed          = "failed"
)

// messageStatusRank orders the forward path. A transition is only applied when
// the new status ranks strictly above the current one, which makes duplicate
// and late-arriving webhook events no-ops.
var messageStatusRank = map[string]int{
	MessageStatusPending:         0,
	MessageStatusAssetGenerating: 1,
	MessageStatusAssetGenerated:  2,
	MessageStatusReadyToSend:     3,
	MessageStatusSent:            4,
	MessageStatusDelivered:       5,
	MessageStatusRead:            6,
}

// MessageStatusRank returns the forward-path rank of a status and whether the
// status is part of the forward path at all (failed is not).
func MessageStatusRank(status string) (int, bool) {
	r, ok := messageStatusRank[status]
	return r, ok
}

// StatusesBelow returns every forward-path status ranking strictly below the
// given one. Used to build the WHERE guard for monotonic status updates.
func StatusesBelow(status string) []string {
	target, ok := messageStatusRank[status]
	if !ok {
		return nil
	}
	var below []string
	for s, r := range messageStatusRank {
		if r < target {
			below = append(below, s)
		}
	}
	return below
}

// NonTerminalStatuses lists every status a recipient can still fail from.
func NonTerminalStatuses() []string {
	return []string{
		MessageStatusPending,
		MessageStatusAssetGenerating,
		MessageStatusAssetGenerated,
		MessageStatusReadyToSend,
		MessageStatusSent,
	}
}

// CampaignAudience is one recipient's per-campaign delivery record.
type CampaignAudience struct {
	ID             int64    `db:"id" json:"id"`
	CampaignID     int64    `db:"campaign_id" json:"campaign_id"`
	OrganizationID int64    `db:"organization_id" json:"organization_id"`
	Name           string   `db:"name" json:"name"`
	MSISDN         string   `db:"msisdn" json:"msisdn"`
	Attributes     Document `db:"attributes" json:"attributes,omitempty"`

	MessageStatus string     `db:"message_status" json:"message_status"`
	SentAt        *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt   *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt        *time.Time `db:"read_at" json:"read_at,omitempty"`
	FailedAt      *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	FailureReason string     `db:"failure_reason" json:"failure_reason,omitempty"`

	// External message id returned by the gateway; the correlation key for
	// delivery and read receipts.
	MessageID string `db:"message_id" json:"message_id,omitempty"`

	RetryCount int `db:"retry_count" json:"retry_count"`

	AssetStatus string `db:"asset_status" json:"asset_status,omitempty"`
	AssetURL    string `db:"asset_url" json:"asset_url,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Terminal reports whether the recipient needs no further dispatch work.
// A failed row is terminal once its retries are exhausted.
func (a *CampaignAudience) Terminal(maxRetries int) bool {
	switch a.MessageStatus {
	case MessageStatusDelivered, MessageStatusRead:
		return true
	case MessageStatusFailed:
		return a.RetryCount >= maxRetries
	}
	return false
}

// AudienceMaster is the organization-wide recipient directory, unique per
// (organization, msisdn). Attributes merge on repeated ingestion.
type AudienceMaster struct {
	ID             int64      `db:"id" json:"id"`
	OrganizationID int64      `db:"organization_id" json:"organization_id"`
	Name           string     `db:"name" json:"name"`
	MSISDN         string     `db:"msisdn" json:"msisdn"`
	CountryCode    string     `db:"country_code" json:"country_code"`
	Attributes     Document   `db:"attributes" json:"attributes,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
