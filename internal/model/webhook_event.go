// internal/model/webhook_event.go
package model

import "time"

// Webhook event types posted by the messaging gateway.
const (
	EventMessageStatus       = "message_status"
	EventDeliveryReceipt     = "delivery_receipt"
	EventReadReceipt         = "read_receipt"
	EventMessageReceived     = "message_received"
	EventUserStatus          = "user_status"
	EventError               = "error"
	EventInteractiveResponse = "interactive_response"
)

// KnownEventType reports whether t is an event type this service ingests.
func KnownEventType(t string) bool {
	switch t {
	case EventMessageStatus, EventDeliveryReceipt, EventReadReceipt,
		EventMessageReceived, EventUserStatus, EventError, EventInteractiveResponse:
		return true
	}
	return false
}

// WebhookEvent is the append-only audit row for every gateway callback.
// Created on ingestion, mutated exactly once by the correlator to flip the
// processed flag (optionally with an error message).
type WebhookEvent struct {
	ID                 int64    `db:"id" json:"id"`
	OrganizationID     int64    `db:"organization_id" json:"organization_id"`
	CampaignID         *int64   `db:"campaign_id" json:"campaign_id,omitempty"`
	CampaignAudienceID *int64   `db:"campaign_audience_id" json:"campaign_audience_id,omitempty"`
	EventType          string   `db:"event_type" json:"event_type"`
	MessageID          string   `db:"message_id" json:"message_id"`
	FromNumber         string   `db:"from_number" json:"from_number,omitempty"`
	ToNumber           string   `db:"to_number" json:"to_number,omitempty"`
	RawPayload         RawJSON  `db:"raw_payload" json:"raw_payload,omitempty"`
	InteractiveData    Document `db:"interactive_data" json:"interactive_data,omitempty"`

	Processed    bool   `db:"processed" json:"processed"`
	ErrorMessage string `db:"error_message" json:"error_message,omitempty"`

	ReceivedAt time.Time `db:"received_at" json:"received_at"`
}
