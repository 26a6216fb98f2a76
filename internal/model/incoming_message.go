// internal/model/incoming_message.go
package model

import "time"

// Auto-reply send statuses on an incoming message.
const (
	AutoReplyPending = "pending"
	AutoReplySent    = "sent"
	AutoReplyFailed  = "failed"
	AutoReplyNone    = "none"
)

// IncomingMessage is one inbound message from a recipient, created at most
// once per gateway message id (at-least-once webhook delivery is deduplicated
// by the unique constraint on message_id).
type IncomingMessage struct {
	ID             int64  `db:"id" json:"id"`
	OrganizationID int64  `db:"organization_id" json:"organization_id"`
	MessageID      string `db:"message_id" json:"message_id"`
	FromNumber     string `db:"from_number" json:"from_number"`
	ToNumber       string `db:"to_number" json:"to_number"`
	MessageType    string `db:"message_type" json:"message_type"`
	Content        string `db:"content" json:"content,omitempty"`
	MediaID        string `db:"media_id" json:"media_id,omitempty"`
	MediaURL       string `db:"media_url" json:"media_url,omitempty"`

	InteractiveData Document `db:"interactive_data" json:"interactive_data,omitempty"`

	// Context links a reply back to the campaign message it answers.
	ContextMessageID  string `db:"context_message_id" json:"context_message_id,omitempty"`
	ContextCampaignID *int64 `db:"context_campaign_id" json:"context_campaign_id,omitempty"`

	RawPayload RawJSON `db:"raw_payload" json:"raw_payload,omitempty"`
	Processed  bool    `db:"processed" json:"processed"`

	IsAutoReply         bool   `db:"is_auto_reply" json:"is_auto_reply"`
	AutoReplyTemplateID *int64 `db:"auto_reply_template_id" json:"auto_reply_template_id,omitempty"`
	SendAutoReply       string `db:"send_auto_reply_message" json:"send_auto_reply_message"`

	ReceivedAt time.Time  `db:"received_at" json:"received_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
