// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrQueueUnavailable signals the work queue cannot accept publishes right now.
// Callers abort the current batch and let the next poll tick retry.
var ErrQueueUnavailable = errors.New("queue unavailable")

// InputError marks a per-item validation failure (bad phone, bad payload).
// It never aborts a batch; the offending item is reported and skipped.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewInvalidPhone(raw string) error {
	return &InputError{Field: "phone", Reason: fmt.Sprintf("cannot normalize %q", raw)}
}

func NewInvalidPayload(reason string) error {
	return &InputError{Field: "payload", Reason: reason}
}

// IsInputError reports whether err is a per-item input failure.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// CorrelationMiss is recorded on the webhook event row when an event references
// a message id or phone number we cannot match. It is surfaced through the
// unprocessed-events read path, not retried by the correlator itself.
type CorrelationMiss struct {
	MessageID string
	Reason    string
}

func (e *CorrelationMiss) Error() string {
	return fmt.Sprintf("cannot correlate message %q: %s", e.MessageID, e.Reason)
}

func NewCorrelationMiss(messageID, reason string) error {
	return &CorrelationMiss{MessageID: messageID, Reason: reason}
}

func IsCorrelationMiss(err error) bool {
	var cm *CorrelationMiss
	return errors.As(err, &cm)
}

// ErrDuplicateContact reports a (campaign, msisdn) pair that is already present.
type ErrDuplicateContact struct {
	MSISDN string
}

func (e *ErrDuplicateContact) Error() string {
	return fmt.Sprintf("contact %s already in campaign", e.MSISDN)
}

func NewDuplicateContact(msisdn string) error {
	return &ErrDuplicateContact{MSISDN: msisdn}
}

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int64) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrTemplateNotFound is a sentinel for a missing or unusable template.
type ErrTemplateNotFound struct {
	TemplateID int64
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("template with ID %d not found", e.TemplateID)
}

func NewTemplateNotFound(id int64) error {
	return &ErrTemplateNotFound{TemplateID: id}
}

// ErrAudienceNotFound reports that no campaign-audience record matched.
type ErrAudienceNotFound struct {
	CampaignID int64
	MSISDN     string
}

func (e *ErrAudienceNotFound) Error() string {
	return fmt.Sprintf("no audience record for %s in campaign %d", e.MSISDN, e.CampaignID)
}

func NewAudienceNotFound(campaignID int64, msisdn string) error {
	return &ErrAudienceNotFound{CampaignID: campaignID, MSISDN: msisdn}
}
