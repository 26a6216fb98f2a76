// internal/model/template.go
package model

import "time"

// Template approval statuses and categories mirrored from the gateway.
const (
	TemplateStatusApproved = "approved"
	TemplateStatusPending  = "pending"
	TemplateStatusRejected = "rejected"

	TemplateCategoryMarketing = "marketing"
	TemplateCategoryUtility   = "utility"
	TemplateCategoryAutoReply = "auto_reply"
)

// Template message kinds. Gateway-approved templates carry components with
// numbered placeholders; text and media messages carry named placeholders.
const (
	TemplateKindTemplate = "template"
	TemplateKindText     = "text"
	TemplateKindImage    = "image"
	TemplateKindVideo    = "video"
	TemplateKindDocument = "document"
)

// TemplateComponent is one block of a gateway-approved template.
type TemplateComponent struct {
	Type   string `json:"type"` // HEADER, BODY, BUTTONS
	Format string `json:"format,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Template is the read-only template collaborator's record: components,
// approval status and the declared placeholder-to-attribute mapping.
type Template struct {
	ID             int64  `db:"id" json:"id"`
	OrganizationID int64  `db:"organization_id" json:"organization_id"`
	Name           string `db:"name" json:"name"`
	Language       string `db:"language" json:"language"`
	Category       string `db:"category" json:"category"`
	Status         string `db:"status" json:"status"`
	Kind           string `db:"kind" json:"kind"`

	BodyText string `db:"body_text" json:"body_text,omitempty"`
	MediaURL string `db:"media_url" json:"media_url,omitempty"`
	Caption  string `db:"caption" json:"caption,omitempty"`

	Components []TemplateComponent `db:"-" json:"components,omitempty"`

	// ParameterMapping maps placeholder number ("1", "2", …) to the recipient
	// attribute supplying its value.
	ParameterMapping Document `db:"parameter_mapping" json:"parameter_mapping,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// BodyComponent returns the BODY component text, or the flat body text for
// non-template kinds.
func (t *Template) BodyComponent() string {
	for _, c := range t.Components {
		if c.Type == "BODY" {
			return c.Text
		}
	}
	return t.BodyText
}
