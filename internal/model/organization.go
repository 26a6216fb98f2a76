// internal/model/organization.go
package model

import "time"

const (
	OrganizationActive    = "active"
	OrganizationSuspended = "suspended"
)

// Organization is the read-only org collaborator's record; dispatch skips
// suspended organizations.
type Organization struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Active reports whether the organization may send messages.
func (o *Organization) Active() bool {
	return o.Status == OrganizationActive
}
