// internal/model/campaign_test.go
package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatchDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	immediate := &Campaign{Type: CampaignTypeImmediate}
	assert.True(t, immediate.DispatchDue(now))

	at := now.Add(-3 * time.Hour)
	scheduled := &Campaign{Type: CampaignTypeScheduled, ScheduledAt: &at, BufferHours: 2}
	assert.True(t, scheduled.DispatchDue(now))

	// Still inside the buffer window.
	scheduled.BufferHours = 4
	assert.False(t, scheduled.DispatchDue(now))

	future := now.Add(time.Hour)
	scheduled = &Campaign{Type: CampaignTypeScheduled, ScheduledAt: &future}
	assert.False(t, scheduled.DispatchDue(now))
}

func TestRequiresAssets(t *testing.T) {
	assert.False(t, (&Campaign{}).RequiresAssets())
	assert.False(t, (&Campaign{AssetStatus: AssetStatusNotRequired}).RequiresAssets())
	assert.True(t, (&Campaign{AssetStatus: AssetStatusPending}).RequiresAssets())
	assert.True(t, (&Campaign{AssetStatus: AssetStatusGenerated}).RequiresAssets())
}
