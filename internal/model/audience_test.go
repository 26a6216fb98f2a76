// internal/model/audience_test.go
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusesBelow(t *testing.T) {
	below := StatusesBelow(MessageStatusSent)
	assert.ElementsMatch(t, []string{
		MessageStatusPending, MessageStatusAssetGenerating,
		MessageStatusAssetGenerated, MessageStatusReadyToSend,
	}, below)

	assert.Empty(t, StatusesBelow(MessageStatusPending))
	// failed is off the forward path.
	assert.Nil(t, StatusesBelow(MessageStatusFailed))
}

func TestMessageStatusRankOrdering(t *testing.T) {
	order := []string{
		MessageStatusPending, MessageStatusAssetGenerating, MessageStatusAssetGenerated,
		MessageStatusReadyToSend, MessageStatusSent, MessageStatusDelivered, MessageStatusRead,
	}
	prev := -1
	for _, s := range order {
		r, ok := MessageStatusRank(s)
		assert.True(t, ok, s)
		assert.Greater(t, r, prev, s)
		prev = r
	}
	_, ok := MessageStatusRank(MessageStatusFailed)
	assert.False(t, ok)
}

func TestTerminal(t *testing.T) {
	assert.True(t, (&CampaignAudience{MessageStatus: MessageStatusDelivered}).Terminal(3))
	assert.True(t, (&CampaignAudience{MessageStatus: MessageStatusRead}).Terminal(3))
	assert.True(t, (&CampaignAudience{MessageStatus: MessageStatusFailed, RetryCount: 3}).Terminal(3))
	assert.False(t, (&CampaignAudience{MessageStatus: MessageStatusFailed, RetryCount: 2}).Terminal(3))
	assert.False(t, (&CampaignAudience{MessageStatus: MessageStatusSent}).Terminal(3))
	assert.False(t, (&CampaignAudience{MessageStatus: MessageStatusPending}).Terminal(3))
}
