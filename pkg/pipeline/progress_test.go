package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelObserverDeliversInOrder(t *testing.T) {
	obs := NewChannelObserver(4)
	for i := 1; i <= 3; i++ {
		obs.OnProgress(Progress{CompletedStages: i})
	}
	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, (<-obs.Updates()).CompletedStages)
	}
}

func TestChannelObserverDropsOldestWhenFull(t *testing.T) {
	obs := NewChannelObserver(2)
	for i := 1; i <= 5; i++ {
		obs.OnProgress(Progress{CompletedStages: i})
	}

	// The two most recent updates survive.
	require.Len(t, obs.Updates(), 2)
	assert.Equal(t, 4, (<-obs.Updates()).CompletedStages)
	assert.Equal(t, 5, (<-obs.Updates()).CompletedStages)
}

func TestChannelObserverMinimumBuffer(t *testing.T) {
	obs := NewChannelObserver(0)
	obs.OnProgress(Progress{CompletedStages: 1})
	assert.Equal(t, 1, (<-obs.Updates()).CompletedStages)
}
