package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecordKeepsEventsUnderBound(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 5; i++ {
		h.Record(HistoryEvent{At: time.Now(), Type: EventNodeEntered, NodeID: "n1"})
	}
	assert.Len(t, h.Events(), 5)
	assert.Empty(t, h.Summary())
}

func TestHistoryCompactsOldestHalfOnceOverBound(t *testing.T) {
	h := NewHistory(4)
	for i := 0; i < 5; i++ {
		h.Record(HistoryEvent{At: time.Now(), Type: EventNodeCompleted, NodeID: "n1"})
	}
	require.True(t, len(h.Events()) < 5, "history should have compacted at least one event away")
	assert.NotEmpty(t, h.Summary())
}

func TestHistoryDefaultsBoundWhenNonPositive(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, 500, h.maxEvents)
}

func TestHistorySummaryEmptyBeforeCompaction(t *testing.T) {
	h := NewHistory(100)
	h.Record(HistoryEvent{At: time.Now(), Type: EventCancelled})
	assert.Equal(t, "", h.Summary())
}
