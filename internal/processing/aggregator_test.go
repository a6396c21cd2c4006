package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canaswarm-vision-go/internal/types"
)

func result(camera, frame string, overall types.RiskLevel, priority types.Priority, warnings ...types.WarningKind) *types.Result {
	r := &types.Result{
		FrameID:  frame,
		CameraID: camera,
		Risk:     types.RiskAnalysis{Overall: overall},
		Actions:  types.Actions{Priority: priority},
	}
	for _, w := range warnings {
		r.Warnings = append(r.Warnings, types.Warning{Kind: w})
	}
	return r
}

func TestAggregatorCounts(t *testing.T) {
	a := NewAggregator()
	a.AddResult(result("front", "1", types.RiskLow, types.PriorityNormal))
	a.AddResult(result("front", "2", types.RiskHigh, types.PriorityHigh, types.WarningDegradedSensing))
	a.AddResult(result("rear", "1", types.RiskCritical, types.PriorityEmergency, types.WarningInvalidDetection, types.WarningInvalidDetection))
	a.AddDrop(Drop{CameraID: "rear", FrameID: "0", Reason: DropQueueFull})

	stats := a.Stats()
	assert.Equal(t, 3, stats.Results)
	assert.Equal(t, types.RiskCounts{Low: 1, High: 1, Critical: 1}, stats.ByRisk)
	assert.Equal(t, map[types.Priority]int{types.PriorityNormal: 1, types.PriorityHigh: 1, types.PriorityEmergency: 1}, stats.ByPriority)
	assert.Equal(t, map[string]int{"degraded_sensing": 1, "invalid_detection": 2}, stats.Warnings)
	assert.Equal(t, map[string]int{"queue_full": 1}, stats.Drops)
	assert.Equal(t, "rear/1", stats.LastEmergency)

	latest := a.SnapshotCopy()
	assert.Len(t, latest, 2)
	assert.Equal(t, "2", latest["front"].FrameID)

	// Stats are copies.
	stats.ByPriority[types.PriorityHigh] = 99
	assert.Equal(t, 1, a.Stats().ByPriority[types.PriorityHigh])
}

func TestAggregatorChangeTracking(t *testing.T) {
	a := NewAggregator()
	assert.False(t, a.TakeChanged())

	a.AddResult(result("front", "1", types.RiskLow, types.PriorityNormal))
	assert.True(t, a.TakeChanged())
	assert.False(t, a.TakeChanged())

	a.Forget("front")
	assert.True(t, a.TakeChanged())
	assert.Empty(t, a.SnapshotCopy())

	a.Forget("front")
	assert.False(t, a.TakeChanged())
}

func TestAggregatorReset(t *testing.T) {
	a := NewAggregator()
	a.AddResult(result("front", "1", types.RiskMedium, types.PriorityMedium))
	a.Reset()
	assert.Equal(t, 0, a.Stats().Results)
	assert.Empty(t, a.SnapshotCopy())
}
