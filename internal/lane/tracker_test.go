package lane

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/types"
)

var hd = types.CameraSpecs{Width: 1920, Height: 1080, FPS: 30, HFOVDeg: 90}

func line(side types.LaneSide, baseX, conf float64) types.LaneLine {
	return types.LaneLine{
		Side: side,
		Points: []types.Point{
			{X: baseX + 500, Y: 0},
			{X: baseX + 200, Y: 800},
			{X: baseX, Y: 1080},
			{X: baseX + 400, Y: 400},
		},
		Confidence: conf,
		WidthCM:    150,
	}
}

func twoLanes(leftX, rightX float64) types.LaneObservation {
	return types.LaneObservation{Lines: []types.LaneLine{
		line(types.LaneLeft, leftX, 0.92),
		line(types.LaneRight, rightX, 0.89),
	}}
}

func TestUpdateSlightLeftDeviation(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	state := tr.NewState()

	// Midpoint 936px is 24px left of the 960px image centre.
	nav, warnings := tr.Update(state, twoLanes(100, 1772), hd)

	assert.Empty(t, warnings)
	assert.Equal(t, 2, nav.LanesDetected)
	assert.InDelta(t, -24, nav.RawDeviationPX, 1e-9)
	assert.InDelta(t, -12, nav.LateralDeviationCM, 1e-9)
	assert.Equal(t, types.StatusSlightLeft, nav.Status)
	assert.InDelta(t, -1.2, nav.SteeringCorrectionDeg, 1e-9)
	assert.InDelta(t, 0.89, nav.Confidence, 1e-9)
	assert.Equal(t, types.RiskLow, nav.Level)
	assert.False(t, nav.Stale)
}

func TestUpdateSteeringGainIsConfigurable(t *testing.T) {
	p := config.DefaultPolicy().Lane
	p.SteeringGainDegPerCM = 2.5 / 12
	tr := NewTracker(p)

	nav, _ := tr.Update(tr.NewState(), twoLanes(100, 1772), hd)
	assert.InDelta(t, -2.5, nav.SteeringCorrectionDeg, 1e-9)
}

func TestSteeringIsClamped(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	// Midpoint 1460px: 500px right, 250cm.
	nav, _ := tr.Update(tr.NewState(), twoLanes(860, 2060), hd)
	assert.Equal(t, 15.0, nav.SteeringCorrectionDeg)
	assert.Equal(t, types.StatusDeviationRight, nav.Status)
	assert.Equal(t, types.RiskHigh, nav.Level)

	nav, _ = tr.Update(tr.NewState(), twoLanes(-140, 60), hd)
	assert.Equal(t, -15.0, nav.SteeringCorrectionDeg)
	assert.Equal(t, types.StatusDeviationLeft, nav.Status)
}

func TestStatusBands(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	cases := []struct {
		deviationCM float64
		status      types.DeviationStatus
		risk        types.RiskLevel
	}{
		{0, types.StatusCentered, types.RiskLow},
		{-4.9, types.StatusCentered, types.RiskLow},
		{5, types.StatusSlightRight, types.RiskLow},
		{-14.9, types.StatusSlightLeft, types.RiskLow},
		{15, types.StatusDeviationRight, types.RiskMedium},
		{-29.9, types.StatusDeviationLeft, types.RiskMedium},
		{30, types.StatusDeviationRight, types.RiskHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tr.status(tc.deviationCM), "deviation %v", tc.deviationCM)
		assert.Equal(t, tc.risk, tr.navigationRisk(tc.deviationCM), "deviation %v", tc.deviationCM)
	}
}

func TestNavigationRiskNeverCritical(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	for d := -1000.0; d <= 1000; d += 7 {
		assert.NotEqual(t, types.RiskCritical, tr.navigationRisk(d))
	}
}

func TestWindowSmoothingSuppressesJitter(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	state := tr.NewState()

	tr.Update(state, twoLanes(100, 1772), hd) // -12cm
	nav, _ := tr.Update(state, twoLanes(124, 1796), hd)
	assert.InDelta(t, -6, nav.LateralDeviationCM, 1e-9)
	assert.InDelta(t, 0, nav.RawDeviationCM, 1e-9)
}

func TestWindowIsBounded(t *testing.T) {
	p := config.DefaultPolicy().Lane
	p.SmoothingWindow = 3
	tr := NewTracker(p)
	state := tr.NewState()

	for i := 0; i < 10; i++ {
		tr.Update(state, twoLanes(100, 1772), hd)
	}
	nav, _ := tr.Update(state, twoLanes(124, 1796), hd)
	assert.Len(t, state.Samples(), 3)
	assert.InDelta(t, -8, nav.LateralDeviationCM, 1e-9)
	assert.Equal(t, 11, state.Frames())
}

func TestExponentialSmoothing(t *testing.T) {
	p := config.DefaultPolicy().Lane
	p.SmoothingAlpha = 0.5
	tr := NewTracker(p)
	state := tr.NewState()

	nav, _ := tr.Update(state, twoLanes(100, 1772), hd)
	assert.InDelta(t, -12, nav.LateralDeviationCM, 1e-9)
	nav, _ = tr.Update(state, twoLanes(124, 1796), hd)
	assert.InDelta(t, -6, nav.LateralDeviationCM, 1e-9)
	nav, _ = tr.Update(state, twoLanes(124, 1796), hd)
	assert.InDelta(t, -3, nav.LateralDeviationCM, 1e-9)
}

func TestZeroLanesHoldsLastCorrection(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	state := tr.NewState()

	first, _ := tr.Update(state, twoLanes(100, 1772), hd)
	require.NotZero(t, first.SteeringCorrectionDeg)

	nav, warnings := tr.Update(state, types.LaneObservation{}, hd)
	assert.Equal(t, 0, nav.LanesDetected)
	assert.Equal(t, types.RiskMedium, nav.Level)
	assert.Equal(t, first.SteeringCorrectionDeg, nav.SteeringCorrectionDeg)
	assert.Equal(t, first.LateralDeviationCM, nav.LateralDeviationCM)
	assert.Equal(t, types.StatusLost, nav.Status)
	assert.True(t, nav.Stale)
	require.Len(t, warnings, 1)
	assert.Equal(t, types.WarningDegradedSensing, warnings[0].Kind)

	// Carrying forward does not add a sample.
	assert.Len(t, state.Samples(), 1)
}

func TestZeroLanesOnFreshStreamIsMediumNotLow(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	nav, warnings := tr.Update(tr.NewState(), types.LaneObservation{}, hd)
	assert.Equal(t, types.RiskMedium, nav.Level)
	assert.Equal(t, 0.0, nav.SteeringCorrectionDeg)
	assert.Len(t, warnings, 1)
}

func TestLowConfidenceLaneIsIgnored(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	obs := types.LaneObservation{Lines: []types.LaneLine{line(types.LaneLeft, 100, 0.1)}}
	nav, warnings := tr.Update(tr.NewState(), obs, hd)
	assert.Equal(t, 0, nav.LanesDetected)
	assert.Len(t, warnings, 1)
}

func TestSingleLaneUsesRememberedWidth(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	state := tr.NewState()

	tr.Update(state, twoLanes(400, 1520), hd) // centred, width 1120px
	assert.Equal(t, 1120.0, state.LastLaneWidthPX())

	obs := types.LaneObservation{Lines: []types.LaneLine{line(types.LaneRight, 1500, 0.9)}}
	nav, warnings := tr.Update(state, obs, hd)

	assert.Equal(t, 1, nav.LanesDetected)
	assert.InDelta(t, -20, nav.RawDeviationPX, 1e-9)
	assert.InDelta(t, 0.45, nav.Confidence, 1e-9)
	require.Len(t, warnings, 1)
	assert.Equal(t, types.WarningDegradedSensing, warnings[0].Kind)
}

func TestSingleLaneFallsBackToNominalWidth(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	obs := types.LaneObservation{Lines: []types.LaneLine{line(types.LaneLeft, 360, 0.8)}}
	nav, _ := tr.Update(tr.NewState(), obs, hd)
	assert.InDelta(t, 0, nav.RawDeviationPX, 1e-9)
	assert.Equal(t, types.StatusCentered, nav.Status)
}

func TestStatesAreIndependent(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	a, b := tr.NewState(), tr.NewState()

	tr.Update(a, twoLanes(100, 1772), hd)
	nav, _ := tr.Update(b, types.LaneObservation{}, hd)
	assert.Equal(t, 0.0, nav.SteeringCorrectionDeg)
	assert.Len(t, b.Samples(), 0)
}

func TestNonFiniteLanePointIsRejected(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)
	state := tr.NewState()

	bad := twoLanes(100, 1772)
	bad.Lines[0].Points[2].X = math.NaN()
	nav, warnings := tr.Update(state, bad, hd)

	assert.Equal(t, 1, nav.LanesDetected)
	assert.False(t, math.IsNaN(nav.LateralDeviationCM))
	assert.False(t, math.IsNaN(nav.SteeringCorrectionDeg))
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.Equal(t, types.WarningDegradedSensing, w.Kind)
	}
	assert.Contains(t, warnings[0].Message, "LEFT lane boundary rejected")

	for _, v := range state.Samples() {
		assert.False(t, math.IsNaN(v))
	}

	// Clean frames afterwards are unaffected.
	nav, warnings = tr.Update(state, twoLanes(400, 1520), hd)
	assert.Empty(t, warnings)
	assert.False(t, math.IsNaN(nav.LateralDeviationCM))
	assert.Equal(t, 2, nav.LanesDetected)
}

func TestNonFiniteLanesDoNotPoisonExponentialSmoothing(t *testing.T) {
	p := config.DefaultPolicy().Lane
	p.SmoothingAlpha = 0.5
	tr := NewTracker(p)
	state := tr.NewState()

	bad := twoLanes(100, 1772)
	bad.Lines[0].Points[0].Y = math.Inf(1)
	bad.Lines[1].Points[2].X = math.NaN()
	nav, warnings := tr.Update(state, bad, hd)
	assert.Equal(t, types.StatusLost, nav.Status)
	assert.Equal(t, types.RiskMedium, nav.Level)
	assert.Len(t, warnings, 3)
	assert.Empty(t, state.Samples())

	nav, _ = tr.Update(state, twoLanes(100, 1772), hd)
	assert.InDelta(t, -12, nav.LateralDeviationCM, 1e-9)
}

func TestOutOfRangeLaneConfidenceIsRejected(t *testing.T) {
	tr := NewTracker(config.DefaultPolicy().Lane)

	obs := twoLanes(100, 1772)
	obs.Lines[0].Confidence = 7.5
	obs.Lines[1].Confidence = -0.2
	nav, warnings := tr.Update(tr.NewState(), obs, hd)

	assert.Equal(t, 0, nav.LanesDetected)
	assert.Equal(t, types.RiskMedium, nav.Level)
	assert.Len(t, warnings, 3)
}

func TestValidateLine(t *testing.T) {
	assert.NoError(t, ValidateLine(line(types.LaneLeft, 100, 1)))
	assert.NoError(t, ValidateLine(line(types.LaneLeft, 100, 0)))

	err := ValidateLine(line(types.LaneLeft, 100, math.NaN()))
	assert.True(t, errors.Is(err, ErrInvalidLane))

	l := line(types.LaneRight, 100, 0.9)
	l.Points[1].Y = math.Inf(-1)
	assert.ErrorIs(t, ValidateLine(l), ErrInvalidLane)
}
