package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/fusion"
	"canaswarm-vision-go/internal/types"
)

func newTestDecider() *Decider {
	return NewDecider(config.DefaultPolicy().Actions)
}

func ptr(v float64) *float64 { return &v }

func TestDecideHighWithSteering(t *testing.T) {
	objects := []types.ClassifiedDetection{
		{Detection: types.Detection{ObjectID: "A", Class: "person"}, EffectiveDistanceM: 15.5, Risk: types.RiskLow},
		{Detection: types.Detection{ObjectID: "B", Class: "tractor"}, EffectiveDistanceM: 45, Risk: types.RiskMedium},
		{Detection: types.Detection{ObjectID: "C", Class: "animal_cattle"}, EffectiveDistanceM: 8.2, Risk: types.RiskHigh},
	}
	risk := fusion.Fuse(
		types.CollisionAssessment{Level: types.RiskHigh, HighRiskObjects: 1, StoppingDistanceM: 0.36, ClosestObjectM: ptr(8.2)},
		types.NavigationAssessment{LanesDetected: 2, Level: types.RiskLow, LateralDeviationCM: -12, SteeringCorrectionDeg: 2.5},
	)

	got := newTestDecider().Decide(Input{Risk: risk, Objects: objects, VelocityMS: 1.2})

	assert.Equal(t, types.PriorityHigh, got.Priority)
	require.Equal(t, []types.CommandKind{types.CommandReduceVelocity, types.CommandSteeringCorrection}, types.CommandKinds(got.Commands))

	reduce := got.Commands[0].(types.ReduceVelocity)
	assert.InDelta(t, 0.5, reduce.TargetVelocityMS, 1e-9)
	assert.Contains(t, reduce.Reason(), "8.2m")

	steer := got.Commands[1].(types.SteeringCorrection)
	assert.Equal(t, 2.5, steer.AngleDeg)
	assert.Contains(t, steer.Reason(), "-12cm")
	assert.Empty(t, got.Notifications)
}

func TestDecideEmergencySuppressesEverythingElse(t *testing.T) {
	risk := fusion.Fuse(
		types.CollisionAssessment{Level: types.RiskCritical, CriticalObjects: 1, StoppingDistanceM: 0.36, ClosestObjectM: ptr(0.3)},
		types.NavigationAssessment{LanesDetected: 2, Level: types.RiskHigh, LateralDeviationCM: 80, SteeringCorrectionDeg: 8},
	)

	got := newTestDecider().Decide(Input{Risk: risk, VelocityMS: 1.2})

	assert.Equal(t, types.PriorityEmergency, got.Priority)
	assert.Equal(t, []types.CommandKind{types.CommandEmergencyStop}, types.CommandKinds(got.Commands))
	require.GreaterOrEqual(t, len(got.Notifications), 2)
	assert.Equal(t, TargetCore, got.Notifications[0].Target)
	assert.Equal(t, TargetOperator, got.Notifications[1].Target)
}

func TestDecideEmergencyWhenClosestInsideStoppingDistance(t *testing.T) {
	risk := fusion.Fuse(
		types.CollisionAssessment{Level: types.RiskMedium, StoppingDistanceM: 4, ClosestObjectM: ptr(3)},
		types.NavigationAssessment{LanesDetected: 2},
	)
	got := newTestDecider().Decide(Input{Risk: risk, VelocityMS: 4})
	assert.Equal(t, types.PriorityEmergency, got.Priority)
}

func TestDecideNormalAndMedium(t *testing.T) {
	d := newTestDecider()

	got := d.Decide(Input{Risk: fusion.Fuse(types.CollisionAssessment{}, types.NavigationAssessment{LanesDetected: 2, LateralDeviationCM: 3})})
	assert.Equal(t, types.PriorityNormal, got.Priority)
	assert.Equal(t, []types.CommandKind{types.CommandContinue}, types.CommandKinds(got.Commands))

	got = d.Decide(Input{Risk: fusion.Fuse(types.CollisionAssessment{}, types.NavigationAssessment{LanesDetected: 2, LateralDeviationCM: 11, SteeringCorrectionDeg: 1.1})})
	assert.Equal(t, []types.CommandKind{types.CommandContinue, types.CommandSteeringCorrection}, types.CommandKinds(got.Commands))

	got = d.Decide(Input{Risk: fusion.Fuse(types.CollisionAssessment{}, types.NavigationAssessment{LanesDetected: 2, Level: types.RiskMedium, LateralDeviationCM: -20, SteeringCorrectionDeg: -2})})
	assert.Equal(t, types.PriorityMedium, got.Priority)
	assert.Equal(t, []types.CommandKind{types.CommandMonitor, types.CommandSteeringCorrection}, types.CommandKinds(got.Commands))
}

func TestDecideHighFromNavigationReferencesDeviation(t *testing.T) {
	risk := fusion.Fuse(types.CollisionAssessment{}, types.NavigationAssessment{LanesDetected: 2, Level: types.RiskHigh, LateralDeviationCM: 42, SteeringCorrectionDeg: 4.2})
	got := newTestDecider().Decide(Input{Risk: risk, VelocityMS: 0.6})

	require.Equal(t, []types.CommandKind{types.CommandReduceVelocity, types.CommandSteeringCorrection}, types.CommandKinds(got.Commands))
	reduce := got.Commands[0].(types.ReduceVelocity)
	assert.InDelta(t, 0.3, reduce.TargetVelocityMS, 1e-9)
	assert.Contains(t, reduce.Reason(), "42cm")
}

func TestDecideDegradedSensingHoldsSteering(t *testing.T) {
	risk := fusion.Fuse(types.CollisionAssessment{}, types.NavigationAssessment{
		Level:                 types.RiskMedium,
		LateralDeviationCM:    -12,
		SteeringCorrectionDeg: -1.2,
		Status:                types.StatusLost,
		Stale:                 true,
	})
	warnings := []types.Warning{{Kind: types.WarningDegradedSensing, Message: "no lane"}}

	got := newTestDecider().Decide(Input{Risk: risk, Warnings: warnings})

	assert.Equal(t, types.PriorityMedium, got.Priority)
	require.Len(t, got.Commands, 2)
	assert.Equal(t, "lane sensing lost", got.Commands[0].Reason())
	assert.Equal(t, -1.2, got.Commands[1].(types.SteeringCorrection).AngleDeg)
	assert.Equal(t, []types.Notification{{Target: TargetOperator, Message: "lane sensing degraded"}}, got.Notifications)
}

func TestDecideAlwaysEmitsACommand(t *testing.T) {
	d := newTestDecider()
	for _, c := range []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh, types.RiskCritical} {
		for _, n := range []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh} {
			col := types.CollisionAssessment{Level: c}
			if c == types.RiskCritical {
				col.CriticalObjects = 1
			}
			got := d.Decide(Input{Risk: fusion.Fuse(col, types.NavigationAssessment{Level: n, LateralDeviationCM: 50})})
			assert.NotEmpty(t, got.Commands)
			if c == types.RiskCritical {
				assert.Len(t, got.Commands, 1)
			}
		}
	}
}

func TestWarningNotificationsDeduplicateByKind(t *testing.T) {
	got := WarningNotifications([]types.Warning{
		{Kind: types.WarningInvalidDetection, ObjectID: "A"},
		{Kind: types.WarningDegradedSensing},
		{Kind: types.WarningInvalidDetection, ObjectID: "B"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "2 detection(s) rejected as malformed", got[0].Message)
	assert.Equal(t, "lane sensing degraded", got[1].Message)
}
