package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canaswarm-vision-go/internal/types"
)

var levels = []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh, types.RiskCritical}

func TestFuseTakesMaximum(t *testing.T) {
	closest := 8.2
	got := Fuse(
		types.CollisionAssessment{Level: types.RiskHigh, StoppingDistanceM: 0.36, ClosestObjectM: &closest},
		types.NavigationAssessment{Level: types.RiskLow, LateralDeviationCM: -12},
	)
	assert.Equal(t, types.RiskHigh, got.Overall)
	assert.Equal(t, &closest, got.ClosestObjectM)
	assert.Equal(t, 0.36, got.StoppingDistanceM)
}

func TestFuseIsCommutativeMaximum(t *testing.T) {
	for _, a := range levels {
		for _, b := range levels {
			ab := Fuse(types.CollisionAssessment{Level: a}, types.NavigationAssessment{Level: b}).Overall
			ba := Fuse(types.CollisionAssessment{Level: b}, types.NavigationAssessment{Level: a}).Overall
			assert.Equal(t, ab, ba)
			assert.GreaterOrEqual(t, ab, a)
			assert.GreaterOrEqual(t, ab, b)
			assert.True(t, ab == a || ab == b)
		}
	}
}

func TestFuseWithoutObjects(t *testing.T) {
	got := Fuse(types.CollisionAssessment{}, types.NavigationAssessment{Level: types.RiskMedium})
	assert.Equal(t, types.RiskMedium, got.Overall)
	assert.Nil(t, got.ClosestObjectM)
}
