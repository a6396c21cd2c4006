// Package fusion combines collision and navigation risk into one level.
package fusion

import "canaswarm-vision-go/internal/types"

// Fuse is a total function: the overall level is the maximum of the two
// inputs under the RiskLevel order.
func Fuse(collision types.CollisionAssessment, navigation types.NavigationAssessment) types.RiskAnalysis {
	return types.RiskAnalysis{
		Overall:           types.MaxRisk(collision.Level, navigation.Level),
		Collision:         collision,
		Navigation:        navigation,
		ClosestObjectM:    collision.ClosestObjectM,
		StoppingDistanceM: collision.StoppingDistanceM,
	}
}
