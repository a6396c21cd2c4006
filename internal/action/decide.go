// Package action maps a fused risk analysis onto prioritised actuator
// commands and notifications.
//
// Tiers are evaluated highest first: Emergency, High, Medium, Normal. The
// first matching tier sets the priority and its primary command. A steering
// correction is appended for every tier except Emergency, where braking
// suppresses all other commands.
package action

import (
	"fmt"
	"math"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/types"
)

const (
	TargetCore     = "core"
	TargetOperator = "operator"
)

type Input struct {
	Risk       types.RiskAnalysis
	Objects    []types.ClassifiedDetection
	VelocityMS float64
	Warnings   []types.Warning
}

type Decider struct {
	p config.ActionPolicy
}

func NewDecider(p config.ActionPolicy) *Decider {
	return &Decider{p: p}
}

// Decide never fails and always returns at least one command.
func (d *Decider) Decide(in Input) types.Actions {
	collision := in.Risk.Collision
	nav := in.Risk.Navigation

	if emergency(in.Risk) {
		return types.Actions{
			Priority: types.PriorityEmergency,
			Commands: []types.Command{types.EmergencyStop{Why: emergencyReason(in)}},
			Notifications: append([]types.Notification{
				{Target: TargetCore, Message: fmt.Sprintf("emergency stop: %d critical object(s)", collision.CriticalObjects)},
				{Target: TargetOperator, Message: "robot stopped for safety"},
			}, WarningNotifications(in.Warnings)...),
		}
	}

	var actions types.Actions
	switch in.Risk.Overall {
	case types.RiskHigh, types.RiskCritical:
		actions.Priority = types.PriorityHigh
		actions.Commands = append(actions.Commands, types.ReduceVelocity{
			TargetVelocityMS: d.reducedVelocity(in.VelocityMS),
			Why:              highReason(in),
		})
	case types.RiskMedium:
		actions.Priority = types.PriorityMedium
		actions.Commands = append(actions.Commands, types.Monitor{Why: mediumReason(in)})
	default:
		actions.Priority = types.PriorityNormal
		actions.Commands = append(actions.Commands, types.Continue{Why: "no significant risk"})
	}

	if math.Abs(nav.LateralDeviationCM) > d.p.SteeringThresholdCM {
		actions.Commands = append(actions.Commands, types.SteeringCorrection{
			AngleDeg: nav.SteeringCorrectionDeg,
			Why:      fmt.Sprintf("lane deviation of %.0fcm", nav.LateralDeviationCM),
		})
	}
	actions.Notifications = WarningNotifications(in.Warnings)
	return actions
}

func emergency(r types.RiskAnalysis) bool {
	if r.Collision.CriticalObjects > 0 {
		return true
	}
	return r.ClosestObjectM != nil && *r.ClosestObjectM < r.StoppingDistanceM
}

func (d *Decider) reducedVelocity(velocityMS float64) float64 {
	return math.Min(math.Abs(velocityMS)*d.p.ReducedVelocityFactor, d.p.ReducedVelocityCapMS)
}

func emergencyReason(in Input) string {
	msg := fmt.Sprintf("%d critical object(s) detected", in.Risk.Collision.CriticalObjects)
	if in.Risk.ClosestObjectM != nil {
		msg += fmt.Sprintf(", closest at %.1fm", *in.Risk.ClosestObjectM)
	}
	return msg
}

// highReason references the nearest object at the triggering level, or the
// lane deviation when navigation alone raised the tier.
func highReason(in Input) string {
	if d, ok := nearestAt(in.Objects, types.RiskHigh); ok && in.Risk.Collision.Level >= types.RiskHigh {
		return fmt.Sprintf("object at %.1fm", d)
	}
	return fmt.Sprintf("lane deviation of %.0fcm", in.Risk.Navigation.LateralDeviationCM)
}

func mediumReason(in Input) string {
	if in.Risk.Collision.Level >= types.RiskMedium {
		if d, ok := nearestAt(in.Objects, types.RiskMedium); ok {
			return fmt.Sprintf("medium-risk object at %.1fm", d)
		}
	}
	if in.Risk.Navigation.LanesDetected == 0 {
		return "lane sensing lost"
	}
	return fmt.Sprintf("lane deviation of %.0fcm", in.Risk.Navigation.LateralDeviationCM)
}

func nearestAt(objects []types.ClassifiedDetection, level types.RiskLevel) (float64, bool) {
	best, found := math.Inf(1), false
	for _, o := range objects {
		if o.Risk == level && o.EffectiveDistanceM < best {
			best, found = o.EffectiveDistanceM, true
		}
	}
	return best, found
}

// WarningNotifications turns data-quality warnings into one notification
// per warning kind, in first-seen order.
func WarningNotifications(warnings []types.Warning) []types.Notification {
	counts := make(map[types.WarningKind]int, len(warnings))
	var order []types.WarningKind
	for _, w := range warnings {
		if counts[w.Kind] == 0 {
			order = append(order, w.Kind)
		}
		counts[w.Kind]++
	}

	out := make([]types.Notification, 0, len(order))
	for _, kind := range order {
		n := counts[kind]
		switch kind {
		case types.WarningInvalidDetection:
			out = append(out, types.Notification{Target: TargetOperator, Message: fmt.Sprintf("%d detection(s) rejected as malformed", n)})
		case types.WarningUnknownClass:
			out = append(out, types.Notification{Target: TargetOperator, Message: fmt.Sprintf("%d detection(s) with unrecognised class", n)})
		case types.WarningDepthDisagreement:
			out = append(out, types.Notification{Target: TargetCore, Message: fmt.Sprintf("depth map disagrees with detector on %d object(s)", n)})
		case types.WarningDegradedSensing:
			out = append(out, types.Notification{Target: TargetOperator, Message: "lane sensing degraded"})
		case types.WarningDepthUnavailable:
			out = append(out, types.Notification{Target: TargetCore, Message: "depth map unusable; detector distances only"})
		case types.WarningBudgetExceeded:
			out = append(out, types.Notification{Target: TargetCore, Message: "decision latency budget exceeded"})
		}
	}
	return out
}
