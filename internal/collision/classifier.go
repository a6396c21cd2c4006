// Package collision assigns a risk level to each detected object and
// aggregates the frame's collision risk.
package collision

import (
	"errors"
	"fmt"
	"math"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/kinematics"
	"canaswarm-vision-go/internal/types"
)

var ErrInvalidDetection = errors.New("invalid detection")

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	decelMS2        float64
	marginM         float64
	clearanceM      float64
	depthToleranceM float64
	table           map[string]ClassPolicy
	unknown         ClassPolicy
}

func NewClassifier(p config.Policy) *Classifier {
	return &Classifier{
		decelMS2:        p.Kinematics.DecelerationMS2,
		marginM:         p.Kinematics.CriticalMarginM,
		clearanceM:      p.Kinematics.MinimumClearanceM,
		depthToleranceM: p.Objects.DepthToleranceM,
		table:           buildClassTable(p.Objects),
		unknown:         policyFor(CategoryUnknown, p.Objects),
	}
}

// Outcome is the classifier's per-frame output.
type Outcome struct {
	Assessment types.CollisionAssessment
	Objects    []types.ClassifiedDetection
	Rejected   int
	Warnings   []types.Warning
}

// ValidateDetection reports why d cannot be classified, wrapping ErrInvalidDetection.
func ValidateDetection(d types.Detection) error {
	switch {
	case d.ObjectID == "":
		return fmt.Errorf("%w: missing object id", ErrInvalidDetection)
	case math.IsNaN(d.DistanceM) || math.IsInf(d.DistanceM, 0) || d.DistanceM < 0:
		return fmt.Errorf("%w: %s: distance %v out of range", ErrInvalidDetection, d.ObjectID, d.DistanceM)
	case math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1:
		return fmt.Errorf("%w: %s: confidence %v outside [0,1]", ErrInvalidDetection, d.ObjectID, d.Confidence)
	}
	return nil
}

// Lookup returns the resolved policy for a detector class and whether the
// class is known.
func (c *Classifier) Lookup(class string) (ClassPolicy, bool) {
	p, ok := c.table[class]
	if !ok {
		return c.unknown, false
	}
	return p, true
}

// Classify assigns a risk level to one detection at the given distance.
func (c *Classifier) Classify(d types.Detection, distanceM, stoppingDistanceM float64) types.ClassifiedDetection {
	policy, _ := c.Lookup(d.Class)
	risk := c.level(policy, distanceM, stoppingDistanceM)
	return types.ClassifiedDetection{
		Detection:          d,
		Category:           string(policy.Category),
		EffectiveDistanceM: distanceM,
		Risk:               risk,
		Critical:           risk == types.RiskCritical,
	}
}

func (c *Classifier) level(policy ClassPolicy, distanceM, stoppingDistanceM float64) types.RiskLevel {
	if distanceM < math.Max(stoppingDistanceM, c.clearanceM) {
		return types.RiskCritical
	}
	if policy.MarginApplies && distanceM < kinematics.CriticalMargin(stoppingDistanceM, c.marginM) {
		return types.RiskCritical
	}
	if distanceM < policy.HighWithinM {
		return types.RiskHigh
	}
	if policy.Base >= types.RiskMedium || distanceM < policy.MediumWithinM {
		return types.RiskMedium
	}
	return policy.Base
}

// Assess classifies every detection of a frame. Malformed detections are
// excluded and reported as warnings; they never abort the assessment.
// depth and cam are only used to corroborate distances and may be zero.
func (c *Classifier) Assess(dets []types.Detection, velocityMS float64, depth *types.DepthMap, cam types.CameraSpecs) (Outcome, error) {
	stopping, err := kinematics.StoppingDistance(velocityMS, c.decelMS2)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Assessment: types.CollisionAssessment{
			Level:             types.RiskLow,
			StoppingDistanceM: stopping,
		},
		Objects: make([]types.ClassifiedDetection, 0, len(dets)),
	}
	seen := make(map[string]struct{}, len(dets))
	closest := math.Inf(1)

	for _, d := range dets {
		if err := ValidateDetection(d); err != nil {
			out.reject(d.ObjectID, err)
			continue
		}
		if _, dup := seen[d.ObjectID]; dup {
			out.reject(d.ObjectID, fmt.Errorf("%w: duplicate object id %s", ErrInvalidDetection, d.ObjectID))
			continue
		}
		seen[d.ObjectID] = struct{}{}

		if _, known := c.table[d.Class]; !known {
			out.Warnings = append(out.Warnings, types.Warning{
				Kind:     types.WarningUnknownClass,
				Message:  fmt.Sprintf("unrecognised class %q treated as %s", d.Class, c.unknown.Category),
				ObjectID: d.ObjectID,
			})
		}

		distance := d.DistanceM
		if depthM, ok := corroborate(d, depth, cam); ok && depthM < distance-c.depthToleranceM {
			out.Warnings = append(out.Warnings, types.Warning{
				Kind:     types.WarningDepthDisagreement,
				Message:  fmt.Sprintf("depth map places object at %.2fm, detector reported %.2fm", depthM, d.DistanceM),
				ObjectID: d.ObjectID,
			})
			distance = depthM
		}

		obj := c.Classify(d, distance, stopping)
		out.Objects = append(out.Objects, obj)

		switch obj.Risk {
		case types.RiskCritical:
			out.Assessment.CriticalObjects++
		case types.RiskHigh:
			out.Assessment.HighRiskObjects++
		case types.RiskMedium:
			out.Assessment.MediumRiskObjects++
		}
		out.Assessment.Level = types.MaxRisk(out.Assessment.Level, obj.Risk)
		closest = math.Min(closest, distance)
	}

	if !math.IsInf(closest, 1) {
		out.Assessment.ClosestObjectM = &closest
	}
	return out, nil
}

func (o *Outcome) reject(objectID string, err error) {
	o.Rejected++
	o.Warnings = append(o.Warnings, types.Warning{
		Kind:     types.WarningInvalidDetection,
		Message:  err.Error(),
		ObjectID: objectID,
	})
}
