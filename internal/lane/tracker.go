// Package lane turns raw lane geometry into a smoothed lateral deviation,
// a steering correction and a navigation risk level.
package lane

import (
	"errors"
	"fmt"
	"math"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/types"
)

// ErrInvalidLane marks a lane line whose geometry or confidence cannot be
// used.
var ErrInvalidLane = errors.New("invalid lane line")

// Tracker holds only read-only policy. Per-stream memory lives in the
// TrackState passed to Update.
type Tracker struct {
	p config.LanePolicy
}

func NewTracker(p config.LanePolicy) *Tracker {
	return &Tracker{p: p}
}

func (t *Tracker) NewState() *TrackState {
	return NewTrackState(t.p.SmoothingWindow)
}

// Update consumes one frame's lane observation and advances state.
func (t *Tracker) Update(state *TrackState, obs types.LaneObservation, cam types.CameraSpecs) (types.NavigationAssessment, []types.Warning) {
	state.frames++

	var warnings []types.Warning
	left, hasLeft, err := t.usable(obs, types.LaneLeft)
	if err != nil {
		warnings = append(warnings, rejected(types.LaneLeft, err))
	}
	right, hasRight, err := t.usable(obs, types.LaneRight)
	if err != nil {
		warnings = append(warnings, rejected(types.LaneRight, err))
	}

	var (
		centerX    float64
		confidence float64
		detected   int
	)
	switch {
	case hasLeft && hasRight:
		detected = 2
		lx := basePoint(left, cam).X
		rx := basePoint(right, cam).X
		centerX = (lx + rx) / 2
		if width := rx - lx; width > 0 {
			state.lastWidthPX = width
		}
		confidence = math.Min(left.Confidence, right.Confidence)
	case hasLeft || hasRight:
		detected = 1
		half := t.laneWidthPX(state) / 2
		line, side := left, "right"
		if hasLeft {
			centerX = basePoint(left, cam).X + half
		} else {
			line, side = right, "left"
			centerX = basePoint(right, cam).X - half
		}
		confidence = line.Confidence * t.p.SingleLaneFactor
		warnings = append(warnings, types.Warning{
			Kind:    types.WarningDegradedSensing,
			Message: fmt.Sprintf("%s lane boundary not sensed; single-lane estimate", side),
		})
	default:
		return t.carryForward(state), append(warnings, types.Warning{
			Kind:    types.WarningDegradedSensing,
			Message: "no lane boundary sensed; holding last steering correction",
		})
	}

	rawPX := centerX - float64(cam.Width)/2
	rawCM := rawPX * t.p.PixelToCM
	if !finite(rawCM) {
		return t.carryForward(state), append(warnings, types.Warning{
			Kind:    types.WarningDegradedSensing,
			Message: "lane geometry produced no usable deviation; holding last steering correction",
		})
	}
	deviation := state.smooth(rawCM, t.p.SmoothingAlpha)
	steering := t.steering(deviation)

	state.lastDeviationCM = deviation
	state.lastSteeringDeg = steering

	return types.NavigationAssessment{
		LanesDetected:         detected,
		RawDeviationPX:        rawPX,
		RawDeviationCM:        rawCM,
		LateralDeviationCM:    deviation,
		Status:                t.status(deviation),
		SteeringCorrectionDeg: steering,
		Confidence:            confidence,
		Level:                 t.navigationRisk(deviation),
	}, warnings
}

// carryForward reports the last known deviation and correction so the
// actuator does not see a jump to zero while lanes are lost.
func (t *Tracker) carryForward(state *TrackState) types.NavigationAssessment {
	return types.NavigationAssessment{
		LateralDeviationCM:    state.lastDeviationCM,
		Status:                types.StatusLost,
		SteeringCorrectionDeg: state.lastSteeringDeg,
		Level:                 types.RiskMedium,
		Stale:                 true,
	}
}

// usable returns the line for side when it can be tracked. A line that is
// present but malformed is reported through err and treated as not sensed.
func (t *Tracker) usable(obs types.LaneObservation, side types.LaneSide) (types.LaneLine, bool, error) {
	line, ok := obs.Line(side)
	if !ok {
		return types.LaneLine{}, false, nil
	}
	if err := ValidateLine(line); err != nil {
		return types.LaneLine{}, false, err
	}
	if line.Confidence < t.p.MinLaneConfidence {
		return types.LaneLine{}, false, nil
	}
	return line, true, nil
}

// ValidateLine checks that confidence lies in [0,1] and every point is
// finite.
func ValidateLine(line types.LaneLine) error {
	if !finite(line.Confidence) || line.Confidence < 0 || line.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidLane, line.Confidence)
	}
	for i, p := range line.Points {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("%w: point %d is (%v, %v)", ErrInvalidLane, i, p.X, p.Y)
		}
	}
	return nil
}

func rejected(side types.LaneSide, err error) types.Warning {
	return types.Warning{
		Kind:    types.WarningDegradedSensing,
		Message: fmt.Sprintf("%s lane boundary rejected: %v", side, err),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (t *Tracker) laneWidthPX(state *TrackState) float64 {
	if state.lastWidthPX > 0 {
		return state.lastWidthPX
	}
	return t.p.NominalLaneWidthPX
}

func (t *Tracker) steering(deviationCM float64) float64 {
	angle := deviationCM * t.p.SteeringGainDegPerCM
	return math.Max(-t.p.SteeringClampDeg, math.Min(t.p.SteeringClampDeg, angle))
}

func (t *Tracker) status(deviationCM float64) types.DeviationStatus {
	mag := math.Abs(deviationCM)
	switch {
	case mag < t.p.CenteredCM:
		return types.StatusCentered
	case mag < t.p.SlightCM && deviationCM < 0:
		return types.StatusSlightLeft
	case mag < t.p.SlightCM:
		return types.StatusSlightRight
	case deviationCM < 0:
		return types.StatusDeviationLeft
	default:
		return types.StatusDeviationRight
	}
}

// navigationRisk never returns critical: lane deviation alone is not a
// life-safety condition.
func (t *Tracker) navigationRisk(deviationCM float64) types.RiskLevel {
	mag := math.Abs(deviationCM)
	switch {
	case mag >= t.p.NavHighCM:
		return types.RiskHigh
	case mag >= t.p.NavMediumCM:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// basePoint is the boundary point closest to the bottom edge of the image.
func basePoint(line types.LaneLine, cam types.CameraSpecs) types.Point {
	bottom := float64(cam.Height)
	best := line.Points[0]
	for _, p := range line.Points[1:] {
		if math.Abs(p.Y-bottom) < math.Abs(best.Y-bottom) {
			best = p
		}
	}
	return best
}
