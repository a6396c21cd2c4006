package types

import "time"

type WarningKind string

const (
	WarningInvalidDetection  WarningKind = "invalid_detection"
	WarningUnknownClass      WarningKind = "unknown_class"
	WarningDepthDisagreement WarningKind = "depth_disagreement"
	WarningDegradedSensing   WarningKind = "degraded_sensing"
	WarningBudgetExceeded    WarningKind = "budget_exceeded"
	WarningDepthUnavailable  WarningKind = "depth_unavailable"
)

// Warning is data-quality or timing metadata attached to a Result. Warnings
// never prevent a Result from being produced.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
	ObjectID string      `json:"object_id,omitempty"`
}

// ClassifiedDetection is a Detection with its assigned risk.
type ClassifiedDetection struct {
	Detection
	Category           string    `json:"category"`
	EffectiveDistanceM float64   `json:"effective_distance_m"`
	Risk               RiskLevel `json:"risk_level"`
	Critical           bool      `json:"critical"`
}

type CollisionAssessment struct {
	Level             RiskLevel `json:"risk_level"`
	CriticalObjects   int       `json:"critical_objects"`
	HighRiskObjects   int       `json:"high_risk_objects"`
	MediumRiskObjects int       `json:"medium_risk_objects"`
	StoppingDistanceM float64   `json:"stopping_distance_m"`
	// ClosestObjectM is nil when the frame had no valid detection.
	ClosestObjectM *float64 `json:"closest_object_m"`
}

type DeviationStatus string

const (
	StatusCentered       DeviationStatus = "centered"
	StatusSlightLeft     DeviationStatus = "slight_left"
	StatusSlightRight    DeviationStatus = "slight_right"
	StatusDeviationLeft  DeviationStatus = "deviation_left"
	StatusDeviationRight DeviationStatus = "deviation_right"
	StatusLost           DeviationStatus = "lost"
)

type NavigationAssessment struct {
	LanesDetected         int             `json:"lanes_detected"`
	RawDeviationPX        float64         `json:"lateral_deviation_px"`
	RawDeviationCM        float64         `json:"raw_deviation_cm"`
	LateralDeviationCM    float64         `json:"lane_deviation_cm"`
	Status                DeviationStatus `json:"lane_deviation_status"`
	SteeringCorrectionDeg float64         `json:"steering_correction_deg"`
	Confidence            float64         `json:"confidence"`
	Level                 RiskLevel       `json:"risk_level"`
	// Stale is set when the deviation and correction were carried forward
	// from an earlier frame because no lane was sensed.
	Stale bool `json:"stale"`
}

type RiskAnalysis struct {
	Overall           RiskLevel            `json:"overall_risk_level"`
	Collision         CollisionAssessment  `json:"collision_risk"`
	Navigation        NavigationAssessment `json:"navigation_risk"`
	ClosestObjectM    *float64             `json:"closest_object_m"`
	StoppingDistanceM float64              `json:"stopping_distance_m"`
}

type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityNormal    Priority = "normal"
)

type Notification struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

type Actions struct {
	Priority      Priority       `json:"priority"`
	Commands      []Command      `json:"commands"`
	Notifications []Notification `json:"notifications"`
}

type ObjectSummary struct {
	Total      int                   `json:"total"`
	Rejected   int                   `json:"rejected"`
	ByRisk     RiskCounts            `json:"by_risk"`
	Detections []ClassifiedDetection `json:"detections"`
}

// Result is the immutable per-frame decision handed to the caller.
type Result struct {
	FrameID          string               `json:"frame_id"`
	Timestamp        time.Time            `json:"timestamp"`
	CameraID         string               `json:"camera_id"`
	RobotID          string               `json:"robot_id,omitempty"`
	ProcessingTime   time.Duration        `json:"-"`
	ProcessingTimeMS float64              `json:"processing_time_ms"`
	Objects          ObjectSummary        `json:"objects"`
	Lanes            NavigationAssessment `json:"lanes"`
	Risk             RiskAnalysis         `json:"risk_analysis"`
	Actions          Actions              `json:"actions"`
	Warnings         []Warning            `json:"warnings"`
}

// HasWarning reports whether r carries a warning of the given kind.
func (r *Result) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
