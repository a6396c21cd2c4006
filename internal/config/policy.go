package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds every tunable of the decision layer. It is loaded once at
// start-up and treated as read-only afterwards.
type Policy struct {
	Kinematics KinematicsPolicy `yaml:"kinematics" json:"kinematics"`
	Objects    ObjectPolicy     `yaml:"objects" json:"objects"`
	Lane       LanePolicy       `yaml:"lane" json:"lane"`
	Actions    ActionPolicy     `yaml:"actions" json:"actions"`
	Pipeline   PipelinePolicy   `yaml:"pipeline" json:"pipeline"`
}

// KinematicsPolicy configures stopping-distance math. MinimumClearanceM is
// the distance under which any object is critical, even when the robot is
// stationary.
type KinematicsPolicy struct {
	DecelerationMS2   float64 `yaml:"deceleration_m_s2" json:"deceleration_m_s2"`
	CriticalMarginM   float64 `yaml:"critical_margin_m" json:"critical_margin_m"`
	MinimumClearanceM float64 `yaml:"minimum_clearance_m" json:"minimum_clearance_m"`
}

// ObjectPolicy configures the object classifier. ExtraClasses maps
// additional detector class tags to a category (vulnerable, vehicle, static).
// VehicleHighM is off at 0; set it to raise vehicles to high when closer.
type ObjectPolicy struct {
	VulnerableHighM float64           `yaml:"vulnerable_high_m" json:"vulnerable_high_m"`
	VehicleHighM    float64           `yaml:"vehicle_high_m" json:"vehicle_high_m"`
	MediumM         float64           `yaml:"medium_m" json:"medium_m"`
	DepthToleranceM float64           `yaml:"depth_tolerance_m" json:"depth_tolerance_m"`
	ExtraClasses    map[string]string `yaml:"extra_classes" json:"extra_classes,omitempty"`
}

// LanePolicy configures the lane tracker. SmoothingAlpha selects
// exponential smoothing when > 0, weighting the newest sample.
type LanePolicy struct {
	PixelToCM            float64 `yaml:"pixel_to_cm" json:"pixel_to_cm"`
	CenteredCM           float64 `yaml:"centered_cm" json:"centered_cm"`
	SlightCM             float64 `yaml:"slight_cm" json:"slight_cm"`
	SteeringGainDegPerCM float64 `yaml:"steering_gain_deg_per_cm" json:"steering_gain_deg_per_cm"`
	SteeringClampDeg     float64 `yaml:"steering_clamp_deg" json:"steering_clamp_deg"`
	SmoothingWindow      int     `yaml:"smoothing_window" json:"smoothing_window"`
	SmoothingAlpha       float64 `yaml:"smoothing_alpha" json:"smoothing_alpha"`
	NavMediumCM          float64 `yaml:"nav_medium_cm" json:"nav_medium_cm"`
	NavHighCM            float64 `yaml:"nav_high_cm" json:"nav_high_cm"`
	MinLaneConfidence    float64 `yaml:"min_lane_confidence" json:"min_lane_confidence"`
	SingleLaneFactor     float64 `yaml:"single_lane_confidence_factor" json:"single_lane_confidence_factor"`
	NominalLaneWidthPX   float64 `yaml:"nominal_lane_width_px" json:"nominal_lane_width_px"`
}

type ActionPolicy struct {
	SteeringThresholdCM   float64 `yaml:"steering_threshold_cm" json:"steering_threshold_cm"`
	ReducedVelocityFactor float64 `yaml:"reduced_velocity_factor" json:"reduced_velocity_factor"`
	ReducedVelocityCapMS  float64 `yaml:"reduced_velocity_cap_m_s" json:"reduced_velocity_cap_m_s"`
}

type PipelinePolicy struct {
	LatencyBudget time.Duration `yaml:"latency_budget" json:"latency_budget"`
}

// DefaultPolicy returns the policy with every documented default.
func DefaultPolicy() Policy {
	return Policy{
		Kinematics: KinematicsPolicy{
			DecelerationMS2:   2.0,
			CriticalMarginM:   5.0,
			MinimumClearanceM: 0.5,
		},
		Objects: ObjectPolicy{
			VulnerableHighM: 10.0,
			VehicleHighM:    0,
			MediumM:         10.0,
			DepthToleranceM: 1.0,
		},
		Lane: LanePolicy{
			PixelToCM:            0.5,
			CenteredCM:           5.0,
			SlightCM:             15.0,
			SteeringGainDegPerCM: 0.1,
			SteeringClampDeg:     15.0,
			SmoothingWindow:      5,
			NavMediumCM:          15.0,
			NavHighCM:            30.0,
			MinLaneConfidence:    0.3,
			SingleLaneFactor:     0.5,
			NominalLaneWidthPX:   1200,
		},
		Actions: ActionPolicy{
			SteeringThresholdCM:   10.0,
			ReducedVelocityFactor: 0.5,
			ReducedVelocityCapMS:  0.5,
		},
		Pipeline: PipelinePolicy{
			LatencyBudget: 50 * time.Millisecond,
		},
	}
}

// LoadPolicy reads a YAML policy file. Fields omitted from the file keep
// their default values, so partial files are safe.
func LoadPolicy(path string) (Policy, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return Policy{}, fmt.Errorf("policy file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to stat policy file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return Policy{}, fmt.Errorf("policy file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML over the defaults and validates the result.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// Validate checks that the policy values are usable.
func (p Policy) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"kinematics.deceleration_m_s2", p.Kinematics.DecelerationMS2},
		{"objects.vulnerable_high_m", p.Objects.VulnerableHighM},
		{"objects.medium_m", p.Objects.MediumM},
		{"lane.pixel_to_cm", p.Lane.PixelToCM},
		{"lane.steering_gain_deg_per_cm", p.Lane.SteeringGainDegPerCM},
		{"lane.steering_clamp_deg", p.Lane.SteeringClampDeg},
		{"lane.nominal_lane_width_px", p.Lane.NominalLaneWidthPX},
	}
	for _, f := range positive {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s must be positive, got %v", f.name, f.value)
		}
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"kinematics.critical_margin_m", p.Kinematics.CriticalMarginM},
		{"kinematics.minimum_clearance_m", p.Kinematics.MinimumClearanceM},
		{"objects.vehicle_high_m", p.Objects.VehicleHighM},
		{"objects.depth_tolerance_m", p.Objects.DepthToleranceM},
		{"lane.centered_cm", p.Lane.CenteredCM},
		{"actions.steering_threshold_cm", p.Actions.SteeringThresholdCM},
		{"actions.reduced_velocity_cap_m_s", p.Actions.ReducedVelocityCapMS},
	}
	for _, f := range nonNegative {
		if f.value < 0 || math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s must be non-negative, got %v", f.name, f.value)
		}
	}

	if p.Lane.SlightCM < p.Lane.CenteredCM {
		return fmt.Errorf("lane.slight_cm (%v) must not be below lane.centered_cm (%v)", p.Lane.SlightCM, p.Lane.CenteredCM)
	}
	if p.Lane.NavMediumCM <= 0 || p.Lane.NavHighCM < p.Lane.NavMediumCM {
		return fmt.Errorf("lane navigation bands must satisfy 0 < nav_medium_cm <= nav_high_cm, got %v/%v", p.Lane.NavMediumCM, p.Lane.NavHighCM)
	}
	if p.Lane.SmoothingWindow < 1 {
		return fmt.Errorf("lane.smoothing_window must be at least 1, got %d", p.Lane.SmoothingWindow)
	}
	if p.Lane.SmoothingAlpha < 0 || p.Lane.SmoothingAlpha > 1 {
		return fmt.Errorf("lane.smoothing_alpha must be between 0 and 1, got %v", p.Lane.SmoothingAlpha)
	}
	if p.Lane.MinLaneConfidence < 0 || p.Lane.MinLaneConfidence > 1 {
		return fmt.Errorf("lane.min_lane_confidence must be between 0 and 1, got %v", p.Lane.MinLaneConfidence)
	}
	if p.Lane.SingleLaneFactor < 0 || p.Lane.SingleLaneFactor > 1 {
		return fmt.Errorf("lane.single_lane_confidence_factor must be between 0 and 1, got %v", p.Lane.SingleLaneFactor)
	}
	if p.Actions.ReducedVelocityFactor <= 0 || p.Actions.ReducedVelocityFactor > 1 {
		return fmt.Errorf("actions.reduced_velocity_factor must be in (0, 1], got %v", p.Actions.ReducedVelocityFactor)
	}
	if p.Pipeline.LatencyBudget <= 0 {
		return fmt.Errorf("pipeline.latency_budget must be positive, got %s", p.Pipeline.LatencyBudget)
	}
	for class, category := range p.Objects.ExtraClasses {
		switch category {
		case "vulnerable", "vehicle", "static":
		default:
			return fmt.Errorf("objects.extra_classes[%q]: unknown category %q", class, category)
		}
	}
	return nil
}
