package ingest

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"canaswarm-vision-go/internal/types"
)

// ErrNotFrame marks messages that decode fine but carry something other
// than a camera frame.
var ErrNotFrame = errors.New("not a frame message")

// Wire layout of a perception frame. Field names follow the camera feed
// JSON produced by the perception stack.
type wireFrame struct {
	Type       string         `cbor:"type"`
	FrameID    string         `cbor:"frame_id"`
	Timestamp  any            `cbor:"timestamp"`
	CameraID   string         `cbor:"camera_id"`
	RobotID    string         `cbor:"robot_id"`
	Camera     wireCamera     `cbor:"camera_specs"`
	Robot      wireRobot      `cbor:"robot_position"`
	Conditions wireConditions `cbor:"environmental_conditions"`
	Detections wireDetections `cbor:"detection_results"`
	Lanes      wireLanes      `cbor:"lane_detection"`
	DepthMap   any            `cbor:"depth_map"`
}

type wireCamera struct {
	Resolution string  `cbor:"resolution"`
	Width      int     `cbor:"width"`
	Height     int     `cbor:"height"`
	FPS        float64 `cbor:"fps"`
	HFOVDeg    float64 `cbor:"fov_horizontal_deg"`
}

type wireRobot struct {
	Lat        float64 `cbor:"lat"`
	Lon        float64 `cbor:"lon"`
	VelocityMS float64 `cbor:"velocity_m_s"`
	HeadingDeg float64 `cbor:"heading_deg"`
}

type wireConditions struct {
	Lighting     string  `cbor:"lighting"`
	Weather      string  `cbor:"weather"`
	TemperatureC float64 `cbor:"temperature_c"`
}

type wireDetections struct {
	Objects []wireObject `cbor:"objects_detected"`
}

type wireObject struct {
	ObjectID   string      `cbor:"object_id"`
	Class      string      `cbor:"class"`
	Confidence float64     `cbor:"confidence"`
	DistanceM  float64     `cbor:"distance_m"`
	VelocityMS *float64    `cbor:"velocity_m_s"`
	HeadingDeg *float64    `cbor:"heading_deg"`
	BBox       *types.BBox `cbor:"bbox"`
}

type wireLanes struct {
	Lines []wireLane `cbor:"lane_lines"`
}

type wireLane struct {
	LaneID     string        `cbor:"lane_id"`
	Points     []types.Point `cbor:"points"`
	Confidence float64       `cbor:"confidence"`
	WidthCM    float64       `cbor:"width_cm"`
}

var decMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		MaxArrayElements: 1 << 22,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// DecodeFrame decodes one CBOR frame message. Missing optional sections
// decode to their zero value; the pipeline decides whether the frame is
// usable. A malformed depth map is dropped and described in DepthIssue.
func DecodeFrame(msg []byte) (types.Frame, error) {
	var w wireFrame
	if err := decMode.Unmarshal(msg, &w); err != nil {
		return types.Frame{}, fmt.Errorf("cbor decode: %w", err)
	}
	if w.Type != "" && w.Type != "frame" {
		return types.Frame{}, fmt.Errorf("%w: type %q", ErrNotFrame, w.Type)
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return types.Frame{}, err
	}
	cam, err := w.Camera.specs()
	if err != nil {
		return types.Frame{}, err
	}
	// The depth map only corroborates detector distances, so a bad one
	// costs the frame its depth, not its decision.
	depthIssue := ""
	depth, err := decodeDepthMap(w.DepthMap)
	if err != nil {
		depth = nil
		depthIssue = fmt.Sprintf("depth_map: %v", err)
	}

	frame := types.Frame{
		FrameID:    w.FrameID,
		Timestamp:  ts,
		CameraID:   w.CameraID,
		RobotID:    w.RobotID,
		Camera:     cam,
		DepthIssue: depthIssue,
		Robot: types.RobotState{
			Lat:        w.Robot.Lat,
			Lon:        w.Robot.Lon,
			VelocityMS: w.Robot.VelocityMS,
			HeadingDeg: w.Robot.HeadingDeg,
		},
		Conditions: types.Environment{
			Lighting:     w.Conditions.Lighting,
			Weather:      w.Conditions.Weather,
			TemperatureC: w.Conditions.TemperatureC,
		},
		Detections: make([]types.Detection, 0, len(w.Detections.Objects)),
		Depth:      depth,
	}
	for _, o := range w.Detections.Objects {
		frame.Detections = append(frame.Detections, types.Detection{
			ObjectID:   o.ObjectID,
			Class:      o.Class,
			Confidence: o.Confidence,
			DistanceM:  o.DistanceM,
			VelocityMS: o.VelocityMS,
			HeadingDeg: o.HeadingDeg,
			BBox:       o.BBox,
		})
	}
	for _, l := range w.Lanes.Lines {
		frame.Lanes.Lines = append(frame.Lanes.Lines, types.LaneLine{
			Side:       types.LaneSide(strings.ToUpper(l.LaneID)),
			Points:     l.Points,
			Confidence: l.Confidence,
			WidthCM:    l.WidthCM,
		})
	}
	return frame, nil
}

func (c wireCamera) specs() (types.CameraSpecs, error) {
	out := types.CameraSpecs{Width: c.Width, Height: c.Height, FPS: c.FPS, HFOVDeg: c.HFOVDeg}
	if c.Resolution != "" && (out.Width == 0 || out.Height == 0) {
		if _, err := fmt.Sscanf(strings.ToLower(c.Resolution), "%dx%d", &out.Width, &out.Height); err != nil {
			return types.CameraSpecs{}, fmt.Errorf("camera_specs.resolution %q: %w", c.Resolution, err)
		}
	}
	return out, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts unix seconds or an ISO-8601 string. Strings
// without a zone are taken as UTC. A missing timestamp yields the zero
// time.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q", t)
	default:
		secs, err := toFloat(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return time.Time{}, fmt.Errorf("invalid timestamp %v", secs)
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}
