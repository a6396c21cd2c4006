package types

import "time"

// Frame is one camera frame together with everything the perception
// collaborators produced for it. A frame is owned by a single pipeline
// invocation and is not retained after its Result is built.
type Frame struct {
	FrameID    string          `json:"frame_id"`
	Timestamp  time.Time       `json:"timestamp"`
	CameraID   string          `json:"camera_id"`
	RobotID    string          `json:"robot_id,omitempty"`
	Camera     CameraSpecs     `json:"camera_specs"`
	Robot      RobotState      `json:"robot_position"`
	Conditions Environment     `json:"environmental_conditions"`
	Detections []Detection     `json:"detections"`
	Lanes      LaneObservation `json:"lanes"`
	Depth      *DepthMap       `json:"-"`
	// DepthIssue explains why a depth map that arrived with the frame was
	// discarded. Empty when there was none or it decoded cleanly.
	DepthIssue string          `json:"-"`
}

type CameraSpecs struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	FPS     float64 `json:"fps"`
	HFOVDeg float64 `json:"fov_horizontal_deg"`
}

type RobotState struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	VelocityMS float64 `json:"velocity_m_s"`
	HeadingDeg float64 `json:"heading_deg"`
}

type Environment struct {
	Lighting     string  `json:"lighting,omitempty"`
	Weather      string  `json:"weather,omitempty"`
	TemperatureC float64 `json:"temperature_c"`
}

// BBox is an axis-aligned box in image pixel coordinates.
type BBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

func (b BBox) Empty() bool {
	return b.XMax <= b.XMin || b.YMax <= b.YMin
}

// Detection is a single object reported by the object detector.
type Detection struct {
	ObjectID   string   `json:"object_id"`
	Class      string   `json:"class"`
	Confidence float64  `json:"confidence"`
	DistanceM  float64  `json:"distance_m"`
	VelocityMS *float64 `json:"velocity_m_s,omitempty"`
	HeadingDeg *float64 `json:"heading_deg,omitempty"`
	BBox       *BBox    `json:"bbox,omitempty"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type LaneSide string

const (
	LaneLeft  LaneSide = "LEFT"
	LaneRight LaneSide = "RIGHT"
)

// LaneLine is one detected lane boundary as an ordered point set.
type LaneLine struct {
	Side       LaneSide `json:"lane_id"`
	Points     []Point  `json:"points"`
	Confidence float64  `json:"confidence"`
	WidthCM    float64  `json:"width_cm,omitempty"`
}

type LaneObservation struct {
	Lines []LaneLine `json:"lane_lines"`
}

// Line returns the first line reported for side.
func (o LaneObservation) Line(side LaneSide) (LaneLine, bool) {
	for _, l := range o.Lines {
		if l.Side == side && len(l.Points) > 0 {
			return l, true
		}
	}
	return LaneLine{}, false
}

// DepthMap is a dense per-pixel depth estimate in meters, row major.
// Non-positive and non-finite cells are treated as holes.
type DepthMap struct {
	Rows   int
	Cols   int
	Values []float32
}

func (d *DepthMap) At(row, col int) float32 {
	return d.Values[row*d.Cols+col]
}
