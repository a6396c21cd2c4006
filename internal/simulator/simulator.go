// Package simulator produces synthetic perception frames for bench runs
// without cameras or inference services.
package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"canaswarm-vision-go/internal/types"
)

var defaultCamera = types.CameraSpecs{Width: 1920, Height: 1080, FPS: 30, HFOVDeg: 90}

var classes = []string{"person", "animal_cattle", "animal_dog", "tractor", "other_robot", "pole", "tree", "rock"}

// Simulator emits frames for every camera at Rate frames per second per
// camera. The zero value is not usable; use New.
type Simulator struct {
	Cameras []string
	RobotID string
	Rate    float64

	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
	newID  func() string
	states map[string]*cameraState
}

type cameraState struct {
	tick    int
	driftPX float64
	objects []simObject
}

type simObject struct {
	id        string
	class     string
	distanceM float64
	speedMS   float64
}

func New(cameras []string, rate float64, seed int64) *Simulator {
	if len(cameras) == 0 {
		cameras = []string{"front_cam_01"}
	}
	if rate <= 0 {
		rate = 10
	}
	return &Simulator{
		Cameras: cameras,
		RobotID: "canaswarm_sim",
		Rate:    rate,
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		states:  make(map[string]*cameraState),
	}
}

// Frames implements perception.FrameSource.
func (s *Simulator) Frames(ctx context.Context) (<-chan types.Frame, error) {
	out := make(chan types.Frame, len(s.Cameras))
	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Duration(float64(time.Second) / s.Rate))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, cam := range s.Cameras {
					select {
					case <-ctx.Done():
						return
					case out <- s.Next(cam):
					}
				}
			}
		}
	}()
	return out, nil
}

// Next advances camera's scene by one frame.
func (s *Simulator) Next(camera string) types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[camera]
	if !ok {
		st = &cameraState{}
		s.states[camera] = st
	}
	st.tick++

	velocity := 1.0 + 0.3*math.Sin(float64(st.tick)/40)
	dt := 1 / s.Rate

	s.advanceObjects(st, velocity, dt)
	st.driftPX = 0.9*st.driftPX + s.rng.NormFloat64()*12

	frame := types.Frame{
		FrameID:   s.newID(),
		Timestamp: s.now().UTC(),
		CameraID:  camera,
		RobotID:   s.RobotID,
		Camera:    defaultCamera,
		Robot: types.RobotState{
			Lat:        40.7128 + float64(st.tick)*1e-6,
			Lon:        -74.006,
			VelocityMS: velocity,
			HeadingDeg: 45,
		},
		Conditions: types.Environment{Lighting: "daylight", Weather: "clear", TemperatureC: 24},
		Detections: make([]types.Detection, 0, len(st.objects)),
		Lanes:      s.lanes(st),
	}
	for _, o := range st.objects {
		speed := o.speedMS
		frame.Detections = append(frame.Detections, types.Detection{
			ObjectID:   o.id,
			Class:      o.class,
			Confidence: 0.6 + 0.38*s.rng.Float64(),
			DistanceM:  o.distanceM,
			VelocityMS: &speed,
			BBox:       bboxFor(o.distanceM),
		})
	}
	return frame
}

func (s *Simulator) advanceObjects(st *cameraState, velocity, dt float64) {
	kept := st.objects[:0]
	for _, o := range st.objects {
		o.distanceM -= (velocity + o.speedMS) * dt
		if o.distanceM > 0.2 {
			kept = append(kept, o)
		}
	}
	st.objects = kept

	if len(st.objects) < 4 && s.rng.Float64() < 0.05 {
		st.objects = append(st.objects, simObject{
			id:        s.newID(),
			class:     classes[s.rng.Intn(len(classes))],
			distanceM: 10 + 40*s.rng.Float64(),
			speedMS:   0.5 * s.rng.Float64(),
		})
	}
}

// lanes drops one or both boundaries now and then to exercise degraded
// sensing.
func (s *Simulator) lanes(st *cameraState) types.LaneObservation {
	center := float64(defaultCamera.Width)/2 + st.driftPX
	half := 560.0
	bottom := float64(defaultCamera.Height)

	var obs types.LaneObservation
	roll := s.rng.Float64()
	if roll >= 0.02 {
		obs.Lines = append(obs.Lines, simLane(types.LaneLeft, center-half, bottom, 0.85+0.1*s.rng.Float64()))
	}
	if roll >= 0.02 && roll < 0.97 {
		obs.Lines = append(obs.Lines, simLane(types.LaneRight, center+half, bottom, 0.85+0.1*s.rng.Float64()))
	}
	return obs
}

func simLane(side types.LaneSide, baseX, bottom, conf float64) types.LaneLine {
	lean := 200.0
	if side == types.LaneRight {
		lean = -lean
	}
	return types.LaneLine{
		Side: side,
		Points: []types.Point{
			{X: baseX, Y: bottom},
			{X: baseX + lean/2, Y: bottom * 0.75},
			{X: baseX + lean, Y: bottom * 0.4},
		},
		Confidence: conf,
		WidthCM:    150,
	}
}

func bboxFor(distanceM float64) *types.BBox {
	size := int(math.Min(600, 2000/math.Max(distanceM, 1)))
	cx, cy := defaultCamera.Width/2, defaultCamera.Height/2
	return &types.BBox{XMin: cx - size/2, YMin: cy - size/2, XMax: cx + size/2, YMax: cy + size/2}
}
