package lane

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TrackState is the per-camera-stream smoothing memory. It must only be
// mutated by one Tracker.Update call at a time; the owner serialises access.
type TrackState struct {
	samples []float64
	next    int
	count   int

	ewma    float64
	hasEWMA bool

	lastDeviationCM float64
	lastSteeringDeg float64
	lastWidthPX     float64
	frames          int
}

// NewTrackState returns an empty state holding at most window samples.
func NewTrackState(window int) *TrackState {
	if window < 1 {
		window = 1
	}
	return &TrackState{samples: make([]float64, window)}
}

func (s *TrackState) push(v float64) {
	s.samples[s.next] = v
	s.next = (s.next + 1) % len(s.samples)
	if s.count < len(s.samples) {
		s.count++
	}
}

// Samples returns the retained raw deviations, oldest first.
func (s *TrackState) Samples() []float64 {
	out := make([]float64, 0, s.count)
	start := (s.next - s.count + len(s.samples)) % len(s.samples)
	for i := 0; i < s.count; i++ {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

func (s *TrackState) windowMean() float64 {
	return stat.Mean(s.samples[:s.count], nil)
}

// smooth records a raw sample and returns the smoothed deviation. alpha > 0
// selects an exponentially weighted average, otherwise a fixed window mean.
// A non-finite sample is never recorded; the last smoothed value is returned.
func (s *TrackState) smooth(raw, alpha float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return s.lastDeviationCM
	}
	s.push(raw)
	if alpha > 0 {
		if !s.hasEWMA {
			s.ewma = raw
			s.hasEWMA = true
		} else {
			s.ewma = alpha*raw + (1-alpha)*s.ewma
		}
		return s.ewma
	}
	return s.windowMean()
}

func (s *TrackState) LastDeviationCM() float64 { return s.lastDeviationCM }
func (s *TrackState) LastSteeringDeg() float64 { return s.lastSteeringDeg }
func (s *TrackState) LastLaneWidthPX() float64 { return s.lastWidthPX }
func (s *TrackState) Frames() int              { return s.frames }
