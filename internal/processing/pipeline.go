// Package processing runs the per-frame decision pipeline and feeds it
// from per-camera queues.
package processing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"canaswarm-vision-go/internal/action"
	"canaswarm-vision-go/internal/collision"
	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/fusion"
	"canaswarm-vision-go/internal/lane"
	"canaswarm-vision-go/internal/types"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrStreamBusy     = errors.New("stream busy")
)

type Option func(*Pipeline)

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSequentialStages runs the classifier and lane tracker one after the
// other on the calling goroutine.
func WithSequentialStages() Option {
	return func(p *Pipeline) { p.sequential = true }
}

// Pipeline turns frames into Results. It is safe for concurrent use across
// camera streams; frames of one stream must be submitted one at a time.
type Pipeline struct {
	classifier *collision.Classifier
	tracker    *lane.Tracker
	decider    *action.Decider
	budget     time.Duration
	streams    *streamRegistry
	metrics    *Metrics
	now        func() time.Time
	sequential bool
}

func NewPipeline(policy config.Policy, opts ...Option) *Pipeline {
	tracker := lane.NewTracker(policy.Lane)
	p := &Pipeline{
		classifier: collision.NewClassifier(policy),
		tracker:    tracker,
		decider:    action.NewDecider(policy.Actions),
		budget:     policy.Pipeline.LatencyBudget,
		streams:    newStreamRegistry(tracker.NewState),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateFrame reports why a frame cannot be processed at all. Problems
// with individual detections are not frame errors.
func ValidateFrame(f types.Frame) error {
	switch {
	case f.FrameID == "":
		return fmt.Errorf("%w: missing frame id", ErrMalformedFrame)
	case f.CameraID == "":
		return fmt.Errorf("%w: %s: missing camera id", ErrMalformedFrame, f.FrameID)
	case f.Timestamp.IsZero():
		return fmt.Errorf("%w: %s: missing timestamp", ErrMalformedFrame, f.FrameID)
	case f.Camera.Width <= 0 || f.Camera.Height <= 0:
		return fmt.Errorf("%w: %s: camera resolution %dx%d", ErrMalformedFrame, f.FrameID, f.Camera.Width, f.Camera.Height)
	case math.IsNaN(f.Robot.VelocityMS) || math.IsInf(f.Robot.VelocityMS, 0):
		return fmt.Errorf("%w: %s: velocity %v", ErrMalformedFrame, f.FrameID, f.Robot.VelocityMS)
	}
	for _, l := range f.Lanes.Lines {
		if l.Side != types.LaneLeft && l.Side != types.LaneRight {
			return fmt.Errorf("%w: %s: lane side %q", ErrMalformedFrame, f.FrameID, l.Side)
		}
	}
	return nil
}

// ProcessFrame produces the Result for one frame. The latency budget is
// soft: an over-budget frame still returns its full Result, flagged with a
// budget_exceeded warning.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame types.Frame) (*types.Result, error) {
	start := p.now()

	if err := ValidateFrame(frame); err != nil {
		p.metrics.recordOutcome(OutcomeMalformed)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot, ok := p.streams.acquire(frame.CameraID, start)
	if !ok {
		p.metrics.recordOutcome(OutcomeBusy)
		return nil, fmt.Errorf("%w: %s", ErrStreamBusy, frame.CameraID)
	}
	defer slot.mu.Unlock()
	p.metrics.setStreams(p.streams.count())

	var (
		outcome      collision.Outcome
		nav          types.NavigationAssessment
		laneWarnings []types.Warning
	)
	assess := func() error {
		var err error
		outcome, err = p.classifier.Assess(frame.Detections, frame.Robot.VelocityMS, frame.Depth, frame.Camera)
		return err
	}
	track := func() error {
		nav, laneWarnings = p.tracker.Update(slot.lane, frame.Lanes, frame.Camera)
		return nil
	}

	var err error
	if p.sequential {
		if err = assess(); err == nil {
			err = track()
		}
	} else {
		var g errgroup.Group
		g.Go(assess)
		g.Go(track)
		err = g.Wait()
	}
	if err != nil {
		p.metrics.recordOutcome(OutcomeError)
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, frame.FrameID, err)
	}

	warnings := make([]types.Warning, 0, len(outcome.Warnings)+len(laneWarnings)+1)
	warnings = append(warnings, outcome.Warnings...)
	warnings = append(warnings, laneWarnings...)
	if frame.DepthIssue != "" {
		warnings = append(warnings, types.Warning{
			Kind:    types.WarningDepthUnavailable,
			Message: frame.DepthIssue,
		})
	}

	risk := fusion.Fuse(outcome.Assessment, nav)
	actions := p.decider.Decide(action.Input{
		Risk:       risk,
		Objects:    outcome.Objects,
		VelocityMS: frame.Robot.VelocityMS,
		Warnings:   warnings,
	})

	summary := types.ObjectSummary{
		Total:      len(frame.Detections),
		Rejected:   outcome.Rejected,
		Detections: outcome.Objects,
	}
	for _, o := range outcome.Objects {
		summary.ByRisk.Add(o.Risk)
	}

	elapsed := p.now().Sub(start)
	if p.budget > 0 && elapsed > p.budget {
		budget := types.Warning{
			Kind:    types.WarningBudgetExceeded,
			Message: fmt.Sprintf("decision took %s, budget %s", elapsed, p.budget),
		}
		warnings = append(warnings, budget)
		actions.Notifications = append(actions.Notifications, action.WarningNotifications([]types.Warning{budget})...)
		Logf("frame %s on %s over budget: %s", frame.FrameID, frame.CameraID, elapsed)
	}

	result := &types.Result{
		FrameID:          frame.FrameID,
		Timestamp:        frame.Timestamp,
		CameraID:         frame.CameraID,
		RobotID:          frame.RobotID,
		ProcessingTime:   elapsed,
		ProcessingTimeMS: durationMS(elapsed),
		Objects:          summary,
		Lanes:            nav,
		Risk:             risk,
		Actions:          actions,
		Warnings:         warnings,
	}
	p.metrics.recordResult(result)
	return result, nil
}

// CloseStream discards the tracking state of a camera stream. A frame in
// flight on that stream completes against the discarded state.
func (p *Pipeline) CloseStream(cameraID string) bool {
	ok := p.streams.remove(cameraID)
	p.metrics.setStreams(p.streams.count())
	return ok
}

// EvictIdle closes every stream that has not seen a frame for maxIdle and
// returns their camera ids.
func (p *Pipeline) EvictIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	evicted := p.streams.evict(p.now().Add(-maxIdle))
	if len(evicted) > 0 {
		Logf("evicted %d idle stream(s): %v", len(evicted), evicted)
	}
	p.metrics.setStreams(p.streams.count())
	return evicted
}

// Streams lists the camera ids currently holding state.
func (p *Pipeline) Streams() []string {
	return p.streams.ids()
}
