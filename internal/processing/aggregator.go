package processing

import (
	"sync"
	"time"

	"canaswarm-vision-go/internal/types"
)

// RunStats is a point-in-time copy of the Aggregator counters.
type RunStats struct {
	Results         int                    `json:"results"`
	ByRisk          types.RiskCounts       `json:"by_risk"`
	ByPriority      map[types.Priority]int `json:"by_priority"`
	Warnings        map[string]int         `json:"warnings"`
	Drops           map[string]int         `json:"drops"`
	LastEmergency   string                 `json:"last_emergency,omitempty"`
	LastEmergencyAt time.Time              `json:"last_emergency_at,omitempty"`
}

// Aggregator keeps per-run counters and the latest Result of every camera
// stream for the status and websocket surfaces.
type Aggregator struct {
	mu         sync.Mutex
	stats      RunStats
	latest     map[string]*types.Result
	hasChanges bool
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.Reset()
	return a
}

func (a *Aggregator) AddResult(r *types.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Results++
	a.stats.ByRisk.Add(r.Risk.Overall)
	a.stats.ByPriority[r.Actions.Priority]++
	for _, w := range r.Warnings {
		a.stats.Warnings[string(w.Kind)]++
	}
	if r.Actions.Priority == types.PriorityEmergency {
		a.stats.LastEmergency = r.CameraID + "/" + r.FrameID
		a.stats.LastEmergencyAt = r.Timestamp
	}
	a.latest[r.CameraID] = r
	a.hasChanges = true
}

func (a *Aggregator) AddDrop(d Drop) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Drops[string(d.Reason)]++
}

// Forget removes the latest Result of a closed stream.
func (a *Aggregator) Forget(cameraID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.latest[cameraID]; ok {
		delete(a.latest, cameraID)
		a.hasChanges = true
	}
}

func (a *Aggregator) Stats() RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.stats
	out.ByPriority = copyCounts(a.stats.ByPriority)
	out.Warnings = copyCounts(a.stats.Warnings)
	out.Drops = copyCounts(a.stats.Drops)
	return out
}

// SnapshotCopy returns the latest Result per stream. Results are immutable
// once built, so the pointers are shared.
func (a *Aggregator) SnapshotCopy() map[string]*types.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]*types.Result, len(a.latest))
	for k, v := range a.latest {
		out[k] = v
	}
	return out
}

// TakeChanged reports whether a Result arrived since the last call.
func (a *Aggregator) TakeChanged() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := a.hasChanges
	a.hasChanges = false
	return changed
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = RunStats{
		ByPriority: make(map[types.Priority]int),
		Warnings:   make(map[string]int),
		Drops:      make(map[string]int),
	}
	a.latest = make(map[string]*types.Result)
	a.hasChanges = false
}

func copyCounts[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
