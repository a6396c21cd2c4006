package processing

import (
	"sort"
	"sync"
	"time"

	"canaswarm-vision-go/internal/lane"
)

// stream is the per-camera slot. Holding mu grants exclusive use of the
// lane tracking state.
type stream struct {
	mu       sync.Mutex
	lane     *lane.TrackState
	lastSeen time.Time
}

type streamRegistry struct {
	mu       sync.Mutex
	streams  map[string]*stream
	newState func() *lane.TrackState
}

func newStreamRegistry(newState func() *lane.TrackState) *streamRegistry {
	return &streamRegistry{
		streams:  make(map[string]*stream),
		newState: newState,
	}
}

// acquire returns the locked slot for id, creating it on first use. It
// never blocks: a slot already held by another frame yields false.
func (r *streamRegistry) acquire(id string, now time.Time) (*stream, bool) {
	r.mu.Lock()
	s, ok := r.streams[id]
	if !ok {
		s = &stream{lane: r.newState()}
		r.streams[id] = s
	}
	s.lastSeen = now
	r.mu.Unlock()

	if !s.mu.TryLock() {
		return nil, false
	}
	return s, true
}

func (r *streamRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; !ok {
		return false
	}
	delete(r.streams, id)
	return true
}

// evict drops every idle slot last seen before cutoff. Slots in use are
// skipped.
func (r *streamRegistry) evict(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, s := range r.streams {
		if !s.lastSeen.Before(cutoff) || !s.mu.TryLock() {
			continue
		}
		delete(r.streams, id)
		s.mu.Unlock()
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *streamRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.streams))
	for id := range r.streams {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *streamRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
