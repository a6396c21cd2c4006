package processing

import (
	"context"
	"errors"
	"sync"

	"canaswarm-vision-go/internal/types"
)

const DefaultQueueDepth = 4

type DropReason string

const (
	DropQueueFull  DropReason = "queue_full"
	DropStreamBusy DropReason = "stream_busy"
	DropMalformed  DropReason = "malformed"
	DropShutdown   DropReason = "shutdown"
	DropError      DropReason = "error"
)

// Drop describes a frame that never produced a Result.
type Drop struct {
	CameraID string
	FrameID  string
	Reason   DropReason
	Err      error
}

// Processor is satisfied by *Pipeline.
type Processor interface {
	ProcessFrame(ctx context.Context, frame types.Frame) (*types.Result, error)
}

type DispatcherOptions struct {
	QueueDepth int
	OnResult   func(*types.Result)
	OnDrop     func(Drop)
	Metrics    *Metrics
}

// Dispatcher serialises frames per camera stream: each stream gets one
// worker goroutine fed by a bounded queue. When a queue is full the oldest
// waiting frame is dropped so the robot always acts on recent data.
type Dispatcher struct {
	ctx  context.Context
	proc Processor
	opts DispatcherOptions

	mu       sync.Mutex
	workers  map[string]*worker
	retiring map[string]*worker
	closed   bool
	wg       sync.WaitGroup
}

// worker owns one camera queue. A worker that replaces a removed one waits
// for prev to drain first, so a stream never has two frames in flight.
type worker struct {
	mu    sync.Mutex
	queue chan types.Frame
	done  chan struct{}
	prev  *worker
}

func NewDispatcher(ctx context.Context, proc Processor, opts DispatcherOptions) *Dispatcher {
	if opts.QueueDepth < 1 {
		opts.QueueDepth = DefaultQueueDepth
	}
	return &Dispatcher{
		ctx:     ctx,
		proc:    proc,
		opts:    opts,
		workers:  make(map[string]*worker),
		retiring: make(map[string]*worker),
	}
}

// Submit queues a frame on its camera's worker. It never blocks on
// processing.
func (d *Dispatcher) Submit(frame types.Frame) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.drop(frame, DropShutdown, nil)
		return
	}
	w, ok := d.workers[frame.CameraID]
	if !ok {
		w = &worker{
			queue: make(chan types.Frame, d.opts.QueueDepth),
			done:  make(chan struct{}),
			prev:  d.retiring[frame.CameraID],
		}
		delete(d.retiring, frame.CameraID)
		d.workers[frame.CameraID] = w
		d.wg.Add(1)
		go d.run(w)
	}
	// Hold w.mu under d.mu so Remove cannot close the queue mid-send.
	w.mu.Lock()
	d.mu.Unlock()
	defer w.mu.Unlock()

	for {
		select {
		case w.queue <- frame:
			return
		default:
		}
		select {
		case old := <-w.queue:
			d.drop(old, DropQueueFull, nil)
		default:
		}
	}
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()
	defer close(w.done)
	if w.prev != nil {
		<-w.prev.done
		w.prev = nil
	}
	for frame := range w.queue {
		if d.ctx.Err() != nil {
			d.drop(frame, DropShutdown, d.ctx.Err())
			continue
		}
		result, err := d.proc.ProcessFrame(d.ctx, frame)
		if err != nil {
			d.drop(frame, reasonFor(err), err)
			continue
		}
		if d.opts.OnResult != nil {
			d.opts.OnResult(result)
		}
	}
}

func reasonFor(err error) DropReason {
	switch {
	case errors.Is(err, ErrStreamBusy):
		return DropStreamBusy
	case errors.Is(err, ErrMalformedFrame):
		return DropMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return DropShutdown
	default:
		return DropError
	}
}

func (d *Dispatcher) drop(frame types.Frame, reason DropReason, err error) {
	d.opts.Metrics.recordDrop(reason)
	Logf("dropped frame %s on %s: %s", frame.FrameID, frame.CameraID, reason)
	if d.opts.OnDrop != nil {
		d.opts.OnDrop(Drop{CameraID: frame.CameraID, FrameID: frame.FrameID, Reason: reason, Err: err})
	}
}

// Remove stops the worker of a camera stream after it drains its queue.
// Frames submitted for the stream meanwhile start a new worker that only
// runs once the old one is done.
func (d *Dispatcher) Remove(cameraID string) {
	d.mu.Lock()
	w, ok := d.workers[cameraID]
	if ok {
		delete(d.workers, cameraID)
		d.retiring[cameraID] = w
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	w.mu.Lock()
	close(w.queue)
	w.mu.Unlock()

	go func() {
		<-w.done
		d.mu.Lock()
		if d.retiring[cameraID] == w {
			delete(d.retiring, cameraID)
		}
		d.mu.Unlock()
	}()
}

// Close stops accepting frames, lets every worker drain and waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	workers := d.workers
	d.workers = make(map[string]*worker)
	d.mu.Unlock()

	for _, w := range workers {
		w.mu.Lock()
		close(w.queue)
		w.mu.Unlock()
	}
	d.wg.Wait()
}

// Streams returns the number of live workers.
func (d *Dispatcher) Streams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}
