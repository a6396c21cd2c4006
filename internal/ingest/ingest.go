// Package ingest receives perception frames over a ZMQ PULL socket and
// decodes them from CBOR.
package ingest

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"canaswarm-vision-go/internal/types"
)

// RawRecorder receives every message as it arrived on the wire, before
// decoding.
type RawRecorder interface {
	Record(msg []byte) error
}

var (
	decodeFailures atomic.Uint64
	notFrames      atomic.Uint64
	depthFailures  atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
	logCounter     atomic.Uint64
)

func DecodeFailures() uint64 { return decodeFailures.Load() }

func NonFrameMessages() uint64 { return notFrames.Load() }

// DepthFailures counts frames kept without their malformed depth map.
func DepthFailures() uint64 { return depthFailures.Load() }

func DecodeTiming() (uint64, uint64) {
	return decodeCount.Load(), decodeNanos.Load()
}

// Source connects to a perception publisher.
type Source struct {
	Endpoint string
	LogEvery int
	Recorder RawRecorder
	// PollInterval bounds how long a blocked receive delays shutdown.
	PollInterval time.Duration
}

// Frames connects and streams decoded frames until ctx is done.
func (s *Source) Frames(ctx context.Context) (<-chan types.Frame, error) {
	logEvery := s.LogEvery
	if logEvery < 1 {
		logEvery = 1
	}
	poll := s.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}

	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvtimeo(poll); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(s.Endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.Frame, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for ctx.Err() == nil {
			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) != zmq4.Errno(syscall.EAGAIN) {
					logEveryN(logEvery, "ingest recv error: %v", err)
				}
				continue
			}
			if s.Recorder != nil {
				if err := s.Recorder.Record(msg); err != nil {
					logEveryN(logEvery, "ingest raw log error: %v", err)
				}
			}

			frame, ok := decode(msg, logEvery)
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()

	return out, nil
}

func decode(msg []byte, logEvery int) (types.Frame, bool) {
	start := time.Now()
	frame, err := DecodeFrame(msg)
	decodeCount.Add(1)
	decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		if errors.Is(err, ErrNotFrame) {
			notFrames.Add(1)
			return types.Frame{}, false
		}
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest decode skipped message: %v", err)
		return types.Frame{}, false
	}
	if frame.DepthIssue != "" {
		depthFailures.Add(1)
		logEveryN(logEvery, "ingest frame %s kept without depth: %s", frame.FrameID, frame.DepthIssue)
	}
	return frame, true
}

func logEveryN(n int, format string, args ...any) {
	if logCounter.Add(1)%uint64(n) == 0 {
		log.Printf(format, args...)
	}
}
