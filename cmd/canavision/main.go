package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/ingest"
	"canaswarm-vision-go/internal/output"
	"canaswarm-vision-go/internal/perception"
	"canaswarm-vision-go/internal/processing"
	"canaswarm-vision-go/internal/server"
	"canaswarm-vision-go/internal/simulator"
	"canaswarm-vision-go/internal/types"
)

type metrics struct {
	framesReceived  atomic.Uint64
	resultsTotal    atomic.Uint64
	resultsSent     atomic.Uint64
	dropsTotal      atomic.Uint64
	emergencies     atomic.Uint64
	processCount    atomic.Uint64
	processNanos    atomic.Uint64
	snapshotsSent   atomic.Uint64
	streamsEvicted  atomic.Uint64
	sourceRestarted atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"frames_received_total":  m.framesReceived.Load(),
		"results_total":          m.resultsTotal.Load(),
		"results_broadcast":      m.resultsSent.Load(),
		"drops_total":            m.dropsTotal.Load(),
		"emergency_total":        m.emergencies.Load(),
		"process_total":          m.processCount.Load(),
		"process_nanos_total":    m.processNanos.Load(),
		"snapshots_broadcast":    m.snapshotsSent.Load(),
		"streams_evicted_total":  m.streamsEvicted.Load(),
		"source_restarted_total": m.sourceRestarted.Load(),
	}
}

func main() {
	var (
		port              = flag.Int("port", 8888, "HTTP port for the telemetry UI")
		endpoint          = flag.String("endpoint", "tcp://localhost:31001", "ZMQ endpoint of the perception publisher")
		perceptionURL     = flag.String("perception-url", "", "Base URL of the inference services for status polling")
		perceptionPoll    = flag.Duration("perception-poll", 1*time.Second, "Polling interval for inference service status")
		queueDepth        = flag.Int("queue-depth", processing.DefaultQueueDepth, "Frames buffered per camera stream before dropping the oldest")
		streamIdleTimeout = flag.Duration("stream-idle-timeout", 30*time.Second, "Tear down camera streams idle for this long (0 disables)")
		debug             = flag.Bool("debug", false, "Run with simulated perception frames")
		debugAcqRate      = flag.Float64("debug-acq-rate", 15.0, "Simulated frame rate per camera (frames/sec)")
		debugCameras      = flag.String("debug-cameras", "front_cam_01", "Comma separated simulated camera ids")
		uiRate            = flag.Duration("ui-rate", 1*time.Second, "Snapshot interval for websocket clients")
		rawLogEnabled     = flag.Bool("raw-log", false, "Write raw CBOR messages to disk")
		rawLogDir         = flag.String("raw-log-dir", "rawlog", "Directory for raw ingest logs")
		ingestLogEvery    = flag.Int("ingest-log-every", 100, "Log every Nth ingest error")
		ingestFallback    = flag.Bool("ingest-fallback", true, "Fall back to simulator when ingest fails")
		policyPath        = flag.String("policy", "", "YAML decision policy file (defaults when empty)")
		sequentialStages  = flag.Bool("sequential-stages", false, "Run classifier and lane tracker one after another")
		latencyBudget     = flag.Duration("latency-budget", 0, "Override the per-frame latency budget")
	)
	flag.Parse()

	cfg := config.AppConfig{
		Port:                  *port,
		Endpoint:              *endpoint,
		PerceptionBaseURL:     *perceptionURL,
		PerceptionPoll:        *perceptionPoll,
		QueueDepth:            *queueDepth,
		StreamIdleTimeout:     *streamIdleTimeout,
		Debug:                 *debug,
		DebugAcqRate:          *debugAcqRate,
		DebugCameras:          splitList(*debugCameras),
		UIRate:                *uiRate,
		RawLogEnabled:         *rawLogEnabled,
		RawLogDir:             *rawLogDir,
		IngestLogEvery:        *ingestLogEvery,
		IngestFallback:        *ingestFallback,
		PolicyPath:            *policyPath,
		SequentialStages:      *sequentialStages,
		LatencyBudgetOverride: *latencyBudget,
	}

	policy := config.DefaultPolicy()
	if cfg.PolicyPath != "" {
		loaded, err := config.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("failed to load policy: %v", err)
		}
		policy = loaded
	}
	if cfg.LatencyBudgetOverride > 0 {
		policy.Pipeline.LatencyBudget = cfg.LatencyBudgetOverride
	}
	if err := policy.Validate(); err != nil {
		log.Fatalf("invalid policy: %v", err)
	}
	if len(cfg.DebugCameras) == 0 {
		cfg.DebugCameras = []string{"front_cam_01"}
	}
	if cfg.UIRate <= 0 {
		cfg.UIRate = 1 * time.Second
	}

	session := uuid.NewString()
	log.Printf("session %s: latency budget %v, queue depth %d", session, policy.Pipeline.LatencyBudget, cfg.QueueDepth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := processing.NewMetrics(reg)

	pipelineOpts := []processing.Option{processing.WithMetrics(promMetrics)}
	if cfg.SequentialStages {
		pipelineOpts = append(pipelineOpts, processing.WithSequentialStages())
	}
	pipeline := processing.NewPipeline(policy, pipelineOpts...)

	var metrics metrics
	agg := processing.NewAggregator()
	uiMessages := make(chan any, 16)

	var statusMu sync.Mutex
	status := map[string]any{
		"source":      "unknown",
		"stream":      "idle",
		"perception":  perception.Status{Objects: "unknown", Lanes: "unknown", Depth: "unknown"},
		"degraded":    false,
		"last_frame":  "",
		"last_result": "",
	}
	setStatus := func(key string, value any) {
		statusMu.Lock()
		status[key] = value
		statusMu.Unlock()
	}

	dispatcher := processing.NewDispatcher(ctx, timedProcessor{pipeline, &metrics}, processing.DispatcherOptions{
		QueueDepth: cfg.QueueDepth,
		Metrics:    promMetrics,
		OnResult: func(r *types.Result) {
			metrics.resultsTotal.Add(1)
			if r.Actions.Priority == types.PriorityEmergency {
				metrics.emergencies.Add(1)
				log.Printf("emergency on %s frame %s: %s", r.CameraID, r.FrameID, r.Actions.Commands[0].Reason())
			}
			agg.AddResult(r)
			setStatus("last_result", time.Now().Format(time.RFC3339))
			select {
			case uiMessages <- types.ResultMessage{Type: "result", Result: r}:
				metrics.resultsSent.Add(1)
			default:
			}
		},
		OnDrop: func(d processing.Drop) {
			metrics.dropsTotal.Add(1)
			agg.AddDrop(d)
		},
	})

	frames := startSource(ctx, cfg, setStatus, &metrics)

	go func() {
		defer dispatcher.Close()
		for frame := range frames {
			metrics.framesReceived.Add(1)
			setStatus("stream", "receiving")
			setStatus("last_frame", time.Now().Format(time.RFC3339))
			dispatcher.Submit(frame)
		}
	}()

	if !cfg.Debug && cfg.PerceptionBaseURL != "" {
		go perception.Poll(ctx, cfg.PerceptionBaseURL, cfg.PerceptionPoll, func(update perception.Status) {
			statusMu.Lock()
			status["perception"] = update
			status["degraded"] = update.Degraded()
			statusMu.Unlock()
		})
	}

	var latestSnapshotMu sync.Mutex
	var latestSnapshot types.UISnapshot
	var hasSnapshot bool

	go func() {
		defer close(uiMessages)
		ticker := time.NewTicker(cfg.UIRate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !agg.TakeChanged() {
					continue
				}
				message := types.UISnapshot{Type: "snapshot", Data: agg.SnapshotCopy()}
				latestSnapshotMu.Lock()
				latestSnapshot = message
				hasSnapshot = true
				latestSnapshotMu.Unlock()
				select {
				case uiMessages <- message:
					metrics.snapshotsSent.Add(1)
				default:
				}
			}
		}
	}()

	if cfg.StreamIdleTimeout > 0 {
		go func() {
			ticker := time.NewTicker(cfg.StreamIdleTimeout / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, id := range pipeline.EvictIdle(cfg.StreamIdleTimeout) {
						dispatcher.Remove(id)
						agg.Forget(id)
						metrics.streamsEvicted.Add(1)
						log.Printf("camera stream %s idle for %v; state released", id, cfg.StreamIdleTimeout)
					}
					if len(pipeline.Streams()) == 0 {
						setStatus("stream", "idle")
					}
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := metrics.snapshot()
				log.Printf("pipeline stats: frames=%v results=%v drops=%v emergencies=%v decode_failures=%v streams=%d",
					snapshot["frames_received_total"],
					snapshot["results_total"],
					snapshot["drops_total"],
					snapshot["emergency_total"],
					ingest.DecodeFailures(),
					dispatcher.Streams(),
				)
			}
		}
	}()

	statusFn := func() map[string]any {
		statusMu.Lock()
		defer statusMu.Unlock()
		copy := map[string]any{}
		for k, v := range status {
			copy[k] = v
		}
		metricsPayload := metrics.snapshot()
		metricsPayload["ingest_decode_failures_total"] = ingest.DecodeFailures()
		metricsPayload["ingest_non_frame_total"] = ingest.NonFrameMessages()
		metricsPayload["ingest_depth_failures_total"] = ingest.DepthFailures()
		decodeCount, decodeNanos := ingest.DecodeTiming()
		metricsPayload["ingest_decode_total"] = decodeCount
		metricsPayload["ingest_decode_nanos_total"] = decodeNanos
		copy["metrics"] = metricsPayload
		copy["run"] = agg.Stats()
		copy["streams"] = pipeline.Streams()
		copy["session"] = session
		return copy
	}

	snapshotFn := func() any {
		latestSnapshotMu.Lock()
		defer latestSnapshotMu.Unlock()
		if !hasSnapshot {
			return nil
		}
		return latestSnapshot
	}

	configFn := func() map[string]any {
		return map[string]any{
			"session":     session,
			"endpoint":    cfg.Endpoint,
			"debug":       cfg.Debug,
			"queue_depth": cfg.QueueDepth,
			"policy":      policy,
		}
	}

	log.Printf("Starting telemetry UI at http://localhost:%d\n", cfg.Port)
	if err := server.Run(ctx, cfg, uiMessages, server.Options{
		Status:   statusFn,
		Snapshot: snapshotFn,
		Config:   configFn,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

// timedProcessor adds the wall time of every call to the status counters.
type timedProcessor struct {
	p       *processing.Pipeline
	metrics *metrics
}

func (t timedProcessor) ProcessFrame(ctx context.Context, frame types.Frame) (*types.Result, error) {
	start := time.Now()
	r, err := t.p.ProcessFrame(ctx, frame)
	t.metrics.processCount.Add(1)
	t.metrics.processNanos.Add(uint64(time.Since(start).Nanoseconds()))
	return r, err
}

// startSource returns the frame stream for the run. Live ingest is
// restarted when its channel closes; when it cannot start and fallback is
// enabled the simulator takes over.
func startSource(ctx context.Context, cfg config.AppConfig, setStatus func(string, any), m *metrics) <-chan types.Frame {
	sim := simulator.New(cfg.DebugCameras, cfg.DebugAcqRate, time.Now().UnixNano())
	if cfg.Debug {
		setStatus("source", "simulator")
		frames, _ := sim.Frames(ctx)
		return frames
	}

	var recorder ingest.RawRecorder
	if cfg.RawLogEnabled {
		writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_cbor")
		if err != nil {
			log.Fatalf("failed to start raw log: %v", err)
		}
		log.Printf("raw log: %s", writer.Path())
		recorder = writer
		go func() {
			<-ctx.Done()
			if err := writer.Close(); err != nil {
				log.Printf("raw log close failed: %v", err)
			}
		}()
	}
	src := &ingest.Source{
		Endpoint: cfg.Endpoint,
		LogEvery: cfg.IngestLogEvery,
		Recorder: recorder,
	}

	out := make(chan types.Frame, 128)
	go func() {
		defer close(out)
		var source perception.FrameSource = src
		setStatus("source", "stream")
		for ctx.Err() == nil {
			frames, err := source.Frames(ctx)
			if err != nil {
				if !cfg.IngestFallback {
					log.Fatalf("failed to start ingest: %v", err)
				}
				log.Printf("failed to start ingest: %v; falling back to simulator", err)
				source = sim
				setStatus("source", "simulator")
				continue
			}
			for frame := range frames {
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
			}
			if ctx.Err() == nil {
				m.sourceRestarted.Add(1)
				time.Sleep(250 * time.Millisecond)
			}
		}
	}()
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
