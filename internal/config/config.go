package config

import "time"

type AppConfig struct {
	Port                  int
	Endpoint              string
	PerceptionBaseURL     string
	PerceptionPoll        time.Duration
	QueueDepth            int
	StreamIdleTimeout     time.Duration
	Debug                 bool
	DebugAcqRate          float64
	DebugCameras          []string
	UIRate                time.Duration
	RawLogEnabled         bool
	RawLogDir             string
	IngestLogEvery        int
	IngestFallback        bool
	PolicyPath            string
	SequentialStages      bool
	LatencyBudgetOverride time.Duration
}
