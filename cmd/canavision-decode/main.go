package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"canaswarm-vision-go/internal/config"
	"canaswarm-vision-go/internal/ingest"
	"canaswarm-vision-go/internal/output"
	"canaswarm-vision-go/internal/processing"
	"canaswarm-vision-go/internal/types"
)

func main() {
	var (
		path       = flag.String("path", "", "Path to a CBOR frame file or a directory of .cbor files")
		rawLogPath = flag.String("rawlog", "", "Path to a raw ingest log to read frames from instead")
		limit      = flag.Int("limit", 5, "Max number of frames to summarize (0 for all)")
		run        = flag.Bool("run", false, "Run decoded frames through the decision pipeline and print each Result")
		policyPath = flag.String("policy", "", "YAML decision policy used with -run")
	)
	flag.Parse()

	if *path == "" && *rawLogPath == "" {
		log.Fatal("missing -path or -rawlog")
	}

	var pipeline *processing.Pipeline
	if *run {
		policy := config.DefaultPolicy()
		if *policyPath != "" {
			loaded, err := config.LoadPolicy(*policyPath)
			if err != nil {
				log.Fatalf("load policy: %v", err)
			}
			policy = loaded
		}
		if err := policy.Validate(); err != nil {
			log.Fatalf("invalid policy: %v", err)
		}
		processing.SetLogger(nil)
		pipeline = processing.NewPipeline(policy, processing.WithSequentialStages())
	}

	var frameCount, skipped, failed int
	handle := func(name string, data []byte) {
		frame, err := ingest.DecodeFrame(data)
		if err != nil {
			if errors.Is(err, ingest.ErrNotFrame) {
				skipped++
				return
			}
			failed++
			log.Printf("decode %s: %v", name, err)
			return
		}
		frameCount++
		if *limit > 0 && frameCount > *limit {
			return
		}
		printSummary(name, frame)
		if pipeline == nil {
			return
		}
		result, err := pipeline.ProcessFrame(context.Background(), frame)
		if err != nil {
			log.Printf("process %s: %v", name, err)
			return
		}
		pretty, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Printf("encode result %s: %v", name, err)
			return
		}
		fmt.Println(string(pretty))
	}

	if *rawLogPath != "" {
		if err := readRawLog(*rawLogPath, handle); err != nil {
			log.Fatalf("read rawlog: %v", err)
		}
	} else {
		files, err := listFiles(*path)
		if err != nil {
			log.Fatalf("list files: %v", err)
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				log.Printf("read %s: %v", file, err)
				continue
			}
			handle(file, data)
		}
	}

	fmt.Printf("summary: frames=%d non_frame=%d failed=%d\n", frameCount, skipped, failed)
}

func printSummary(name string, f types.Frame) {
	fmt.Printf("frame: %s\n", name)
	fmt.Printf("  frame_id: %s camera: %s at %s\n", f.FrameID, f.CameraID, f.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	fmt.Printf("  camera: %dx%d fov %.0f°, velocity %.2f m/s\n", f.Camera.Width, f.Camera.Height, f.Camera.HFOVDeg, f.Robot.VelocityMS)
	for _, d := range f.Detections {
		fmt.Printf("  object %s: %s at %.1fm (conf %.2f)\n", d.ObjectID, d.Class, d.DistanceM, d.Confidence)
	}
	for _, l := range f.Lanes.Lines {
		fmt.Printf("  lane %s: %d points (conf %.2f)\n", l.Side, len(l.Points), l.Confidence)
	}
	if f.Depth != nil {
		fmt.Printf("  depth map: %dx%d\n", f.Depth.Rows, f.Depth.Cols)
	}
}

func readRawLog(path string, handle func(string, []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		rec, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		handle(fmt.Sprintf("record %d", i), rec.Payload)
	}
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".cbor" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
