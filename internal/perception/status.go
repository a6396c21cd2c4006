package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is the last reported state of each inference service.
type Status struct {
	Objects string `json:"objects"`
	Lanes   string `json:"lanes"`
	Depth   string `json:"depth"`
}

// Degraded reports whether any service is not in a running state.
func (s Status) Degraded() bool {
	for _, v := range []string{s.Objects, s.Lanes, s.Depth} {
		switch v {
		case "ok", "ready", "running":
		default:
			return true
		}
	}
	return false
}

// Poll queries the services under baseURL every interval until ctx is done.
func Poll(ctx context.Context, baseURL string, interval time.Duration, update func(Status)) {
	if baseURL == "" || update == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	client := &http.Client{
		Timeout: 900 * time.Millisecond,
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		update(Status{
			Objects: fetchStatus(ctx, client, baseURL+"/object/status"),
			Lanes:   fetchStatus(ctx, client, baseURL+"/lane/status"),
			Depth:   fetchStatus(ctx, client, baseURL+"/depth/status"),
		})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fetchStatus(ctx context.Context, client *http.Client, endpoint string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "error"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "error"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "error"
	}
	if len(body) == 0 {
		return "ok"
	}
	if state, ok := extractState(body); ok {
		return state
	}
	return "ok"
}

func extractState(payload []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false
	}
	state := findState(decoded)
	if state == "" {
		return "", false
	}
	return strings.ToLower(state), true
}

// findState returns the first "state", "status" or "value" string,
// searching nested objects and arrays depth first.
func findState(value any) string {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range []string{"state", "status", "value"} {
			entry, ok := v[key]
			if !ok {
				continue
			}
			if s, ok := entry.(string); ok {
				return s
			}
			if nested := findState(entry); nested != "" {
				return nested
			}
		}
	case []any:
		for _, entry := range v {
			if nested := findState(entry); nested != "" {
				return nested
			}
		}
	}
	return ""
}
