package agentsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Capability describes one task the agent can perform, mirroring the
// Registry Service's capability shape.
type Capability struct {
	TaskName       string   `json:"task_name"`
	ConsumedEvent  string   `json:"consumed_event"`
	ProducedEvents []string `json:"produced_events"`
	Description    string   `json:"description"`
}

type registrationRequest struct {
	AgentID        string                 `json:"agent_id"`
	Name           string                 `json:"name"`
	AgentType      string                 `json:"agent_type"`
	Capabilities   []Capability           `json:"capabilities"`
	EventsConsumed []string               `json:"events_consumed"`
	EventsProduced []string               `json:"events_produced"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// registryClient registers the agent with the Registry Service and keeps it
// alive with a periodic heartbeat. On repeated heartbeat failure it keeps
// serving events — the agent does not stop consuming just because the
// registry is unreachable — but tracks the last successful ack internally.
type registryClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	lastAckUnixNano atomic.Int64
	mu              sync.Mutex
}

func newRegistryClient(baseURL string, logger *slog.Logger) *registryClient {
	return &registryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// lastAck returns the time of the last successful registry contact, or the
// zero value if none has ever succeeded.
func (r *registryClient) lastAck() time.Time {
	n := r.lastAckUnixNano.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (r *registryClient) register(ctx context.Context, req registrationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal registration request: %w", err)
	}
	return r.post(ctx, "/v1/agents", body)
}

func (r *registryClient) heartbeat(ctx context.Context, agentID string) error {
	return r.post(ctx, "/v1/agents/"+agentID+"/heartbeat", nil)
}

func (r *registryClient) post(ctx context.Context, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry returned status %d for %s", resp.StatusCode, path)
	}
	r.lastAckUnixNano.Store(time.Now().UnixNano())
	return nil
}

// runHeartbeat loops until ctx is canceled, sending a heartbeat every
// interval while heartbeats succeed. After a failure the wait before the
// next attempt doubles (capped at 30s) and resets to interval on the next
// success — failures never stop the loop, they only change its pacing.
func (r *registryClient) runHeartbeat(ctx context.Context, agentID string, interval time.Duration) {
	maxBackoff := 30 * time.Second
	wait := interval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := r.heartbeat(ctx, agentID); err != nil {
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
			r.logger.Warn("heartbeat failed, will retry", "error", err, "next_attempt_in", wait)
			continue
		}
		wait = interval
	}
}
