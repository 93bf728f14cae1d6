// Package agentsdk is the client library external agents use to register
// with the Registry Service, stream events from the Event Service over SSE,
// and publish envelopes back. The SSE watcher is grounded on the
// bufio.Scanner frame parser / Last-Event-ID reconnect / exponential-backoff
// pattern used by a kbeads-style SSE subscriber in the example pack,
// generalized from a fixed bead-lifecycle payload to the platform's
// envelope.Envelope wire format.
package agentsdk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/soorma-platform/soorma/pkg/envelope"
)

// sseWatcher subscribes to the Event Service's SSE stream and delivers
// decoded envelopes on a channel. It tracks Last-Event-ID for reconnection
// and auto-reconnects with exponential backoff.
type sseWatcher struct {
	streamURL  string
	httpClient *http.Client
	logger     *slog.Logger
	envelopes  chan *envelope.Envelope

	mu          sync.Mutex
	lastEventID string
}

func newSSEWatcher(streamURL string, logger *slog.Logger) *sseWatcher {
	return &sseWatcher{
		streamURL:  streamURL,
		httpClient: &http.Client{Timeout: 0},
		logger:     logger,
		envelopes:  make(chan *envelope.Envelope, 256),
	}
}

// run blocks until ctx is canceled, reconnecting with exponential backoff
// (capped) on any stream error. The caller drains envelopesChan() concurrently.
func (w *sseWatcher) run(ctx context.Context) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			close(w.envelopes)
			return ctx.Err()
		default:
		}

		err := w.stream(ctx)
		if ctx.Err() != nil {
			close(w.envelopes)
			return ctx.Err()
		}
		if err != nil {
			w.logger.Warn("sse stream error, reconnecting", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				close(w.envelopes)
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

func (w *sseWatcher) envelopesChan() <-chan *envelope.Envelope {
	return w.envelopes
}

func (w *sseWatcher) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.streamURL, nil)
	if err != nil {
		return fmt.Errorf("create sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	w.mu.Lock()
	lastID := w.lastEventID
	w.mu.Unlock()
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	w.logger.Info("connecting to event stream", "url", w.streamURL, "last_event_id", lastID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sse connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sse endpoint returned status %d", resp.StatusCode)
	}
	w.logger.Info("event stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventID, eventType, eventData string
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()

		if line == "" {
			if eventData != "" && eventType == "message" {
				w.deliver(eventData)
			}
			if eventID != "" {
				w.mu.Lock()
				w.lastEventID = eventID
				w.mu.Unlock()
			}
			eventID, eventType, eventData = "", "", ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment/keepalive
		}
		switch {
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			eventData = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sse stream read: %w", err)
	}
	return fmt.Errorf("sse stream closed by server")
}

func (w *sseWatcher) deliver(data string) {
	var env envelope.Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		w.logger.Debug("skipping malformed sse envelope", "error", err)
		return
	}
	select {
	case w.envelopes <- &env:
	default:
		w.logger.Warn("envelope channel full, dropping event", "id", env.ID)
	}
}
