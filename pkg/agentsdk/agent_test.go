package agentsdk_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soorma-platform/soorma/pkg/agentsdk"
	"github.com/soorma-platform/soorma/pkg/envelope"
)

// newFakeEventService serves /v1/events/stream as a minimal SSE endpoint
// that emits the given envelopes once a client connects, and accepts
// /v1/events/publish without doing anything with the body.
func newFakeEventService(t *testing.T, envelopes []envelope.Envelope) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, env := range envelopes {
			b, err := json.Marshal(env)
			require.NoError(t, err)
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", b)
			flusher.Flush()
		}
		<-r.Context().Done()
	})
	mux.HandleFunc("/v1/events/publish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	return httptest.NewServer(mux)
}

func newFakeRegistryService() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"agent":{}}`))
	})
	mux.HandleFunc("/v1/agents/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	return httptest.NewServer(mux)
}

func TestAgent_RunDispatchesToRegisteredHandler(t *testing.T) {
	env := envelope.Envelope{
		Source:        "test",
		Type:          "plan.created",
		Topic:         envelope.TopicPlanEvents,
		CorrelationID: "corr-1",
	}
	env.Normalize()

	eventSvc := newFakeEventService(t, []envelope.Envelope{env})
	defer eventSvc.Close()
	registrySvc := newFakeRegistryService()
	defer registrySvc.Close()

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	table := agentsdk.NewBuilder().
		On(envelope.TopicPlanEvents, "plan.created", func(ctx context.Context, env *envelope.Envelope) error {
			received.Add(1)
			wg.Done()
			return nil
		}).
		Build()

	agent, err := agentsdk.New(agentsdk.Config{
		AgentID:            "test-agent-1",
		Topics:             []envelope.Topic{envelope.TopicPlanEvents},
		EventServiceURL:    eventSvc.URL,
		RegistryServiceURL: registrySvc.URL,
		HeartbeatInterval:  50 * time.Millisecond,
	}, table)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = agent.Run(ctx) }()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	require.Equal(t, int32(1), received.Load())
}

func TestAgent_PublishSendsEnvelope(t *testing.T) {
	eventSvc := newFakeEventService(t, nil)
	defer eventSvc.Close()
	registrySvc := newFakeRegistryService()
	defer registrySvc.Close()

	agent, err := agentsdk.New(agentsdk.Config{
		AgentID:            "test-agent-2",
		Topics:             []envelope.Topic{envelope.TopicBusinessFacts},
		EventServiceURL:    eventSvc.URL,
		RegistryServiceURL: registrySvc.URL,
	}, agentsdk.NewBuilder().Build())
	require.NoError(t, err)

	err = agent.Publish(context.Background(), &envelope.Envelope{
		Source: "test",
		Type:   "fact.recorded",
		Topic:  envelope.TopicBusinessFacts,
	})
	require.NoError(t, err)
}
