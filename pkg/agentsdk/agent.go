package agentsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soorma-platform/soorma/pkg/envelope"
)

// Config describes how an agent connects to the platform.
type Config struct {
	// AgentID is this agent instance's unique identifier.
	AgentID string
	// Name, if set, is used as the SSE queue group (§4.2): multiple
	// instances sharing the same Name load-balance deliveries of events
	// sent with queue-group semantics. Leave empty to receive every
	// matching event independently (broadcast).
	Name           string
	AgentType      string
	Capabilities   []Capability
	EventsConsumed []string
	EventsProduced []string
	Metadata       map[string]interface{}

	// Topics is the set of topics to subscribe to on the Event Service.
	Topics []envelope.Topic

	EventServiceURL    string
	RegistryServiceURL string

	HeartbeatInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Agent is the SDK-facing handle an external service uses to register with
// the platform, consume events over SSE, and publish envelopes. The handler
// table is built once at startup and never mutated afterward.
type Agent struct {
	cfg     Config
	table   *HandlerTable
	sse     *sseWatcher
	reg     *registryClient
	pubHTTP *http.Client
}

// New constructs an Agent. table is produced by a Builder and must not be
// mutated after it is passed in.
func New(cfg Config, table *HandlerTable) (*Agent, error) {
	cfg.setDefaults()
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agentsdk: AgentID is required")
	}
	if cfg.EventServiceURL == "" || cfg.RegistryServiceURL == "" {
		return nil, fmt.Errorf("agentsdk: EventServiceURL and RegistryServiceURL are required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("agentsdk: at least one topic is required")
	}

	streamURL, err := buildStreamURL(cfg.EventServiceURL, cfg.Topics, cfg.AgentID, cfg.Name)
	if err != nil {
		return nil, err
	}

	return &Agent{
		cfg:     cfg,
		table:   table,
		sse:     newSSEWatcher(streamURL, cfg.Logger),
		reg:     newRegistryClient(cfg.RegistryServiceURL, cfg.Logger),
		pubHTTP: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func buildStreamURL(base string, topics []envelope.Topic, agentID, agentName string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/v1/events/stream")
	if err != nil {
		return "", fmt.Errorf("parse event service url: %w", err)
	}
	topicStrs := make([]string, len(topics))
	for i, t := range topics {
		topicStrs[i] = string(t)
	}
	q := u.Query()
	q.Set("topics", strings.Join(topicStrs, ","))
	q.Set("agent_id", agentID)
	if agentName != "" {
		q.Set("agent_name", agentName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run registers the agent, starts the heartbeat loop and the SSE
// consumption loop, and dispatches incoming envelopes to the handler table
// until ctx is canceled. A failed initial registration is logged and the
// agent keeps running without a registry entry. It blocks until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.reg.register(ctx, registrationRequest{
		AgentID:        a.cfg.AgentID,
		Name:           a.cfg.Name,
		AgentType:      a.cfg.AgentType,
		Capabilities:   a.cfg.Capabilities,
		EventsConsumed: a.cfg.EventsConsumed,
		EventsProduced: a.cfg.EventsProduced,
		Metadata:       a.cfg.Metadata,
	}); err != nil {
		a.cfg.Logger.Error("agentsdk: initial registration failed, continuing without registry", "error", err)
	}

	go a.reg.runHeartbeat(ctx, a.cfg.AgentID, a.cfg.HeartbeatInterval)
	go func() {
		if err := a.sse.run(ctx); err != nil && ctx.Err() == nil {
			a.cfg.Logger.Error("sse watcher exited", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-a.sse.envelopesChan():
			if !ok {
				return nil
			}
			a.dispatch(ctx, env)
		}
	}
}

func (a *Agent) dispatch(ctx context.Context, env *envelope.Envelope) {
	handler, ok := a.table.lookup(env)
	if !ok {
		a.cfg.Logger.Debug("no handler registered for envelope", "topic", env.Topic, "type", env.Type)
		return
	}
	if err := handler(ctx, env); err != nil {
		a.cfg.Logger.Error("handler returned error", "topic", env.Topic, "type", env.Type, "id", env.ID, "error", err)
	}
}

// Publish sends env to the Event Service's publish endpoint.
func (a *Agent) Publish(ctx context.Context, env *envelope.Envelope) error {
	env.Normalize()
	if err := env.Validate(); err != nil {
		return fmt.Errorf("agentsdk: invalid envelope: %w", err)
	}

	body, err := json.Marshal(struct {
		Event *envelope.Envelope `json:"event"`
	}{Event: env})
	if err != nil {
		return fmt.Errorf("agentsdk: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.EventServiceURL, "/")+"/v1/events/publish", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agentsdk: build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.pubHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("agentsdk: publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agentsdk: publish returned status %d", resp.StatusCode)
	}
	return nil
}

// LastRegistryAck reports when the registry last successfully acknowledged
// this agent (registration or heartbeat), or the zero Time if never.
func (a *Agent) LastRegistryAck() time.Time {
	return a.reg.lastAck()
}
