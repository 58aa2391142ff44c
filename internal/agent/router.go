package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/prime-gateway/internal/apperr"
	"github.com/nextlevelbuilder/prime-gateway/internal/bus"
	"github.com/nextlevelbuilder/prime-gateway/internal/providers"
	"github.com/nextlevelbuilder/prime-gateway/internal/store"
	"github.com/nextlevelbuilder/prime-gateway/internal/tools"
)

// Router resolves an agent_id to a running Loop, lazily building and
// caching one Loop per active Agent row the first time it's needed and
// evicting the cache entry when the underlying Agent/Provider config
// changes. It is the one place that turns store.Agent + store.Provider
// into a wired internal/agent.Loop, so the gateway (C13), cron/webhook
// triggers (C14), and the REST surface (C15) all dispatch turns the
// same way.
type Router struct {
	agents    store.AgentStore
	providers store.ProviderStore
	sessions  store.SessionStore
	tools     *tools.Registry
	eventPub  bus.EventPublisher
	orgID     string

	mu    sync.RWMutex
	loops map[string]*Loop
}

// NewRouter constructs a Router. orgID scopes which agents List() returns.
func NewRouter(agents store.AgentStore, providerStore store.ProviderStore, sessions store.SessionStore, toolsReg *tools.Registry, eventPub bus.EventPublisher, orgID string) *Router {
	return &Router{
		agents:    agents,
		providers: providerStore,
		sessions:  sessions,
		tools:     toolsReg,
		eventPub:  eventPub,
		orgID:     orgID,
		loops:     make(map[string]*Loop),
	}
}

// Get returns the cached Loop for agentID, building it from the store on
// first access.
func (r *Router) Get(ctx context.Context, agentID string) (*Loop, error) {
	r.mu.RLock()
	loop, ok := r.loops[agentID]
	r.mu.RUnlock()
	if ok {
		return loop, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if loop, ok := r.loops[agentID]; ok {
		return loop, nil
	}

	loop, err := r.build(ctx, agentID)
	if err != nil {
		return nil, err
	}
	r.loops[agentID] = loop
	return loop, nil
}

func (r *Router) build(ctx context.Context, agentID string) (*Loop, error) {
	a, err := r.agents.Get(ctx, agentID)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "load agent", err)
	}
	if a == nil || !a.Active {
		return nil, apperr.E(apperr.NotFound, "agent not found or inactive: "+agentID, nil)
	}

	p, err := r.providers.Get(ctx, a.DefaultProviderID)
	if err != nil {
		return nil, apperr.E(apperr.Internal, "load provider", err)
	}
	if p == nil || !p.Active {
		return nil, apperr.E(apperr.Internal, "agent's default provider not found or inactive", nil)
	}

	prov, err := buildProvider(p)
	if err != nil {
		return nil, err
	}

	contextWindow := 200000
	if mc, ok := p.Models[p.DefaultModel]; ok && mc.MaxTokens > 0 {
		contextWindow = mc.MaxTokens
	}

	return NewLoop(LoopConfig{
		ID:            a.ID,
		Provider:      prov,
		Model:         p.DefaultModel,
		ContextWindow: contextWindow,
		Workspace:     a.WorkspacePath,
		Bus:           r.eventPub,
		Sessions:      r.sessions,
		Tools:         r.tools,
		HasMemory:     a.MemoryEnabled,
	}), nil
}

// buildProvider constructs the providers.Provider implementation matching
// p.Type. OpenAI-compatible backends (DeepSeek/Gemini/Kimi/Mistral/GLM/
// Qwen/Ollama/generic HTTP) all speak the OpenAI chat-completions wire
// format, so they share NewOpenAIProvider with the provider's api_base.
func buildProvider(p *store.Provider) (providers.Provider, error) {
	switch p.Type {
	case store.ProviderAnthropic:
		return providers.NewAnthropicProvider(p.APIKey), nil
	case store.ProviderOpenAI, store.ProviderDeepSeek, store.ProviderGemini,
		store.ProviderKimi, store.ProviderMistral, store.ProviderGLM,
		store.ProviderQwen, store.ProviderOllama, store.ProviderHTTP:
		return providers.NewOpenAIProvider(string(p.Type), p.APIKey, p.APIBase, p.DefaultModel), nil
	default:
		return nil, apperr.E(apperr.Internal, fmt.Sprintf("unsupported provider type %q", p.Type), nil)
	}
}

// InvalidateAgent evicts a cached Loop so the next Get rebuilds it from
// the latest Agent/Provider rows (called after an agents.update command).
func (r *Router) InvalidateAgent(agentID string) {
	r.mu.Lock()
	delete(r.loops, agentID)
	r.mu.Unlock()
}

// InvalidateAll evicts every cached Loop.
func (r *Router) InvalidateAll() {
	r.mu.Lock()
	r.loops = make(map[string]*Loop)
	r.mu.Unlock()
}

// List returns the IDs of every active agent in the router's org.
func (r *Router) List(ctx context.Context) []string {
	agents, err := r.agents.List(ctx, r.orgID)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		if a.Active {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// RunCronTurn resolves agentID and runs message as a non-streaming user
// turn against sessionKey. It satisfies both internal/cron.Runner and
// internal/webhooktrigger.Runner so time- and HTTP-driven invocations
// dispatch through the exact same path a channel message would.
func (r *Router) RunCronTurn(ctx context.Context, agentID, message, sessionKey string) error {
	loop, err := r.Get(ctx, agentID)
	if err != nil {
		return err
	}
	_, err = loop.Run(ctx, RunRequest{
		SessionKey: sessionKey,
		Message:    message,
		Channel:    "trigger",
		PeerKind:   "direct",
		RunID:      uuid.Must(uuid.NewV7()).String(),
		Stream:     false,
		TraceTags:  []string{"trigger"},
	})
	return err
}
