// Package tools implements the Tool Registry & Executor (C6, spec §4.6): a
// static catalog of tool schemas dispatched to concrete backends, published
// in both OpenAI-compatible function-calling and Anthropic tool-use shapes
// from one internal source.
package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/prime-gateway/internal/providers"
)

// Tool is a single callable backend: a name, a JSON-Schema parameters
// descriptor, and an executor.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry is the static catalog of every tool this build knows about.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	skills SkillInvoker
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by its canonical name (after alias resolution).
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[resolveAlias(name)]
	return t, ok
}

// List returns every registered tool name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// streamDisablingTools are tools whose side effects shouldn't run mid-stream
// (SPEC_FULL.md §5 item 3). ToProviderDef marks them with DisablesStreaming;
// the agent loop does not read that flag, so they do not change streaming.
var streamDisablingTools = map[string]bool{
	"run_command": true,
	"write_file":  true,
	"edit_file":   true,
}

// ToProviderDef renders a tool as an OpenAI-compatible function-calling
// definition. Anthropic's tool-use shape is derived from the same fields
// by the provider implementation at wire-encode time (§4.6: "both derive
// from a single internal source").
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type:              "function",
		DisablesStreaming: streamDisablingTools[t.Name()],
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// argAliases maps camelCase argument names to their canonical snake_case
// form. The executor accepts either; this keeps one tool implementation
// from having to check both spellings itself.
var argAliases = map[string]string{
	"oldText":        "old_text",
	"newText":        "new_text",
	"workingDir":     "working_dir",
	"sessionKey":     "session_key",
	"agentId":        "agent_id",
	"agentKey":       "agent_key",
	"sessionId":      "session_id",
	"maxChars":       "max_chars",
	"extractMode":    "extract_mode",
	"recursive":      "recursive",
	"cronExpr":       "cron_expr",
	"webhookPath":    "webhook_path",
	"skillName":      "skill_name",
}

// normalizeArgs rewrites any camelCase keys in args to their canonical
// snake_case form, without overwriting a key the caller already supplied
// in canonical form.
func normalizeArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		canonical := k
		if c, ok := argAliases[k]; ok {
			canonical = c
		}
		out[canonical] = v
	}
	return out
}

// Execute dispatches name against the registry per §4.6's
// execute_tool(name, args, workspace, session_id?, agent_id?) contract.
// Unknown tools fall through to skills, when one is configured.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	args = normalizeArgs(args)

	if t, ok := r.Get(name); ok {
		return t.Execute(ctx, args)
	}

	if r.skills != nil {
		if res, handled := r.skills.Invoke(ctx, name, args); handled {
			return res
		}
	}

	return ErrorResult("unknown tool: " + strings.TrimSpace(name))
}

// ExecuteWithContext is Execute plus the per-call routing context tools key
// off of (channel/chat/peer for outbound replies, sessionKey as the sandbox
// scoping key for stateful tools like browser_*, and an optional async
// completion callback for long-running tools).
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, channel, chatID, peerKind, sessionKey string, asyncCB AsyncCallback) *Result {
	ctx = WithToolChannel(ctx, channel)
	ctx = WithToolChatID(ctx, chatID)
	ctx = WithToolPeerKind(ctx, peerKind)
	ctx = WithToolSandboxKey(ctx, sessionKey)
	if asyncCB != nil {
		ctx = WithToolAsyncCB(ctx, asyncCB)
	}
	return r.Execute(ctx, name, args)
}

// ProviderDefs renders every registered tool as a provider-facing
// definition, sorted by name for deterministic request bodies.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// SkillInvoker lets an installed skills registry handle tool names the
// static catalog doesn't recognize (§4.6: "Unknown tools first fall
// through to any installed skills registry").
type SkillInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]interface{}) (*Result, bool)
}

// SetSkillInvoker wires a fallback skills registry into r.
func (r *Registry) SetSkillInvoker(s SkillInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills = s
}
