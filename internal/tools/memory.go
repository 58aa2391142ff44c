package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

// memoryScope pulls the (agent_id, user_id) pair the memory tools are
// scoped to out of the tool-call context, falling back to the args map for
// standalone (non-gateway) use.
func memoryScope(ctx context.Context, args map[string]interface{}) (agentID, userID string) {
	agentID = resolveAgentIDString(ctx)
	if v, ok := args["user_id"].(string); ok && v != "" {
		userID = v
	} else {
		userID = ToolChatIDFromCtx(ctx)
	}
	return
}

// MemorySearchTool searches stored memory items by substring match over key
// and content, newest first.
type MemorySearchTool struct{ memory store.MemoryStore }

func NewMemorySearchTool(m store.MemoryStore) *MemorySearchTool { return &MemorySearchTool{memory: m} }

func (t *MemorySearchTool) Name() string        { return "memory_search" }
func (t *MemorySearchTool) Description() string { return "Search previously stored memory notes" }
func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Search text"},
			"limit": map[string]interface{}{"type": "number", "description": "Max results (default 10)"},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.memory == nil {
		return ErrorResult("memory store not available")
	}
	query, _ := args["query"].(string)
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	agentID, userID := memoryScope(ctx, args)

	items, err := t.memory.Search(ctx, agentID, userID, query, limit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory search failed: %v", err))
	}
	if len(items) == 0 {
		return SilentResult("(no matching memory items)")
	}
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "%s: %s\n", it.Key, it.Content)
	}
	return SilentResult(sb.String())
}

// MemoryGetTool fetches one memory item by its exact key.
type MemoryGetTool struct{ memory store.MemoryStore }

func NewMemoryGetTool(m store.MemoryStore) *MemoryGetTool { return &MemoryGetTool{memory: m} }

func (t *MemoryGetTool) Name() string        { return "memory_get" }
func (t *MemoryGetTool) Description() string { return "Fetch a memory note by its exact key" }
func (t *MemoryGetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{"type": "string", "description": "Memory item key"},
		},
		"required": []string{"key"},
	}
}

func (t *MemoryGetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.memory == nil {
		return ErrorResult("memory store not available")
	}
	key, _ := args["key"].(string)
	if key == "" {
		return ErrorResult("key is required")
	}
	agentID, userID := memoryScope(ctx, args)

	item, err := t.memory.Get(ctx, agentID, userID, key)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory get failed: %v", err))
	}
	if item == nil {
		return SilentResult(fmt.Sprintf("(no memory item for key %q)", key))
	}
	return SilentResult(item.Content)
}

// MemoryStoreTool creates or overwrites a memory note.
type MemoryStoreTool struct {
	memory store.MemoryStore
	now    func() time.Time
}

func NewMemoryStoreTool(m store.MemoryStore) *MemoryStoreTool {
	return &MemoryStoreTool{memory: m, now: time.Now}
}

func (t *MemoryStoreTool) Name() string        { return "memory_store" }
func (t *MemoryStoreTool) Description() string { return "Persist a memory note under a key for future sessions" }
func (t *MemoryStoreTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key":     map[string]interface{}{"type": "string", "description": "Memory item key"},
			"content": map[string]interface{}{"type": "string", "description": "Note content"},
		},
		"required": []string{"key", "content"},
	}
}

func (t *MemoryStoreTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.memory == nil {
		return ErrorResult("memory store not available")
	}
	key, _ := args["key"].(string)
	content, _ := args["content"].(string)
	if key == "" || content == "" {
		return ErrorResult("key and content are required")
	}
	agentID, userID := memoryScope(ctx, args)

	now := t.now()
	if err := t.memory.Store(ctx, &store.MemoryItem{
		AgentID: agentID, UserID: userID, Key: key, Content: content,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return ErrorResult(fmt.Sprintf("memory store failed: %v", err))
	}
	return SilentResult(fmt.Sprintf("stored memory item %q", key))
}

// MemoryForgetTool deletes a memory note.
type MemoryForgetTool struct{ memory store.MemoryStore }

func NewMemoryForgetTool(m store.MemoryStore) *MemoryForgetTool { return &MemoryForgetTool{memory: m} }

func (t *MemoryForgetTool) Name() string        { return "memory_forget" }
func (t *MemoryForgetTool) Description() string { return "Delete a previously stored memory note" }
func (t *MemoryForgetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{"type": "string", "description": "Memory item key"},
		},
		"required": []string{"key"},
	}
}

func (t *MemoryForgetTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.memory == nil {
		return ErrorResult("memory store not available")
	}
	key, _ := args["key"].(string)
	if key == "" {
		return ErrorResult("key is required")
	}
	agentID, userID := memoryScope(ctx, args)

	if err := t.memory.Forget(ctx, agentID, userID, key); err != nil {
		return ErrorResult(fmt.Sprintf("memory forget failed: %v", err))
	}
	return SilentResult(fmt.Sprintf("forgot memory item %q", key))
}
