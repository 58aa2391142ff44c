package tools

import (
	"context"
	"fmt"
)

// SubagentSpawner abstracts whatever runs a spawned child agent turn — the
// Agent Runner (C8) in a real deployment. Kept as a narrow interface here
// so the tool registry doesn't need to import the agent package.
type SubagentSpawner interface {
	Spawn(ctx context.Context, parentSessionKey, task, label string) (subagentID string, err error)
}

// SessionsSpawnTool starts a new subagent session to work a task
// independently of the calling session (§4.6's sessions_spawn).
type SessionsSpawnTool struct {
	spawner SubagentSpawner
}

func NewSessionsSpawnTool(s SubagentSpawner) *SessionsSpawnTool {
	return &SessionsSpawnTool{spawner: s}
}

func (t *SessionsSpawnTool) Name() string        { return "sessions_spawn" }
func (t *SessionsSpawnTool) Description() string { return "Spawn a subagent session to work a task independently" }
func (t *SessionsSpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":  map[string]interface{}{"type": "string", "description": "Task description for the subagent"},
			"label": map[string]interface{}{"type": "string", "description": "Optional label for the spawned session"},
		},
		"required": []string{"task"},
	}
}

func (t *SessionsSpawnTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.spawner == nil {
		return ErrorResult("subagent spawner not available")
	}
	task, _ := args["task"].(string)
	label, _ := args["label"].(string)
	if task == "" {
		return ErrorResult("task is required")
	}

	parentKey := ToolChatIDFromCtx(ctx)
	id, err := t.spawner.Spawn(ctx, parentKey, task, label)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to spawn subagent: %v", err))
	}
	return SilentResult(fmt.Sprintf(`{"status":"spawned","subagent_id":"%s"}`, id))
}
