package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// SkillStore persists installed skills — markdown/instruction bundles an
// agent can invoke by name, stored under the configured skills storage
// directory (config.SkillsConfig.StorageDir). Defined locally rather than
// in the store package: a skill is closer to on-disk content than a
// database row, and this is the only consumer.
type SkillStore interface {
	List(ctx context.Context, agentID string) ([]SkillInfo, error)
	Get(ctx context.Context, agentID, name string) (*SkillInfo, error)
	Install(ctx context.Context, agentID, name, source string) error
	Create(ctx context.Context, agentID, name, instructions string) error
}

// SkillInfo describes one installed skill.
type SkillInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Instructions string `json:"instructions,omitempty"`
}

// SkillRegistry adapts a SkillStore to the tools.SkillInvoker interface so
// unknown tool names the static Registry doesn't recognize can fall
// through to an installed skill of the same name (§4.6).
type SkillRegistry struct{ store SkillStore }

func NewSkillRegistry(s SkillStore) *SkillRegistry { return &SkillRegistry{store: s} }

func (s *SkillRegistry) Invoke(ctx context.Context, name string, args map[string]interface{}) (*Result, bool) {
	if s.store == nil {
		return nil, false
	}
	agentID := resolveAgentIDString(ctx)
	skill, err := s.store.Get(ctx, agentID, name)
	if err != nil || skill == nil {
		return nil, false
	}
	return SilentResult(skill.Instructions), true
}

// ============================================================
// skill_list / skill_install / skill_create
// ============================================================

type SkillListTool struct{ store SkillStore }

func NewSkillListTool(s SkillStore) *SkillListTool { return &SkillListTool{store: s} }

func (t *SkillListTool) Name() string                        { return "skill_list" }
func (t *SkillListTool) Description() string                 { return "List installed skills available to this agent" }
func (t *SkillListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *SkillListTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.store == nil {
		return ErrorResult("skill store not available")
	}
	agentID := resolveAgentIDString(ctx)
	skills, err := t.store.List(ctx, agentID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list skills: %v", err))
	}
	out, _ := json.Marshal(map[string]interface{}{"count": len(skills), "skills": skills})
	return SilentResult(string(out))
}

type SkillInstallTool struct{ store SkillStore }

func NewSkillInstallTool(s SkillStore) *SkillInstallTool { return &SkillInstallTool{store: s} }

func (t *SkillInstallTool) Name() string        { return "skill_install" }
func (t *SkillInstallTool) Description() string { return "Install a skill from a source location (path or URL)" }
func (t *SkillInstallTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"skill_name": map[string]interface{}{"type": "string", "description": "Name to install the skill under"},
			"source":     map[string]interface{}{"type": "string", "description": "Path or URL to fetch skill content from"},
		},
		"required": []string{"skill_name", "source"},
	}
}

func (t *SkillInstallTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.store == nil {
		return ErrorResult("skill store not available")
	}
	name, _ := args["skill_name"].(string)
	source, _ := args["source"].(string)
	if name == "" || source == "" {
		return ErrorResult("skill_name and source are required")
	}
	agentID := resolveAgentIDString(ctx)
	if err := t.store.Install(ctx, agentID, name, source); err != nil {
		return ErrorResult(fmt.Sprintf("failed to install skill: %v", err))
	}
	return SilentResult(fmt.Sprintf("installed skill %q", name))
}

type SkillCreateTool struct{ store SkillStore }

func NewSkillCreateTool(s SkillStore) *SkillCreateTool { return &SkillCreateTool{store: s} }

func (t *SkillCreateTool) Name() string        { return "skill_create" }
func (t *SkillCreateTool) Description() string { return "Create a new skill from inline instructions" }
func (t *SkillCreateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"skill_name":   map[string]interface{}{"type": "string", "description": "Name for the new skill"},
			"instructions": map[string]interface{}{"type": "string", "description": "Instructions the skill runs when invoked"},
		},
		"required": []string{"skill_name", "instructions"},
	}
}

func (t *SkillCreateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.store == nil {
		return ErrorResult("skill store not available")
	}
	name, _ := args["skill_name"].(string)
	instructions, _ := args["instructions"].(string)
	if name == "" || instructions == "" {
		return ErrorResult("skill_name and instructions are required")
	}
	agentID := resolveAgentIDString(ctx)
	if err := t.store.Create(ctx, agentID, name, instructions); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create skill: %v", err))
	}
	return SilentResult(fmt.Sprintf("created skill %q", name))
}
