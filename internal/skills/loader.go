// Package skills resolves the skills visible to an agent for inlining into
// its system prompt, separate from internal/tools' SkillStore (which
// dispatches skill_list/skill_install/skill_create and invokes a skill by
// name as a tool-call fallback). This package only answers "what skills
// exist and how should they be summarized for the LLM to see up front."
package skills

import (
	"fmt"
	"strings"
	"sync"
)

// Skill is one skill surfaced in the system prompt's inline summary.
type Skill struct {
	Name        string
	Description string
}

// Loader holds the current skill set for one agent. Hot-reloadable: Set
// can be called again (e.g. after skill_install) and the next turn picks
// it up, since resolveSkillsSummary() is called per-message, not cached.
type Loader struct {
	mu     sync.RWMutex
	skills []Skill
}

// NewLoader constructs a Loader with an initial skill set.
func NewLoader(initial []Skill) *Loader {
	return &Loader{skills: append([]Skill(nil), initial...)}
}

// Set replaces the loader's current skill set.
func (l *Loader) Set(current []Skill) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skills = append([]Skill(nil), current...)
}

// FilterSkills returns the subset of the loader's skills permitted by
// allowList: nil means every skill, an empty-but-non-nil slice means none,
// otherwise only the named skills (in loader order, not allowList order).
func (l *Loader) FilterSkills(allowList []string) []Skill {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if allowList == nil {
		return append([]Skill(nil), l.skills...)
	}
	if len(allowList) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		allowed[name] = true
	}
	var out []Skill
	for _, s := range l.skills {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// BuildSummary renders allowList's filtered skills as the inline
// <available_skills> block the system prompt builder embeds directly,
// for the common case where there are few enough skills to inline rather
// than push the agent toward skill_search.
func (l *Loader) BuildSummary(allowList []string) string {
	filtered := l.FilterSkills(allowList)
	if len(filtered) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<available_skills>\n")
	for _, s := range filtered {
		fmt.Fprintf(&sb, "  <skill name=%q>%s</skill>\n", s.Name, s.Description)
	}
	sb.WriteString("</available_skills>")
	return sb.String()
}
