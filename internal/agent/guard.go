package agent

import "regexp"

// InputGuard scans inbound user messages for common prompt-injection
// phrasing (OWASP LLM01): attempts to override the system prompt,
// impersonate the operator, or talk the model into a jailbreak persona.
// This is a heuristic net, not a guarantee — it only ever informs
// logging/warn/block per the agent's configured injectionAction.
type InputGuard struct {
	patterns []namedPattern
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

// NewInputGuard builds the default pattern set.
func NewInputGuard() *InputGuard {
	raw := []struct{ name, pattern string }{
		{"ignore_instructions", `(?i)ignore (all|any|previous|prior|the above)\s+(instructions|prompts?|rules)`},
		{"disregard_instructions", `(?i)disregard (all|any|previous|prior)\s+(instructions|prompts?|rules)`},
		{"new_instructions", `(?i)\bnew instructions?\s*:`},
		{"system_override", `(?i)(you are now|act as|pretend to be)\b.{0,40}\bwith no (restrictions|rules|limits|filters)`},
		{"reveal_system_prompt", `(?i)(reveal|print|show|repeat)\s+(your|the)\s+(system prompt|instructions)`},
		{"developer_mode", `(?i)\bdeveloper mode\b`},
		{"dan_jailbreak", `(?i)\bDAN\b.{0,20}(mode|prompt)`},
	}
	g := &InputGuard{patterns: make([]namedPattern, 0, len(raw))}
	for _, p := range raw {
		g.patterns = append(g.patterns, namedPattern{name: p.name, re: regexp.MustCompile(p.pattern)})
	}
	return g
}

// Scan returns the name of every pattern that matched message.
func (g *InputGuard) Scan(message string) []string {
	if g == nil {
		return nil
	}
	var matches []string
	for _, p := range g.patterns {
		if p.re.MatchString(message) {
			matches = append(matches, p.name)
		}
	}
	return matches
}
