package bootstrap

import "strings"

// Filenames for the workspace context files seeded into every agent's
// working directory. The agent runner (C8) loads these as the first
// messages of the system prompt; operators edit them directly (or the
// agent edits them via write_file) to shape persona, tool notes, and
// onboarding state without touching code.
const (
	AgentsFile    = "AGENTS.md"
	SoulFile      = "SOUL.md"
	ToolsFile     = "TOOLS.md"
	IdentityFile  = "IDENTITY.md"
	UserFile      = "USER.md"
	HeartbeatFile = "HEARTBEAT.md"
	// BootstrapFile is only seeded into brand-new workspaces. Its presence
	// signals the agent is still in its first-run onboarding ritual; an
	// empty write to it is the agent's own signal that onboarding is done.
	BootstrapFile = "BOOTSTRAP.md"
)

// ContextFile is one workspace context file injected into the system
// prompt: its on-disk name (used for dedup/override matching by
// Loop.resolveContextFiles) and its current content.
type ContextFile struct {
	Path    string
	Content string
}

// subagentSessionPrefix and cronSessionPrefix tag synthetic session keys
// that don't represent a live chat turn, so the agent runner can trim the
// system prompt (PromptMinimal): the untrusted-channel-input note is left
// out, since there's no human on the other end sending channel content.
const (
	subagentSessionPrefix = "subagent:"
	cronSessionPrefix     = "cron:"
)

// IsSubagentSession reports whether sessionKey belongs to a spawned
// sub-agent run rather than a top-level chat session.
func IsSubagentSession(sessionKey string) bool {
	return strings.HasPrefix(sessionKey, subagentSessionPrefix)
}

// IsCronSession reports whether sessionKey was synthesized by the cron
// scheduler (spec.md's "fires the agent runner ... against a synthetic
// session") rather than originating from a live channel turn.
func IsCronSession(sessionKey string) bool {
	return strings.HasPrefix(sessionKey, cronSessionPrefix)
}
