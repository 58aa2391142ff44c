package agent

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/prime-gateway/internal/config"
	"github.com/nextlevelbuilder/prime-gateway/internal/providers"
)

// MemoryFlushSettings is the resolved (defaults-applied) view of
// config.MemoryFlushConfig used by shouldRunMemoryFlush/runMemoryFlush.
type MemoryFlushSettings struct {
	Enabled             bool
	SoftThresholdTokens int
	Prompt              string
	SystemPrompt        string
}

const defaultMemoryFlushPrompt = "This conversation is about to be compacted. If anything said since the " +
	"last compaction is worth remembering long-term, save it to persistent memory now. Otherwise reply NO_REPLY."

// ResolveMemoryFlushSettings applies CompactionConfig's documented defaults,
// overridden field-by-field by cfg.MemoryFlush when present.
func ResolveMemoryFlushSettings(cfg *config.CompactionConfig) MemoryFlushSettings {
	settings := MemoryFlushSettings{
		Enabled:             true,
		SoftThresholdTokens: 4000,
		Prompt:              defaultMemoryFlushPrompt,
	}
	if cfg == nil || cfg.MemoryFlush == nil {
		return settings
	}
	mf := cfg.MemoryFlush
	if mf.Enabled != nil {
		settings.Enabled = *mf.Enabled
	}
	if mf.SoftThresholdTokens > 0 {
		settings.SoftThresholdTokens = mf.SoftThresholdTokens
	}
	if mf.Prompt != "" {
		settings.Prompt = mf.Prompt
	}
	if mf.SystemPrompt != "" {
		settings.SystemPrompt = mf.SystemPrompt
	}
	return settings
}

// shouldRunMemoryFlush reports whether a flush turn should run before
// compaction. tokenEstimate is accepted so a future revision can gate the
// flush on settings.SoftThresholdTokens; today any imminent compaction
// qualifies. The per-session lock maybeSummarize holds while calling this
// prevents duplicate flushes within one compaction cycle.
func (l *Loop) shouldRunMemoryFlush(sessionKey string, tokenEstimate int, settings MemoryFlushSettings) bool {
	return settings.Enabled && l.hasMemory
}

// runMemoryFlush gives the model one last turn, with only the memory tool
// worth calling, to persist anything from the conversation about to be
// compacted away. Tool calls are executed; the model's text reply (if any)
// is discarded — this turn is never shown to the user.
func (l *Loop) runMemoryFlush(ctx context.Context, sessionKey string, settings MemoryFlushSettings) {
	history := l.sessions.GetHistory(sessionKey)

	systemPrompt := settings.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "Only call a memory tool if there is something concrete worth keeping; otherwise reply NO_REPLY."
	}

	msgs := make([]providers.Message, 0, len(history)+2)
	msgs = append(msgs, providers.Message{Role: "system", Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, providers.Message{Role: "user", Content: settings.Prompt})

	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Messages: msgs,
		Model:    l.model,
		Tools:    l.tools.ProviderDefs(),
		Options: map[string]interface{}{
			"max_tokens":  1024,
			"temperature": 0.3,
		},
	})
	if err != nil {
		slog.Warn("memory flush: chat call failed", "session", sessionKey, "error", err)
		return
	}

	for _, tc := range resp.ToolCalls {
		res := l.tools.ExecuteWithContext(ctx, tc.Name, tc.Arguments, "", "", "", sessionKey, nil)
		if res != nil && res.IsError {
			slog.Warn("memory flush: tool call failed", "session", sessionKey, "tool", tc.Name, "error", res.Err)
		}
	}
}
