package agent

import (
	"github.com/nextlevelbuilder/prime-gateway/internal/config"
	"github.com/nextlevelbuilder/prime-gateway/internal/providers"
)

// pruneContextMessages trims or clears old tool-result content once the
// in-memory context approaches contextWindow, so a handful of huge tool
// outputs early in a long session don't crowd out everything since.
// Mode "off" (cfg == nil or cfg.Mode != "cache-ttl") is a no-op. The most
// recent cfg.KeepLastAssistants assistant turns (and everything after
// them) are never touched.
func pruneContextMessages(msgs []providers.Message, contextWindow int, cfg *config.ContextPruningConfig) []providers.Message {
	if cfg == nil || cfg.Mode != "cache-ttl" || len(msgs) == 0 || contextWindow <= 0 {
		return msgs
	}

	softRatio := cfg.SoftTrimRatio
	if softRatio <= 0 {
		softRatio = 0.3
	}
	hardRatio := cfg.HardClearRatio
	if hardRatio <= 0 {
		hardRatio = 0.5
	}
	minPrunable := cfg.MinPrunableToolChars
	if minPrunable <= 0 {
		minPrunable = 50000
	}
	keepLast := cfg.KeepLastAssistants
	if keepLast <= 0 {
		keepLast = 3
	}

	tokenEstimate := EstimateTokens(msgs)
	if float64(tokenEstimate) < softRatio*float64(contextWindow) {
		return msgs
	}

	protectFrom := protectedFromIndex(msgs, keepLast)

	prunable := 0
	for i := 0; i < protectFrom; i++ {
		if msgs[i].Role == "tool" {
			prunable += len(msgs[i].Content)
		}
	}
	if prunable < minPrunable {
		return msgs
	}

	hardClear := float64(tokenEstimate) >= hardRatio*float64(contextWindow)
	if hardClear && cfg.HardClear != nil && cfg.HardClear.Enabled != nil && !*cfg.HardClear.Enabled {
		hardClear = false
	}

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	for i := 0; i < protectFrom; i++ {
		if out[i].Role != "tool" {
			continue
		}
		if hardClear {
			out[i].Content = hardClearPlaceholder(cfg)
			continue
		}
		out[i].Content = softTrim(out[i].Content, cfg)
	}
	return out
}

// protectedFromIndex returns the index of the earliest message that must
// be preserved untouched: everything from the keepLast-th-from-end
// assistant message onward.
func protectedFromIndex(msgs []providers.Message, keepLast int) int {
	protectFrom := len(msgs)
	assistantsSeen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "assistant" {
			continue
		}
		assistantsSeen++
		protectFrom = i
		if assistantsSeen >= keepLast {
			break
		}
	}
	return protectFrom
}

func hardClearPlaceholder(cfg *config.ContextPruningConfig) string {
	if cfg.HardClear != nil && cfg.HardClear.Placeholder != "" {
		return cfg.HardClear.Placeholder
	}
	return "[Old tool result content cleared]"
}

func softTrim(content string, cfg *config.ContextPruningConfig) string {
	maxChars, headChars, tailChars := 4000, 1500, 1500
	if cfg.SoftTrim != nil {
		if cfg.SoftTrim.MaxChars > 0 {
			maxChars = cfg.SoftTrim.MaxChars
		}
		if cfg.SoftTrim.HeadChars > 0 {
			headChars = cfg.SoftTrim.HeadChars
		}
		if cfg.SoftTrim.TailChars > 0 {
			tailChars = cfg.SoftTrim.TailChars
		}
	}
	if len(content) <= maxChars {
		return content
	}
	head := content[:min(headChars, len(content))]
	tail := ""
	if tailChars < len(content) {
		tail = content[len(content)-tailChars:]
	}
	return head + "\n...[trimmed]...\n" + tail
}

// EstimateTokensWithCalibration estimates history's token count. When a
// prior turn's real prompt token count is known (lastPromptTokens over
// lastMsgCount messages), it scales that per-message average across the
// current history instead of the cruder chars/3 heuristic — more
// accurate for non-English content where that ratio is off.
func EstimateTokensWithCalibration(history []providers.Message, lastPromptTokens, lastMsgCount int) int {
	if lastPromptTokens > 0 && lastMsgCount > 0 {
		perMessage := float64(lastPromptTokens) / float64(lastMsgCount)
		return int(perMessage * float64(len(history)))
	}
	return EstimateTokens(history)
}
