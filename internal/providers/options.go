package providers

// Option keys for ChatRequest.Options — a generic passthrough bag so
// per-provider knobs (thinking budgets, reasoning effort) don't need a
// dedicated ChatRequest field for every provider's quirks.
const (
	OptMaxTokens       = "max_tokens"
	OptTemperature     = "temperature"
	OptThinkingLevel   = "thinking_level"   // generic: "off" | "low" | "medium" | "high"
	OptReasoningEffort = "reasoning_effort" // OpenAI o-series wire key
	OptEnableThinking  = "enable_thinking"  // DashScope wire key
	OptThinkingBudget  = "thinking_budget"  // DashScope wire key
)
