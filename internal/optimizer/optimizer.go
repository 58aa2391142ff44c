// Package optimizer implements the Token Optimizer (C5, spec §4.5):
// model routing by prompt complexity, output budget sizing, history
// trimming to a token budget, and cost estimation. Ported directly from
// original_source/backend/app/services/token_optimizer.py, the Python
// service the spec was distilled from.
package optimizer

import (
	"math"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

const (
	DefaultInputBudgetTokens = 6000
	DefaultOutputMinTokens   = 192
	DefaultOutputMaxTokens   = 1024
	DefaultMessageTokenCap   = 1200
	DefaultTokenBuffer       = 96
	MinTruncationTokens      = 48

	defaultOutputRatio = 1.8
)

var (
	complexPromptRe   = regexp.MustCompile(`(?i)` + "```" + `|\b(architect|migration|benchmark|optimiz|refactor|debug|deploy|pipeline|sql|python|typescript)\b`)
	complexPromptRuRe = regexp.MustCompile(`(?i)(архитект|миграц|оптимиз|рефактор|дебаг|деплой|пайплайн|тест|документац|поэтапн|подробно|код)`)
	shortAnswerHintRe = regexp.MustCompile(`(?i)\b(short|brief|tldr|one[- ]line|кратко|коротко|в двух словах)\b`)
	longAnswerHintRe  = regexp.MustCompile(`(?i)\b(detailed|deep|step[- ]by[- ]step|long|подробно|развернуто|пошагово)\b`)
)

// HistoryMessage is the minimal shape the optimizer trims; role is "user"
// or "assistant" (other roles are dropped during trimming).
type HistoryMessage struct {
	Role    string
	Content string
}

// Plan is the optimizer's output, attached to Message.meta.optimizer
// (spec §4.5, SPEC_FULL.md §4).
type Plan struct {
	Model                   string
	MaxOutputTokens         int
	History                 []HistoryMessage
	EstimatedInputTokens    int
	EstimatedOutputTokens   int
	EstimatedCostUSD        float64
	OriginalHistoryMessages int
	KeptHistoryMessages     int
	DroppedHistoryMessages  int
	TruncatedMessages       int
	InputBudgetTokens       int
	Notes                   []string
}

// Request carries the inputs needed to build a Plan.
type Request struct {
	Provider    *store.Provider
	System      string
	History     []HistoryMessage
	UserMessage string
}

// CostEstimator computes USD cost from token counts and a provider's model
// cost config; injected so optimizer has no direct dependency on billing.
type CostEstimator func(provider *store.Provider, model string, inputTokens, outputTokens int) float64

// DefaultCostEstimator sums cost_per_1m_input/output for the selected
// model, falling back to the provider's default model's rates if the
// selected model has no entry.
func DefaultCostEstimator(provider *store.Provider, model string, inputTokens, outputTokens int) float64 {
	mc, ok := provider.Models[model]
	if !ok {
		mc = provider.Models[provider.DefaultModel]
	}
	return float64(inputTokens)/1_000_000*mc.CostPer1MInput + float64(outputTokens)/1_000_000*mc.CostPer1MOutput
}

// Optimizer produces optimization plans.
type Optimizer struct {
	cost CostEstimator
}

// New constructs an Optimizer. cost may be nil to use DefaultCostEstimator.
func New(cost CostEstimator) *Optimizer {
	if cost == nil {
		cost = DefaultCostEstimator
	}
	return &Optimizer{cost: cost}
}

// EstimateTextTokens estimates tokens as ceil(len(text)/4), never less
// than 1 for non-empty text.
func EstimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(1, (len(text)+3)/4)
}

// Optimize runs the full pipeline: model selection, output budget,
// history trim, cost estimate.
func (o *Optimizer) Optimize(req Request) Plan {
	provider := req.Provider
	cfg := provider.TokenOptimization

	defaultModel := provider.DefaultModel
	if defaultModel == "" {
		for name := range provider.Models {
			defaultModel = name
			break
		}
	}

	model := selectModel(defaultModel, provider.Models, cfg, req.UserMessage)
	modelCfg := provider.Models[model]

	modelMaxOutput := modelCfg.MaxTokens
	if modelMaxOutput == 0 {
		modelMaxOutput = DefaultOutputMaxTokens
	}

	maxOutputTokens := chooseOutputBudget(req.UserMessage, modelMaxOutput, cfg)

	inputBudgetTokens := cfg.InputBudgetTokens
	if inputBudgetTokens == 0 {
		inputBudgetTokens = modelCfg.ContextWindow
	}
	if inputBudgetTokens == 0 {
		inputBudgetTokens = max(DefaultInputBudgetTokens, modelMaxOutput*3)
	}

	trimmed, dropped, truncated := trimHistoryToBudget(req.History, req.System, req.UserMessage, inputBudgetTokens, cfg)

	estimatedInputTokens := estimateInputTokens(req.System, trimmed, req.UserMessage)
	estimatedOutputTokens := maxOutputTokens

	var notes []string
	if model != defaultModel {
		notes = append(notes, "model_routed:"+defaultModel+"->"+model)
	}
	if dropped > 0 {
		notes = append(notes, "history_dropped")
	}
	if truncated > 0 {
		notes = append(notes, "history_truncated")
	}

	estimatedCost := o.cost(provider, model, estimatedInputTokens, estimatedOutputTokens)

	return Plan{
		Model:                   model,
		MaxOutputTokens:         maxOutputTokens,
		History:                 trimmed,
		EstimatedInputTokens:    estimatedInputTokens,
		EstimatedOutputTokens:   estimatedOutputTokens,
		EstimatedCostUSD:        estimatedCost,
		OriginalHistoryMessages: len(req.History),
		KeptHistoryMessages:     len(trimmed),
		DroppedHistoryMessages:  dropped,
		TruncatedMessages:       truncated,
		InputBudgetTokens:       inputBudgetTokens,
		Notes:                   notes,
	}
}

func selectModel(defaultModel string, models map[string]store.ModelConfig, cfg store.TokenOptimizationConfig, userMessage string) string {
	if len(models) == 0 || !cfg.AutoRouteEnabled {
		return defaultModel
	}

	simple := isSimplePrompt(userMessage)
	complexity := "complex"
	if simple {
		complexity = "simple"
	}
	if mapped, ok := cfg.RouteByComplexity[complexity]; ok {
		if _, known := models[mapped]; known {
			return mapped
		}
	}

	if simple {
		if cheapest := findCheapestModel(models); cheapest != "" {
			return cheapest
		}
	}
	return defaultModel
}

func findCheapestModel(models map[string]store.ModelConfig) string {
	best := ""
	bestScore := math.Inf(1)
	for name, mc := range models {
		score := mc.CostPer1MInput + mc.CostPer1MOutput
		if score < bestScore {
			bestScore = score
			best = name
		}
	}
	return best
}

func chooseOutputBudget(userMessage string, modelMaxOutput int, cfg store.TokenOptimizationConfig) int {
	if cfg.MaxOutputTokens != 0 {
		return clamp(cfg.MaxOutputTokens, 64, modelMaxOutput)
	}

	userTokens := EstimateTextTokens(userMessage)
	ratio := cfg.OutputRatio
	if ratio == 0 {
		ratio = defaultOutputRatio
	}
	dynamic := int(float64(userTokens) * ratio)
	dynamic = clamp(dynamic, DefaultOutputMinTokens, min(DefaultOutputMaxTokens, modelMaxOutput))

	if shortAnswerHintRe.MatchString(userMessage) {
		dynamic = min(dynamic, 256)
	}
	if longAnswerHintRe.MatchString(userMessage) {
		dynamic = max(dynamic, 1024)
	}
	return clamp(dynamic, 64, modelMaxOutput)
}

func trimHistoryToBudget(history []HistoryMessage, system, userMessage string, inputBudgetTokens int, cfg store.TokenOptimizationConfig) ([]HistoryMessage, int, int) {
	maxMessageTokens := cfg.MaxMessageTokens
	if maxMessageTokens == 0 {
		maxMessageTokens = DefaultMessageTokenCap
	}

	baseInputTokens := EstimateTextTokens(system) + EstimateTextTokens(userMessage) +
		roleOverhead("system") + roleOverhead("user") + DefaultTokenBuffer
	remaining := max(inputBudgetTokens-baseInputTokens, 0)
	if remaining <= 0 {
		return nil, len(history), 0
	}

	var pickedReversed []HistoryMessage
	dropped := 0
	truncated := 0

	for i := len(history) - 1; i >= 0; i-- {
		raw := history[i]
		role := raw.Role
		if role == "" {
			role = "user"
		}
		if role != "user" && role != "assistant" {
			continue
		}
		content := truncateTextToTokens(raw.Content, maxMessageTokens)
		messageTokens := EstimateTextTokens(content) + roleOverhead(role)

		if messageTokens <= remaining {
			pickedReversed = append(pickedReversed, HistoryMessage{Role: role, Content: content})
			remaining -= messageTokens
			continue
		}

		allowedContentTokens := max(remaining-roleOverhead(role), 0)
		if allowedContentTokens >= MinTruncationTokens {
			clipped := truncateTextToTokens(content, allowedContentTokens)
			if clipped != "" {
				pickedReversed = append(pickedReversed, HistoryMessage{Role: role, Content: clipped})
				truncated++
				remaining = 0
				break
			}
		}
		dropped++
	}

	kept := make([]HistoryMessage, len(pickedReversed))
	for i, m := range pickedReversed {
		kept[len(pickedReversed)-1-i] = m
	}
	if extra := len(history) - len(kept) - dropped; extra > 0 {
		dropped += extra
	}
	return kept, dropped, truncated
}

func estimateInputTokens(system string, history []HistoryMessage, userMessage string) int {
	total := EstimateTextTokens(system) + EstimateTextTokens(userMessage)
	total += roleOverhead("system") + roleOverhead("user")
	for _, m := range history {
		total += EstimateTextTokens(m.Content)
		total += roleOverhead(m.Role)
	}
	return total
}

func truncateTextToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if EstimateTextTokens(text) <= maxTokens {
		return text
	}
	maxChars := maxTokens * 4
	if maxChars <= 3 {
		return ""
	}
	if len(text) <= maxChars {
		return text
	}
	return text[len(text)-maxChars:]
}

func isSimplePrompt(text string) bool {
	if len(text) > 600 {
		return false
	}
	if strings.Count(text, "\n") > 5 {
		return false
	}
	if complexPromptRe.MatchString(text) || complexPromptRuRe.MatchString(text) {
		return false
	}
	return true
}

func roleOverhead(role string) int {
	switch role {
	case "system":
		return 10
	default:
		return 8
	}
}

func clamp(v, low, high int) int {
	return max(low, min(v, high))
}
