package optimizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/prime-gateway/internal/store"
)

func testProvider() *store.Provider {
	return &store.Provider{
		DefaultModel: "gpt-4o",
		Models: map[string]store.ModelConfig{
			"gpt-4o":      {MaxTokens: 1024, ContextWindow: 8000, CostPer1MInput: 5, CostPer1MOutput: 15},
			"gpt-4o-mini": {MaxTokens: 1024, ContextWindow: 8000, CostPer1MInput: 0.15, CostPer1MOutput: 0.6},
		},
	}
}

func TestOptimize_Bound_NeverExceedsInputBudget(t *testing.T) {
	o := New(nil)
	provider := testProvider()
	provider.TokenOptimization.InputBudgetTokens = 200

	var history []HistoryMessage
	for i := 0; i < 50; i++ {
		history = append(history, HistoryMessage{Role: "user", Content: strings.Repeat("x", 200)})
	}

	plan := o.Optimize(Request{Provider: provider, System: "be helpful", History: history, UserMessage: "hi"})
	assert.LessOrEqual(t, plan.EstimatedInputTokens, plan.InputBudgetTokens)
}

func TestOptimize_AutoRouting_SimplePromptPicksCheapest(t *testing.T) {
	o := New(nil)
	provider := testProvider()
	provider.TokenOptimization.AutoRouteEnabled = true

	plan := o.Optimize(Request{Provider: provider, UserMessage: "hi there"})
	assert.Equal(t, "gpt-4o-mini", plan.Model)
}

func TestOptimize_AutoRouting_ComplexPromptKeepsDefault(t *testing.T) {
	o := New(nil)
	provider := testProvider()
	provider.TokenOptimization.AutoRouteEnabled = true

	plan := o.Optimize(Request{Provider: provider, UserMessage: "please refactor this architect migration plan"})
	assert.Equal(t, "gpt-4o", plan.Model)
}

func TestOptimize_AutoRouting_RespectsExplicitRoute(t *testing.T) {
	o := New(nil)
	provider := testProvider()
	provider.TokenOptimization.AutoRouteEnabled = true
	provider.TokenOptimization.RouteByComplexity = map[string]string{"simple": "gpt-4o"}

	plan := o.Optimize(Request{Provider: provider, UserMessage: "hi"})
	assert.Equal(t, "gpt-4o", plan.Model)
}

func TestOptimize_OutputBudget_ShortHintCaps(t *testing.T) {
	o := New(nil)
	provider := testProvider()

	plan := o.Optimize(Request{Provider: provider, UserMessage: strings.Repeat("word ", 100) + "give me a short answer"})
	assert.LessOrEqual(t, plan.MaxOutputTokens, 256)
}

func TestOptimize_OutputBudget_LongHintFloors(t *testing.T) {
	o := New(nil)
	provider := testProvider()

	plan := o.Optimize(Request{Provider: provider, UserMessage: "give me a detailed, step-by-step answer"})
	assert.GreaterOrEqual(t, plan.MaxOutputTokens, 1024)
}

func TestOptimize_History_TrimKeepsRecentMessages(t *testing.T) {
	o := New(nil)
	provider := testProvider()
	provider.TokenOptimization.InputBudgetTokens = 300

	history := []HistoryMessage{
		{Role: "user", Content: "oldest message"},
		{Role: "assistant", Content: "oldest reply"},
		{Role: "user", Content: "newest message"},
	}
	plan := o.Optimize(Request{Provider: provider, History: history, UserMessage: "follow up"})
	require.NotEmpty(t, plan.History)
	assert.Equal(t, "newest message", plan.History[len(plan.History)-1].Content)
}

func TestEstimateTextTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTextTokens(""))
	assert.Equal(t, 1, EstimateTextTokens("ab"))
	assert.Equal(t, 1, EstimateTextTokens("abcd"))
	assert.Equal(t, 2, EstimateTextTokens("abcde"))
}
