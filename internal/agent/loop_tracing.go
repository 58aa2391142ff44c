package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/prime-gateway/internal/providers"
	"github.com/nextlevelbuilder/prime-gateway/internal/tools"
	"github.com/nextlevelbuilder/prime-gateway/internal/tracing"
)

func (l *Loop) emit(event AgentEvent) {
	if l.onEvent != nil {
		l.onEvent(event)
	}
}

// ID returns the agent's identifier.
func (l *Loop) ID() string { return l.id }

// Model returns the model identifier for this agent loop.
func (l *Loop) Model() string { return l.model }

// IsRunning returns whether the agent is currently processing.
func (l *Loop) IsRunning() bool { return l.activeRuns.Load() > 0 }

// emitLLMSpan records an LLM call span if tracing is active. When the
// collector is in verbose mode, messages are serialized as a span
// attribute; otherwise only short previews are attached.
func (l *Loop) emitLLMSpan(ctx context.Context, start time.Time, iteration int, messages []providers.Message, resp *providers.ChatResponse, callErr error) {
	if l.traceCollector == nil {
		return
	}

	verbose := l.traceCollector.Verbose()
	previewLimit := 500
	if verbose {
		previewLimit = 100000
	}

	attrs := []attribute.KeyValue{
		attribute.String("prime.provider", l.provider.Name()),
		attribute.String("prime.model", l.model),
		attribute.Int("prime.iteration", iteration),
	}

	// Verbose mode: serialize full messages as a preview attribute. Strip
	// base64 image data first so traces don't bloat on multimodal turns.
	if verbose && len(messages) > 0 {
		stripped := make([]providers.Message, len(messages))
		copy(stripped, messages)
		for i := range stripped {
			if len(stripped[i].Images) > 0 {
				placeholder := make([]providers.ImageContent, len(stripped[i].Images))
				for j, img := range stripped[i].Images {
					placeholder[j] = providers.ImageContent{MimeType: img.MimeType, Data: fmt.Sprintf("[base64 %s, %d bytes]", img.MimeType, len(img.Data))}
				}
				stripped[i].Images = placeholder
			}
		}
		if b, err := json.Marshal(stripped); err == nil {
			attrs = append(attrs, attribute.String("prime.input_preview", truncateStr(string(b), previewLimit)))
		}
	}

	name := fmt.Sprintf("%s/%s #%d", l.provider.Name(), l.model, iteration)
	_, span := l.traceCollector.StartSpanAt(ctx, name, start, attrs...)

	if callErr != nil {
		tracing.EndAt(span, time.Now().UTC(), false, callErr)
		return
	}
	if resp != nil {
		if resp.Usage != nil {
			span.SetAttributes(
				attribute.Int("prime.input_tokens", resp.Usage.PromptTokens),
				attribute.Int("prime.output_tokens", resp.Usage.CompletionTokens),
			)
			if resp.Usage.CacheCreationTokens > 0 || resp.Usage.CacheReadTokens > 0 {
				span.SetAttributes(
					attribute.Int("prime.cache_creation_tokens", resp.Usage.CacheCreationTokens),
					attribute.Int("prime.cache_read_tokens", resp.Usage.CacheReadTokens),
				)
			}
		}
		span.SetAttributes(
			attribute.String("prime.finish_reason", resp.FinishReason),
			attribute.String("prime.output_preview", truncateStr(resp.Content, previewLimit)),
		)
	}
	tracing.EndAt(span, time.Now().UTC(), true, nil)
}

// emitToolSpan records a tool call span if tracing is active. result is
// the full tool execution result, which may carry usage from an inner
// LLM call the tool itself made (e.g. read_image).
func (l *Loop) emitToolSpan(ctx context.Context, start time.Time, toolName, toolCallID, input string, result *tools.Result) {
	if l.traceCollector == nil {
		return
	}

	previewLimit := 500
	if l.traceCollector.Verbose() {
		previewLimit = 100000
	}

	attrs := []attribute.KeyValue{
		attribute.String("prime.tool_name", toolName),
		attribute.String("prime.tool_call_id", toolCallID),
		attribute.String("prime.input_preview", truncateStr(input, previewLimit)),
		attribute.String("prime.output_preview", truncateStr(result.ForLLM, previewLimit)),
	}
	if result.Usage != nil {
		attrs = append(attrs,
			attribute.String("prime.provider", result.Provider),
			attribute.String("prime.model", result.Model),
			attribute.Int("prime.input_tokens", result.Usage.PromptTokens),
			attribute.Int("prime.output_tokens", result.Usage.CompletionTokens),
		)
	}

	_, span := l.traceCollector.StartSpanAt(ctx, toolName, start, attrs...)

	var toolErr error
	if result.IsError {
		toolErr = fmt.Errorf("%s", truncateStr(result.ForLLM, 200))
	}
	tracing.EndAt(span, time.Now().UTC(), !result.IsError, toolErr)
}

func truncateStr(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= maxLen {
		return s
	}
	// Don't cut in the middle of a multi-byte rune
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}

// EstimateTokens returns a rough token estimate for a slice of messages.
// Used internally for summarization thresholds and externally for adaptive throttle.
func EstimateTokens(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.Content) / 3
	}
	return total
}
