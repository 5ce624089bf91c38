package runner

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cexll/clawbridge/pkg/telemetry"
)

const defaultMaxTokens = 4096

// AnthropicRunner calls the Anthropic Messages API directly instead of
// delegating to a local agent CLI.
type AnthropicRunner struct {
	client    *anthropicsdk.Client
	maxTokens int
}

// NewAnthropicRunner builds a runner backed by the official Anthropic SDK.
func NewAnthropicRunner(apiKey string, maxTokens int) *AnthropicRunner {
	return NewAnthropicRunnerWithBaseURL(apiKey, "", maxTokens)
}

// NewAnthropicRunnerWithBaseURL supports pointing the SDK at a proxy or
// test server.
func NewAnthropicRunnerWithBaseURL(apiKey, baseURL string, maxTokens int) *AnthropicRunner {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropicsdk.NewClient(opts...)
	return &AnthropicRunner{client: &client, maxTokens: maxTokens}
}

// Invoke sends the prompt as a single user message and joins the text
// blocks of the reply.
func (r *AnthropicRunner) Invoke(ctx context.Context, req Request) (_ Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "runner.anthropic.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "anthropic"),
			attribute.String("llm.model", req.Model),
		)...),
	)
	defer telemetry.EndSpan(span, err)

	maxTokens := r.maxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}

	message, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic sdk call: %w", err)
	}
	return Result{Text: joinTextBlocks(*message), NumTurns: 1}, nil
}

func joinTextBlocks(msg anthropicsdk.Message) string {
	var parts []string
	for _, block := range msg.Content {
		switch content := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
