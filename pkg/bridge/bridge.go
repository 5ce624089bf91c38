// Package bridge drives a chat-completions request through normalization,
// context extraction, dispatch classification, and prompt assembly, makes
// the single agent invocation, and translates the free-text reply back
// into the structured response.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cexll/clawbridge/pkg/conversation"
	"github.com/cexll/clawbridge/pkg/dispatch"
	"github.com/cexll/clawbridge/pkg/prompt"
	"github.com/cexll/clawbridge/pkg/protocol"
	"github.com/cexll/clawbridge/pkg/runner"
	"github.com/cexll/clawbridge/pkg/skills"
	"github.com/cexll/clawbridge/pkg/telemetry"
	"github.com/cexll/clawbridge/pkg/toolcall"
)

// StreamWriter receives the ordered chunk sequence of one streaming
// request. Implementations are expected to flush each chunk as it
// arrives; the terminal [DONE] frame is the caller's job.
type StreamWriter interface {
	WriteChunk(protocol.ChatCompletionChunk) error
}

// Options wires a Bridge. Runner is required, everything else has
// working defaults.
type Options struct {
	Runner runner.Runner
	Skills *skills.Store
	Models Models
	Logger *slog.Logger
}

// Bridge is safe for concurrent use: per-request state stays on the
// stack and the skill store guards its own cache.
type Bridge struct {
	runner  runner.Runner
	skills  *skills.Store
	builder *prompt.Builder
	parser  *toolcall.Parser
	encoder *protocol.Encoder
	models  Models
	log     *slog.Logger
}

// New builds a Bridge around the given runner.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Skills
	if store == nil {
		store = skills.NewStore(logger)
	}
	return &Bridge{
		runner:  opts.Runner,
		skills:  store,
		builder: prompt.NewBuilder(),
		parser:  toolcall.NewParser(logger),
		encoder: protocol.NewEncoder(),
		models:  opts.Models.normalized(),
		log:     logger.With("component", "bridge"),
	}
}

// Models exposes the resolved alias table, e.g. for a model listing
// endpoint.
func (b *Bridge) Models() Models { return b.models }

// Complete services one non-streaming request. Agent failures surface
// as a well-formed completion carrying the error text, never as a
// transport error.
func (b *Bridge) Complete(ctx context.Context, req *protocol.ChatCompletionRequest) (_ *protocol.ChatCompletion, err error) {
	ctx, span := telemetry.StartSpan(ctx, "bridge.complete")
	defer telemetry.EndSpan(span, err)

	if err := req.Validate(); err != nil {
		return nil, err
	}
	out := b.run(ctx, req)
	completion := b.encoder.Completion(out.model, out.content, out.calls, out.usage)
	b.record(ctx, "chat.completion", completion.ID, out)
	return completion, nil
}

// CompleteStream services one streaming request. The agent still runs
// to completion first; the reply is then replayed as the chunk sequence.
func (b *Bridge) CompleteStream(ctx context.Context, req *protocol.ChatCompletionRequest, w StreamWriter) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "bridge.complete_stream")
	defer telemetry.EndSpan(span, err)

	if err := req.Validate(); err != nil {
		return err
	}
	out := b.run(ctx, req)
	chunks := b.encoder.Chunks(out.model, out.content, out.calls)
	b.record(ctx, "chat.completion.chunk", chunks[0].ID, out)
	for _, chunk := range chunks {
		if err := w.WriteChunk(chunk); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	return nil
}

// outcome carries the pipeline products shared by both response shapes.
type outcome struct {
	model     string
	question  string
	content   string
	calls     []protocol.ToolCall
	usage     protocol.Usage
	duration  time.Duration
	invokeErr error
}

// run executes the request pipeline end to end. Heuristics degrade but
// never fail the request: a missing skill file or an unknown alias each
// log and fall through, and an agent error becomes the reply text.
func (b *Bridge) run(ctx context.Context, req *protocol.ChatCompletionRequest) outcome {
	start := time.Now()

	msgs := conversation.Normalize(req.Messages)
	extracted := conversation.Extract(req.Messages)
	question := latestQuestion(msgs)
	decision := dispatch.Classify(question, extracted.Skills)

	var skillBody string
	if decision.Mode == dispatch.ModeSkill {
		body, err := b.skills.Load(decision.Skill.Location)
		if err != nil {
			b.log.Warn("skill instructions unavailable",
				"skill", decision.Skill.Name, "location", decision.Skill.Location, "error", err)
		} else {
			skillBody = body
		}
	}

	built := b.builder.Build(prompt.Input{
		Messages:  msgs,
		Decision:  decision,
		Persona:   extracted.Persona,
		SkillBody: skillBody,
		ToolMenu:  toolcall.FormatMenu(req.Tools),
		Executor:  true,
	})

	model, known := b.models.Resolve(req.Model)
	if !known {
		b.log.Warn("unknown model alias, using default", "requested", req.Model, "model", model)
	}
	b.log.Debug("dispatching request",
		"mode", decision.Mode, "model", model, "skill", decision.Skill.Name, "workspace", extracted.Workspace)

	res, err := b.runner.Invoke(ctx, runner.Request{
		Prompt:       built.Prompt,
		SystemPrompt: built.System,
		Model:        model,
		Workdir:      extracted.Workspace,
	})

	out := outcome{model: model, question: question, invokeErr: err}
	if err != nil {
		b.log.Error("agent invocation failed", "model", model, "error", err)
		out.content = fmt.Sprintf("Agent error: %v", err)
	} else {
		reply := b.parser.Parse(res.Text)
		out.content = reply.Content
		out.calls = reply.Calls
	}
	out.usage = estimateUsage(built.Prompt, built.System, out.content)
	out.duration = time.Since(start)
	return out
}

func (b *Bridge) record(ctx context.Context, kind, id string, out outcome) {
	mgr := telemetry.Default()
	if mgr == nil {
		return
	}
	mgr.RecordRequest(ctx, telemetry.RequestData{
		Kind:      kind,
		AgentName: out.model,
		RequestID: id,
		Input:     out.question,
		Duration:  out.duration,
		Error:     out.invokeErr,
	})
	for _, call := range out.calls {
		mgr.RecordToolCall(ctx, telemetry.ToolData{AgentName: out.model, Name: call.Function.Name})
	}
}

// latestQuestion returns the newest user turn, which is what the
// classifier keys on.
func latestQuestion(msgs []conversation.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == protocol.RoleUser {
			return msgs[i].Text
		}
	}
	return ""
}

const averageCharsPerToken = 4.0

// estimateUsage approximates both sides at about four characters per
// token. The counts feed client dashboards only and are zero for empty
// text.
func estimateUsage(prompt, system, completion string) protocol.Usage {
	p := estimateTokens(prompt) + estimateTokens(system)
	c := estimateTokens(completion)
	return protocol.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / averageCharsPerToken))
}
