package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cexll/clawbridge/pkg/bridge"
	"github.com/cexll/clawbridge/pkg/config"
	"github.com/cexll/clawbridge/pkg/protocol"
	"github.com/cexll/clawbridge/pkg/runner"
	"github.com/cexll/clawbridge/pkg/skills"
)

// runnerFactory builds the configured backend; tests swap it out.
var runnerFactory = configuredRunner

func runCommand(ctx context.Context, argv []string, cfgPath string, streams ioStreams) error {
	set := flag.NewFlagSet("run", flag.ContinueOnError)
	set.SetOutput(streams.err)
	var (
		modelFlag  = set.String("model", "", "Model alias to request (opus, sonnet, haiku, or a full claude model).")
		systemFlag = set.String("system", "", "System message prepended to the conversation.")
		streamFlag = set.Bool("stream", false, "Print streaming chunks instead of the final completion.")
		configFlag = set.String("config", cfgPath, "Path to config file.")
	)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: clawbridge run [flags] \"prompt\"")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
		fmt.Fprintln(streams.err, "\nExamples:")
		fmt.Fprintln(streams.err, "  clawbridge run \"fix the failing test\"")
		fmt.Fprintln(streams.err, "  clawbridge run --model opus --stream \"refactor the config loader\"")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	prompt := strings.TrimSpace(strings.Join(set.Args(), " "))
	if prompt == "" {
		return errors.New("run requires a prompt")
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(streams.err, cfg.LogLevel)
	if err != nil {
		return err
	}

	b, cleanup, err := buildBridge(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	model := strings.TrimSpace(*modelFlag)
	if model == "" {
		model = cfg.Models.Default
	}
	messages := make([]protocol.ChatMessageParam, 0, 2)
	if strings.TrimSpace(*systemFlag) != "" {
		messages = append(messages, textMessage(protocol.RoleSystem, *systemFlag))
	}
	messages = append(messages, textMessage(protocol.RoleUser, prompt))
	req := &protocol.ChatCompletionRequest{Model: model, Messages: messages, Stream: *streamFlag}

	if *streamFlag {
		return streamRun(ctx, b, req, streams.out)
	}
	completion, err := b.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("bridge complete: %w", err)
	}
	writeMarkdownResult(streams.out, completion)
	return nil
}

func textMessage(role, text string) protocol.ChatMessageParam {
	return protocol.ChatMessageParam{
		Role:    role,
		Content: protocol.MessageContent{{Type: "text", Text: text}},
	}
}

// chunkPrinter emits each streaming chunk as one JSON line.
type chunkPrinter struct {
	enc *json.Encoder
}

func (p *chunkPrinter) WriteChunk(chunk protocol.ChatCompletionChunk) error {
	if err := p.enc.Encode(chunk); err != nil {
		return fmt.Errorf("stream encode: %w", err)
	}
	return nil
}

func streamRun(ctx context.Context, b *bridge.Bridge, req *protocol.ChatCompletionRequest, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, "# clawbridge run (stream)")
	fmt.Fprintf(out, "- Model: `%s`\n", labelOrNA(req.Model))
	fmt.Fprintln(out, "\n```json")
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	if err := b.CompleteStream(ctx, req, &chunkPrinter{enc: encoder}); err != nil {
		return fmt.Errorf("bridge stream: %w", err)
	}
	fmt.Fprintln(out, "```")
	return nil
}

func writeMarkdownResult(out io.Writer, completion *protocol.ChatCompletion) {
	if out == nil || completion == nil || len(completion.Choices) == 0 {
		return
	}
	choice := completion.Choices[0]
	fmt.Fprintln(out, "# clawbridge run")
	fmt.Fprintf(out, "- Model: `%s`\n", labelOrNA(completion.Model))
	fmt.Fprintf(out, "- Finish Reason: `%s`\n", choice.FinishReason)
	fmt.Fprintln(out, "\n## Output")
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}
	fmt.Fprintf(out, "```\n%s\n```\n", content)
	fmt.Fprintln(out, "\n## Usage")
	fmt.Fprintf(out, "- Prompt tokens: %d\n", completion.Usage.PromptTokens)
	fmt.Fprintf(out, "- Completion tokens: %d\n", completion.Usage.CompletionTokens)
	fmt.Fprintf(out, "- Total tokens: %d\n", completion.Usage.TotalTokens)
	if len(choice.Message.ToolCalls) == 0 {
		return
	}
	fmt.Fprintln(out, "\n## Tool Calls")
	for _, call := range choice.Message.ToolCalls {
		fmt.Fprintf(out, "- `%s`: %s\n", call.Function.Name, call.Function.Arguments)
	}
}

func labelOrNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "n/a"
	}
	return value
}

func configuredRunner(cfg *config.Config, logger *slog.Logger) (runner.Runner, error) {
	switch cfg.Backend {
	case config.BackendAnthropic:
		return runner.NewAnthropicRunner(cfg.Agent.APIKey, cfg.Agent.MaxTokens), nil
	default:
		return runner.NewCLIRunner(runner.CLIOptions{
			Command: cfg.Agent.Command,
			Args:    cfg.Agent.Args,
			Timeout: cfg.Agent.Timeout(),
			Workdir: cfg.Agent.Workdir,
			Logger:  logger,
		}), nil
	}
}

func buildBridge(cfg *config.Config, logger *slog.Logger) (*bridge.Bridge, func(), error) {
	r, err := runnerFactory(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create runner: %w", err)
	}
	store := skills.NewStore(logger)
	b := bridge.New(bridge.Options{
		Runner: r,
		Skills: store,
		Models: bridge.Models{Default: cfg.Models.Default, Tiers: cfg.Models.Aliases},
		Logger: logger,
	})
	return b, func() { _ = store.Close() }, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
