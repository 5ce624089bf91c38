package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cexll/clawbridge/pkg/telemetry"
)

const (
	// DefaultCommand is the agent binary invoked when none is configured.
	DefaultCommand = "claude"
	// DefaultTimeout bounds a single agent invocation.
	DefaultTimeout = 5 * time.Minute

	stderrExcerptLimit = 512
)

// DefaultArgs is the argv prefix that puts the agent into single-shot
// JSON-result mode.
var DefaultArgs = []string{"-p", "--output-format", "json"}

// CLIOptions configures a CLIRunner. Zero values fall back to the
// package defaults.
type CLIOptions struct {
	Command string
	Args    []string
	Timeout time.Duration
	// Workdir is used when the request does not carry its own.
	Workdir string
	Logger  *slog.Logger
}

// CLIRunner shells out to a text-in/text-out agent CLI, one subprocess
// per invocation.
type CLIRunner struct {
	command string
	args    []string
	timeout time.Duration
	workdir string
	log     *slog.Logger
}

// NewCLIRunner builds a runner for the configured agent command.
func NewCLIRunner(opts CLIOptions) *CLIRunner {
	command := strings.TrimSpace(opts.Command)
	if command == "" {
		command = DefaultCommand
	}
	args := opts.Args
	if args == nil {
		args = DefaultArgs
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIRunner{
		command: command,
		args:    append([]string(nil), args...),
		timeout: timeout,
		workdir: opts.Workdir,
		log:     logger.With("component", "runner"),
	}
}

// Invoke runs the agent subprocess and decodes its result envelope.
// Timeouts and non-zero exits are reported as errors; there is no
// partial output.
func (r *CLIRunner) Invoke(ctx context.Context, req Request) (_ Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "runner.cli.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("agent.backend", "cli"),
			attribute.String("agent.command", r.command),
			attribute.String("llm.model", req.Model),
		)...),
	)
	defer telemetry.EndSpan(span, err)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, r.argv(req)...)
	if dir := r.requestWorkdir(req); dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("invoking agent command", "command", r.command, "model", req.Model, "workdir", cmd.Dir)

	if runErr := cmd.Run(); runErr != nil {
		return Result{}, r.runError(ctx, runErr, stderr.Bytes())
	}
	return r.decodeResult(stdout.Bytes())
}

// argv composes the full command line for one request: configured base
// args, model selection, optional system prompt, then the prompt as the
// final positional argument.
func (r *CLIRunner) argv(req Request) []string {
	argv := append([]string(nil), r.args...)
	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	if req.SystemPrompt != "" {
		argv = append(argv, "--append-system-prompt", req.SystemPrompt)
	}
	return append(argv, req.Prompt)
}

func (r *CLIRunner) requestWorkdir(req Request) string {
	if req.Workdir != "" {
		return req.Workdir
	}
	return r.workdir
}

func (r *CLIRunner) runError(ctx context.Context, err error, stderr []byte) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("agent command timed out after %s", r.timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := stderrExcerpt(stderr); msg != "" {
			return fmt.Errorf("agent command exited with code %d: %s", exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("agent command exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("agent command: %w", err)
}

// resultEnvelope is the JSON document the agent CLI prints in
// --output-format json mode.
type resultEnvelope struct {
	Result       string  `json:"result"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	IsError      bool    `json:"is_error"`
}

// decodeResult parses the envelope, falling back to treating the whole
// stdout as plain text when it is not valid envelope JSON.
func (r *CLIRunner) decodeResult(stdout []byte) (Result, error) {
	envelope, ok := parseResultEnvelope(stdout)
	if !ok {
		r.log.Debug("agent output is not a result envelope, using raw text")
		return Result{Text: strings.TrimSpace(string(stdout))}, nil
	}
	if envelope.IsError {
		msg := strings.TrimSpace(envelope.Result)
		if msg == "" {
			msg = "agent reported an error without detail"
		}
		return Result{}, fmt.Errorf("agent error: %s", msg)
	}
	return Result{
		Text:     envelope.Result,
		NumTurns: envelope.NumTurns,
		CostUSD:  envelope.TotalCostUSD,
	}, nil
}

func parseResultEnvelope(stdout []byte) (resultEnvelope, bool) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return resultEnvelope{}, false
	}
	var envelope resultEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return resultEnvelope{}, false
	}
	return envelope, true
}

func stderrExcerpt(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if len(text) > stderrExcerptLimit {
		text = text[:stderrExcerptLimit] + "..."
	}
	return text
}
