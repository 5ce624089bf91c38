// Package runner abstracts the single-shot agent collaborators the bridge
// delegates to: a CLI subprocess (the default) and the Anthropic API.
package runner

import "context"

// Request carries one fully assembled prompt to an agent backend.
type Request struct {
	// Prompt is the complete user-facing prompt text.
	Prompt string
	// SystemPrompt is appended to the agent's system context when non-empty.
	SystemPrompt string
	// Model is the already-resolved backend model name.
	Model string
	// Workdir, when non-empty, is the directory the agent should operate in.
	Workdir string
}

// Result is the agent's reply for a single invocation.
type Result struct {
	// Text is the agent's final answer.
	Text string
	// NumTurns reports how many internal turns the agent took, when known.
	NumTurns int
	// CostUSD reports the invocation cost, when known.
	CostUSD float64
}

// Runner executes one agent invocation per call. Implementations must be
// safe for concurrent use.
type Runner interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}
