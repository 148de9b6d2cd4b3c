// Package reasoning abstracts the LLM backend agents think with.
//
// The production implementation shells out to the claude CLI; tests and
// dry runs use MockClient. Roles never import a backend directly - they
// receive a Client from the agent engine.
package reasoning

import (
	"context"
	"fmt"
	"strings"
)

// Request is one reasoning call.
type Request struct {
	SystemPrompt string   // Role-specific system prompt
	Prompt       string   // The user message
	Tools        []string // Tool names the model may use, e.g. Read, Write, Bash
	Model        string   // Optional per-request model override
}

// Response is the model's answer to a Request.
type Response struct {
	Content    string  // The response text
	CostUSD    float64 // Reported request cost, 0 if unknown
	DurationMs int64   // Reported wall time, 0 if unknown
}

// Client answers reasoning requests. Implementations must be safe for
// concurrent use.
type Client interface {
	Ask(ctx context.Context, req *Request) (*Response, error)
}

// Validate checks the request has enough to run.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("reasoning prompt cannot be empty")
	}
	return nil
}

// joinTools renders the tool list the way the CLI expects it.
func joinTools(tools []string) string {
	return strings.Join(tools, ",")
}
