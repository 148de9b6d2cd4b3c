package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"time"
)

const (
	// defaultBinary is the claude CLI executable resolved from PATH.
	defaultBinary = "claude"

	// maxOutputSize is the maximum number of bytes to read from CLI
	// stdout/stderr (10MB)
	maxOutputSize = 10 * 1024 * 1024
)

// CLIClient asks questions by running the claude CLI in non-interactive
// print mode and parsing its JSON output.
type CLIClient struct {
	Binary     string        // CLI executable, defaults to "claude"
	Model      string        // Default model when the request names none
	Timeout    time.Duration // Per-request wall clock limit
	WorkingDir string        // Directory the CLI runs in; "" means inherit
}

// NewCLIClient builds a CLI-backed client.
func NewCLIClient(model string, timeout time.Duration) *CLIClient {
	return &CLIClient{
		Binary:  defaultBinary,
		Model:   model,
		Timeout: timeout,
	}
}

// cliResult is the claude CLI's --output-format json envelope.
type cliResult struct {
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMs   int64   `json:"duration_ms"`
}

// Ask runs one CLI invocation. The subprocess is killed when the request
// times out or ctx is cancelled.
func (c *CLIClient) Ask(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.Model
	}

	args := []string{
		"--print",
		"--output-format", "json",
		"--no-session-persistence",
		"--model", model,
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if len(req.Tools) > 0 {
		args = append(args, "--tools", joinTools(req.Tools))
	}
	args = append(args, req.Prompt)

	execCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	binary := c.Binary
	if binary == "" {
		binary = defaultBinary
	}

	cmd := exec.CommandContext(execCtx, binary, args...)
	if c.WorkingDir != "" {
		cmd.Dir = c.WorkingDir
	}

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	cmd.Stdout = &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("claude CLI timed out after %s", c.Timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("claude CLI exited with code %d: %s",
				exitErr.ExitCode(), truncate(stderrBuf.String(), 500))
		}
		return nil, fmt.Errorf("failed to run claude CLI: %w", err)
	}

	if stdoutBuf.Len() >= maxOutputSize || stderrBuf.Len() >= maxOutputSize {
		return nil, fmt.Errorf("claude CLI output exceeded 10MB limit")
	}

	var result cliResult
	if err := json.Unmarshal(stdoutBuf.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse claude CLI response: %w (output: %s)",
			err, truncate(stdoutBuf.String(), 500))
	}

	if result.IsError {
		return nil, fmt.Errorf("claude returned an error: %s", truncate(result.Result, 500))
	}

	log.Printf("[DEBUG] Reasoning call completed: cost_usd=%.4f duration=%s", result.TotalCostUSD, duration)

	return &Response{
		Content:    result.Result,
		CostUSD:    result.TotalCostUSD,
		DurationMs: result.DurationMs,
	}, nil
}

// limitedWriter wraps a writer and enforces a size limit.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		// Already hit limit, discard this write
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err // Return len(p) to satisfy the writer interface
}

// truncate limits a string to maxLen characters, appending "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
