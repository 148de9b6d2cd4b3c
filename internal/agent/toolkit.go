package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mugen-ai/mugen/internal/reasoning"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// Toolkit bundles the capabilities a role needs to do its work: the
// coordination client for locks, state and messaging, the reasoning backend,
// and the agent's identity. The engine builds one per agent and passes it to
// every Execute call.
type Toolkit struct {
	Coord       *coord.Client
	Reasoner    reasoning.Client
	AgentID     string
	WorkingDir  string
	LockTimeout time.Duration
}

// Ask runs one reasoning call with the given system prompt and tool list.
func (tk *Toolkit) Ask(ctx context.Context, systemPrompt, prompt string, tools []string) (string, error) {
	resp, err := tk.Reasoner.Ask(ctx, &reasoning.Request{
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Tools:        tools,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// WriteFileLocked writes a file under the working directory while holding
// the cross-agent lock for its path. The lock path is the absolute file path,
// so agents sharing a working directory contend on the same lock. Parent
// directories are created as needed.
func (tk *Toolkit) WriteFileLocked(ctx context.Context, relPath string, content []byte) error {
	if relPath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if !filepath.IsLocal(relPath) {
		return fmt.Errorf("file path %q escapes the working directory", relPath)
	}

	fullPath := filepath.Join(tk.WorkingDir, relPath)

	if err := tk.Coord.AcquireLock(ctx, tk.AgentID, fullPath, tk.LockTimeout); err != nil {
		return fmt.Errorf("could not lock %s: %w", relPath, err)
	}
	defer func() {
		err := tk.Coord.ReleaseLock(context.WithoutCancel(ctx), tk.AgentID, fullPath)
		// Not holding the lock anymore means a liveness sweep released
		// it already; nothing to do
		if err != nil && !coord.IsNotHolder(err) {
			log.Printf("[WARN] Failed to release lock on %s: %v", relPath, err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", relPath, err)
	}
	return nil
}

// WaitForResponse blocks until a response message from the named agent
// arrives on this agent's queue, or the timeout elapses. Messages of other
// kinds received while waiting are logged and dropped.
func (tk *Toolkit) WaitForResponse(ctx context.Context, from string, timeout time.Duration) (*coord.Message, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msg, err := tk.Coord.Receive(ctx, tk.AgentID, time.Second)
		if err != nil {
			if coord.IsNoMessage(err) {
				continue
			}
			return nil, err
		}

		if msg.Kind == coord.KindResponse && msg.From == from {
			return msg, nil
		}
		log.Printf("[WARN] Dropping unexpected %s message from %s while waiting for response from %s",
			msg.Kind, msg.From, from)
	}

	return nil, fmt.Errorf("no response from %s within %s", from, timeout)
}
