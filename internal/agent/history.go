package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mugen-ai/mugen/internal/reasoning"
)

// exchange is one turn of the agent's conversation with the reasoner.
type exchange struct {
	role    string
	content string
}

// historyReasoner wraps a reasoning client with per-agent conversation
// memory. The backend holds no session state, so each call carries the
// prior exchanges inline and the model still sees the thread.
type historyReasoner struct {
	inner reasoning.Client

	mu    sync.Mutex
	turns []exchange
}

func newHistoryReasoner(inner reasoning.Client) *historyReasoner {
	return &historyReasoner{inner: inner}
}

// Ask records the prompt as a user turn, rewrites the request to carry the
// conversation so far, and records the reply as an assistant turn. A failed
// call keeps the user turn; the next call shows the model what was asked
// even though no answer came back.
func (h *historyReasoner) Ask(ctx context.Context, req *reasoning.Request) (*reasoning.Response, error) {
	h.mu.Lock()
	h.turns = append(h.turns, exchange{role: "User", content: req.Prompt})
	prompt := h.conversationLocked()
	h.mu.Unlock()

	wrapped := *req
	wrapped.Prompt = prompt

	resp, err := h.inner.Ask(ctx, &wrapped)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.turns = append(h.turns, exchange{role: "Assistant", content: resp.Content})
	h.mu.Unlock()

	return resp, nil
}

// conversationLocked renders the conversation as a single prompt: every
// prior turn under a "Previous conversation:" header, the newest turn as
// the current question. A first call goes out unadorned. Caller holds h.mu.
func (h *historyReasoner) conversationLocked() string {
	current := h.turns[len(h.turns)-1]
	if len(h.turns) == 1 {
		return current.content
	}

	parts := make([]string, 0, len(h.turns)-1)
	for _, t := range h.turns[:len(h.turns)-1] {
		parts = append(parts, fmt.Sprintf("%s: %s", t.role, t.content))
	}

	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question:\n%s",
		strings.Join(parts, "\n\n"), current.content)
}
