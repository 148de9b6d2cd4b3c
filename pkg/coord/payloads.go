package coord

import (
	"encoding/json"
	"fmt"
)

// Well-known payload shapes for bus messages. Payloads are opaque to the
// bus itself; these types are the shared vocabulary between the supervisor,
// the workflow and the agent roles. Role-specific task and result details
// ride in the Spec and Data fields as nested JSON.

// TaskPayload is the payload of a KindTask message.
type TaskPayload struct {
	TaskID      string          `json:"task_id,omitempty"` // Plan task id, e.g. T001; empty for ad-hoc work
	Description string          `json:"description"`       // Human-readable description of the work
	Spec        json.RawMessage `json:"spec,omitempty"`    // Role-specific task details
}

// ResultPayload is the payload of a KindResult message, reporting one
// finished task. Failed tasks come back with Success=false and Error set.
type ResultPayload struct {
	TaskID  string          `json:"task_id,omitempty"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"` // Role-specific result details
}

// QueryPayload is the payload of a KindQuery message.
type QueryPayload struct {
	Question string `json:"question"`
}

// ResponsePayload is the payload of a KindResponse message. It echoes the
// question so the asker can pair answers when several queries are in flight.
type ResponsePayload struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer"`
}

// StatusPayload is the payload of a KindStatus message. The supervisor
// broadcasts one whenever it detects a failed agent so dependents stop
// waiting on it.
type StatusPayload struct {
	AgentID string      `json:"agent_id"`
	Status  AgentStatus `json:"status"`
	Detail  string      `json:"detail,omitempty"`
}

// ShutdownPayload is the payload of a KindShutdown message.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewMessage builds a message with the given payload marshaled to JSON.
// A nil payload produces an empty payload field. The bus assigns the id at
// send time.
func NewMessage(from, to string, kind MessageKind, payload interface{}) (*Message, error) {
	msg := &Message{
		From:        from,
		To:          to,
		Kind:        kind,
		CreatedAtMs: nowMs(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		msg.Payload = data
	}

	return msg, nil
}

// DecodePayload unmarshals the message payload into v.
func (m *Message) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %d has no payload", m.ID)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Kind, err)
	}
	return nil
}
