package core

import (
	"encoding/json"
	"fmt"
)

// rawMessage is the wire shape accepted from callers. Chat frameworks
// disagree on the role key ("role" vs "type"), so both are read.
type rawMessage struct {
	Role    string          `json:"role"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// DecodeMessages decodes a JSON array of caller-supplied messages into
// canonical form, best-effort. Role aliases are normalized and unknown
// roles degrade to system; content may be a string or a part list.
// Only a payload that is not a JSON array at all is an error.
func DecodeMessages(data []byte) ([]Message, error) {
	var raws []rawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("core: decode messages: %w", err)
	}

	messages := make([]Message, 0, len(raws))
	for _, raw := range raws {
		role := raw.Role
		if role == "" {
			role = raw.Type
		}

		var content Content
		if len(raw.Content) > 0 {
			// Content.UnmarshalJSON never fails; odd shapes become text.
			_ = json.Unmarshal(raw.Content, &content)
		}

		messages = append(messages, Message{
			Role:    NormalizeRole(role),
			Content: content,
		})
	}
	return messages, nil
}
