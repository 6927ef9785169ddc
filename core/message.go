package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the speaker of a dialogue message.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// NormalizeRole maps inbound role aliases onto the canonical set.
// Callers send whatever their chat framework emits ("user", "assistant",
// sometimes a bare "type" field); anything unrecognized degrades to a
// system message rather than failing the event.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "human", "user":
		return RoleHuman
	case "ai", "assistant":
		return RoleAI
	case "system":
		return RoleSystem
	default:
		return RoleSystem
	}
}

// ContentPart is one typed segment of structured message content,
// e.g. {"type": "text", "text": "hello"}.
type ContentPart struct {
	Kind string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Content is the body of a message: either plain text or a sequence of
// typed parts. The two shapes arrive interchangeably from callers, so
// Content marshals back to whichever shape it was built from and
// FlatText gives the single normalized view used by archival and the
// semantic index.
type Content struct {
	text  string
	parts []ContentPart
	// structured distinguishes an empty part list from plain text.
	structured bool
}

// Text builds plain-text content.
func Text(s string) Content {
	return Content{text: s}
}

// Parts builds structured content from typed parts.
func Parts(parts ...ContentPart) Content {
	return Content{parts: parts, structured: true}
}

// IsStructured reports whether the content arrived as a part list.
func (c Content) IsStructured() bool {
	return c.structured
}

// PartList returns the typed parts, or nil for plain-text content.
func (c Content) PartList() []ContentPart {
	return c.parts
}

// FlatText normalizes content to a single string. Parts are joined with
// newlines; a non-text part contributes a "|<type>|" placeholder so the
// archive records that something non-textual was there.
func (c Content) FlatText() string {
	if !c.structured {
		return c.text
	}
	segments := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Text != "" {
			segments = append(segments, p.Text)
			continue
		}
		segments = append(segments, fmt.Sprintf("|%s|", p.Kind))
	}
	return strings.Join(segments, "\n")
}

// MarshalJSON emits the content in the shape it was built from: a JSON
// string for plain text, an array of parts otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.structured {
		return json.Marshal(c.text)
	}
	return json.Marshal(c.parts)
}

// UnmarshalJSON accepts both content shapes. Array entries that are not
// part objects are kept as text segments so odd caller payloads still
// normalize instead of erroring.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{text: s}
		return nil
	}

	var rawParts []json.RawMessage
	if err := json.Unmarshal(data, &rawParts); err != nil {
		// Neither shape; keep the raw JSON as text rather than dropping it.
		*c = Content{text: string(data)}
		return nil
	}

	parts := make([]ContentPart, 0, len(rawParts))
	for _, raw := range rawParts {
		var p ContentPart
		if err := json.Unmarshal(raw, &p); err == nil && (p.Kind != "" || p.Text != "") {
			parts = append(parts, p)
			continue
		}
		var t string
		if err := json.Unmarshal(raw, &t); err == nil {
			parts = append(parts, ContentPart{Kind: "text", Text: t})
			continue
		}
		parts = append(parts, ContentPart{Kind: "text", Text: string(raw)})
	}
	*c = Content{parts: parts, structured: true}
	return nil
}

// Message is one utterance in a dialogue event.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// NewMessage builds a plain-text message.
func NewMessage(role Role, text string) Message {
	return Message{Role: role, Content: Text(text)}
}

// SystemMessage builds a system-role message. Used for synthetic markers
// such as session boundaries in merged archives.
func SystemMessage(text string) Message {
	return NewMessage(RoleSystem, text)
}

// DialogueEvent is one ingested conversational turn: an ordered message
// sequence with the event UID assigned at submission time.
type DialogueEvent struct {
	UID      string    `json:"uid"`
	Identity string    `json:"identity"`
	Time     time.Time `json:"time"`
	Messages []Message `json:"messages"`
}
