package core_test

import (
	"encoding/json"
	"testing"

	"github.com/mnemoria-ai/mnemoria-go/core"
)

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		raw  string
		want core.Role
	}{
		{"user", core.RoleHuman},
		{"human", core.RoleHuman},
		{"Assistant", core.RoleAI},
		{"ai", core.RoleAI},
		{"system", core.RoleSystem},
		{"tool", core.RoleSystem},
		{"", core.RoleSystem},
		{"  USER  ", core.RoleHuman},
	}
	for _, tc := range cases {
		if got := core.NormalizeRole(tc.raw); got != tc.want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestContentFlatText(t *testing.T) {
	plain := core.Text("hello")
	if got := plain.FlatText(); got != "hello" {
		t.Errorf("plain FlatText = %q, want %q", got, "hello")
	}

	structured := core.Parts(
		core.ContentPart{Kind: "text", Text: "first"},
		core.ContentPart{Kind: "image"},
		core.ContentPart{Kind: "text", Text: "second"},
	)
	want := "first\n|image|\nsecond"
	if got := structured.FlatText(); got != want {
		t.Errorf("structured FlatText = %q, want %q", got, want)
	}
}

func TestContentJSONRoundTrip(t *testing.T) {
	var plain core.Content
	if err := json.Unmarshal([]byte(`"just text"`), &plain); err != nil {
		t.Fatalf("unmarshal string content: %v", err)
	}
	if plain.IsStructured() {
		t.Error("string content should not be structured")
	}
	out, err := json.Marshal(plain)
	if err != nil {
		t.Fatalf("marshal plain content: %v", err)
	}
	if string(out) != `"just text"` {
		t.Errorf("plain content marshals to %s", out)
	}

	var structured core.Content
	payload := `[{"type":"text","text":"hi"},{"type":"image"}]`
	if err := json.Unmarshal([]byte(payload), &structured); err != nil {
		t.Fatalf("unmarshal part content: %v", err)
	}
	if !structured.IsStructured() {
		t.Fatal("part content should be structured")
	}
	if parts := structured.PartList(); len(parts) != 2 || parts[1].Kind != "image" {
		t.Errorf("unexpected parts: %+v", parts)
	}
}

func TestContentUnmarshalOddShapes(t *testing.T) {
	// Bare strings inside the array are kept as text parts.
	var c core.Content
	if err := json.Unmarshal([]byte(`["loose string"]`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := c.FlatText(); got != "loose string" {
		t.Errorf("FlatText = %q", got)
	}

	// Content that is neither string nor array still normalizes.
	var odd core.Content
	if err := json.Unmarshal([]byte(`{"weird":true}`), &odd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if odd.FlatText() == "" {
		t.Error("odd content should not be dropped")
	}
}

func TestDecodeMessages(t *testing.T) {
	payload := `[
		{"role": "user", "content": "hello"},
		{"type": "assistant", "content": [{"type":"text","text":"hi there"}]},
		{"role": "narrator", "content": "scene change"}
	]`
	messages, err := core.DecodeMessages([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	if messages[0].Role != core.RoleHuman || messages[0].Content.FlatText() != "hello" {
		t.Errorf("message 0 = %+v", messages[0])
	}
	if messages[1].Role != core.RoleAI || messages[1].Content.FlatText() != "hi there" {
		t.Errorf("message 1 = %+v", messages[1])
	}
	if messages[2].Role != core.RoleSystem {
		t.Errorf("unknown role should degrade to system, got %q", messages[2].Role)
	}
}

func TestDecodeMessagesRejectsNonArray(t *testing.T) {
	if _, err := core.DecodeMessages([]byte(`{"role":"user"}`)); err == nil {
		t.Error("non-array payload should be rejected")
	}
}
