package chattypes

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSession_MarshalJSON_CanonicalFieldOrder(t *testing.T) {
	s := Session{
		SessionID:    "abc",
		StartTime:    time.Now(),
		LastActivity: time.Now(),
		Model:        "llama3.1:8b",
		Provider:     "ollama",
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	str := string(data)
	order := []string{"sessionId", "startTime", "lastActivity", "model", "provider", "messages", "toolCalls", "metadata"}
	last := -1
	for _, key := range order {
		idx := strings.Index(str, `"`+key+`"`)
		if idx < 0 {
			t.Fatalf("field %q missing from output: %s", key, str)
		}
		if idx < last {
			t.Fatalf("field %q out of canonical order in: %s", key, str)
		}
		last = idx
	}
}

func TestSession_RoundTrip_PreservesExtraFields(t *testing.T) {
	raw := []byte(`{
		"sessionId": "abc",
		"startTime": "2026-01-01T00:00:00Z",
		"lastActivity": "2026-01-01T00:01:00Z",
		"model": "m",
		"provider": "p",
		"messages": [],
		"toolCalls": [],
		"metadata": {"tokenCount": 0, "compressionCount": 0},
		"futureField": {"nested": true}
	}`)

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := s.Extra["futureField"]; !ok {
		t.Fatalf("expected futureField to be preserved, got %+v", s.Extra)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"futureField":{"nested":true}`) {
		t.Errorf("futureField not round-tripped: %s", out)
	}
}

func TestSession_RoundTrip_FullStructuralEquality(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	s := Session{
		SessionID:    "s1",
		StartTime:    now,
		LastActivity: now,
		Model:        "m",
		Provider:     "p",
		Messages: []Message{
			NewTextMessage(RoleSystem, "sys"),
			NewTextMessage(RoleUser, "hi"),
		},
		ToolCalls: []ToolCall{
			{ID: "t1", Name: "read_file", Args: map[string]any{"path": "/x"}, Result: ToolResult{LLMContent: "ok"}, Timestamp: now},
		},
		Metadata: SessionMetadata{TokenCount: 5, CompressionCount: 1},
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var loaded Session
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if loaded.SessionID != s.SessionID || loaded.Model != s.Model || loaded.Provider != s.Provider {
		t.Errorf("top-level fields mismatch: %+v vs %+v", loaded, s)
	}
	if len(loaded.Messages) != len(s.Messages) || loaded.Messages[1].Text() != "hi" {
		t.Errorf("messages mismatch: %+v", loaded.Messages)
	}
	if len(loaded.ToolCalls) != 1 || loaded.ToolCalls[0].Name != "read_file" {
		t.Errorf("toolCalls mismatch: %+v", loaded.ToolCalls)
	}
	if !reflect.DeepEqual(loaded.Metadata, s.Metadata) {
		t.Errorf("metadata mismatch: %+v vs %+v", loaded.Metadata, s.Metadata)
	}
}
