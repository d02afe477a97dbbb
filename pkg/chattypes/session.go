package chattypes

import (
	"encoding/json"
	"sort"
	"time"
)

// SessionMetadata tracks derived bookkeeping about a session's history.
type SessionMetadata struct {
	TokenCount       int      `json:"tokenCount"`
	CompressionCount int      `json:"compressionCount"`
	ModeHistory      []string `json:"modeHistory,omitempty"`
}

// Session is the full durable record of one conversation.
//
// MarshalJSON/UnmarshalJSON are implemented by hand rather than left to
// struct tags so that (a) the on-disk field order always matches the
// canonical order in spec §4.5 even though Go's encoder would otherwise
// sort nothing in particular, and (b) any field a future schema version
// adds shows up in Extra and round-trips unchanged instead of being
// silently dropped (spec §6: "unknown extra fields are preserved").
type Session struct {
	SessionID    string          `json:"sessionId"`
	StartTime    time.Time       `json:"startTime"`
	LastActivity time.Time       `json:"lastActivity"`
	Model        string          `json:"model"`
	Provider     string          `json:"provider"`
	Messages     []Message       `json:"messages"`
	ToolCalls    []ToolCall      `json:"toolCalls"`
	Metadata     SessionMetadata `json:"metadata"`

	// ParentSessionID is set on sessions created by Store.Fork, naming the
	// session the transcript was copied from. Empty for non-forked sessions.
	ParentSessionID string `json:"parentSessionId,omitempty"`

	// Extra holds any top-level JSON fields not in the canonical set above,
	// preserved verbatim across Load/Save cycles.
	Extra map[string]json.RawMessage `json:"-"`
}

var sessionCanonicalFields = []string{
	"sessionId", "startTime", "lastActivity", "model", "provider",
	"messages", "toolCalls", "metadata", "parentSessionId",
}

// MarshalJSON writes the canonical fields first, in spec order, followed
// by any preserved Extra fields in sorted-key order for determinism.
func (s Session) MarshalJSON() ([]byte, error) {
	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')

	write := func(key string, value any, first bool) error {
		if !first {
			ordered = append(ordered, ',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		ordered = append(ordered, k...)
		ordered = append(ordered, ':')
		ordered = append(ordered, v...)
		return nil
	}

	fields := []struct {
		key   string
		value any
	}{
		{"sessionId", s.SessionID},
		{"startTime", s.StartTime},
		{"lastActivity", s.LastActivity},
		{"model", s.Model},
		{"provider", s.Provider},
		{"messages", s.Messages},
		{"toolCalls", s.ToolCalls},
		{"metadata", s.Metadata},
	}
	for i, f := range fields {
		if err := write(f.key, f.value, i == 0); err != nil {
			return nil, err
		}
	}

	if s.ParentSessionID != "" {
		if err := write("parentSessionId", s.ParentSessionID, false); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		ordered = append(ordered, ',')
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, s.Extra[k]...)
	}

	ordered = append(ordered, '}')
	return ordered, nil
}

// UnmarshalJSON decodes the canonical fields and stashes everything else in Extra.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias struct {
		SessionID       string          `json:"sessionId"`
		StartTime       time.Time       `json:"startTime"`
		LastActivity    time.Time       `json:"lastActivity"`
		Model           string          `json:"model"`
		Provider        string          `json:"provider"`
		Messages        []Message       `json:"messages"`
		ToolCalls       []ToolCall      `json:"toolCalls"`
		Metadata        SessionMetadata `json:"metadata"`
		ParentSessionID string          `json:"parentSessionId"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	s.SessionID = a.SessionID
	s.StartTime = a.StartTime
	s.LastActivity = a.LastActivity
	s.Model = a.Model
	s.Provider = a.Provider
	s.Messages = a.Messages
	s.ToolCalls = a.ToolCalls
	s.Metadata = a.Metadata
	s.ParentSessionID = a.ParentSessionID

	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if isCanonicalSessionField(k) {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		s.Extra = extra
	} else {
		s.Extra = nil
	}
	return nil
}

func isCanonicalSessionField(key string) bool {
	for _, f := range sessionCanonicalFields {
		if f == key {
			return true
		}
	}
	return false
}

// Summary derives a SessionSummary from the full session.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:    s.SessionID,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		Model:        s.Model,
		MessageCount: len(s.Messages),
		TokenCount:   s.Metadata.TokenCount,
	}
}

// SessionSummary is the lightweight view returned by listSessions. It is
// always derived, never stored separately.
type SessionSummary struct {
	SessionID    string    `json:"sessionId"`
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	Model        string    `json:"model"`
	MessageCount int       `json:"messageCount"`
	TokenCount   int       `json:"tokenCount"`
}
