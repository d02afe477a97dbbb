// Package contextmgr maintains the set of ambient facts spliced into the
// system prompt: a priority-ordered map of ContextEntry values rendered as
// a system-prompt suffix.
package contextmgr

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jg-phare/ollm/pkg/chattypes"
)

// AddOptions configures an added entry's priority and source.
type AddOptions struct {
	Priority int
	Source   chattypes.ContextSource
}

// Manager is an in-memory, keyed set of ContextEntry values.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]chattypes.ContextEntry
	order   map[string]int // insertion sequence, for stable tie-breaking
	seq     int
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		entries: make(map[string]chattypes.ContextEntry),
		order:   make(map[string]int),
	}
}

// AddContext inserts or replaces the entry at key. A zero AddOptions
// defaults priority to 0 and source to "user".
func (m *Manager) AddContext(key, content string, opts AddOptions) {
	if opts.Source == "" {
		opts.Source = chattypes.ContextSourceUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = chattypes.ContextEntry{
		Key:       key,
		Content:   content,
		Priority:  opts.Priority,
		Source:    opts.Source,
		Timestamp: time.Now(),
	}
	if _, ok := m.order[key]; !ok {
		m.seq++
		m.order[key] = m.seq
	}
}

// RemoveContext deletes the entry at key, if present.
func (m *Manager) RemoveContext(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	delete(m.order, key)
}

// ClearContext removes every entry.
func (m *Manager) ClearContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]chattypes.ContextEntry)
	m.order = make(map[string]int)
}

// GetContext returns every entry sorted by descending priority, ties
// broken by insertion order then by key.
func (m *Manager) GetContext() []chattypes.ContextEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(nil)
}

// GetContextBySource filters GetContext's result to a single source.
func (m *Manager) GetContextBySource(source chattypes.ContextSource) []chattypes.ContextEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(&source)
}

func (m *Manager) sortedLocked(filter *chattypes.ContextSource) []chattypes.ContextEntry {
	out := make([]chattypes.ContextEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if filter != nil && e.Source != *filter {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if m.order[out[i].Key] != m.order[out[j].Key] {
			return m.order[out[i].Key] < m.order[out[j].Key]
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// GetSystemPromptAdditions renders every entry in priority order joined by
// a blank line. An empty manager renders the empty string.
func (m *Manager) GetSystemPromptAdditions() string {
	entries := m.GetContext()
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Content
	}
	return strings.Join(parts, "\n\n")
}
