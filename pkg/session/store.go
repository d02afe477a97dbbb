// Package session implements the durable, cached, JSON-per-file session
// recorder: one JSON document per session under a configured data
// directory, with a write-through in-memory cache and atomic-replace
// writes.
package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jg-phare/ollm/pkg/chattypes"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxSessions bounds the number of sessions the store keeps on disk.
// After a CreateSession call would push the count above n, the oldest
// sessions by LastActivity are evicted inline. n <= 0 means unbounded.
func WithMaxSessions(n int) Option {
	return func(s *Store) { s.maxSessions = n }
}

// Store is a file-based, cached Session recorder. One Store instance owns
// its data directory per process (spec §5); concurrent Store instances in
// separate processes are not supported, though the atomic-rename + flock
// writes make individual file operations safe against a second writer.
type Store struct {
	dataDir     string
	maxSessions int

	mu    sync.RWMutex
	cache map[string]*chattypes.Session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates a Store rooted at dataDir. The directory is created on
// first write, not at construction time.
func NewStore(dataDir string, opts ...Option) *Store {
	s := &Store{
		dataDir: dataDir,
		cache:   make(map[string]*chattypes.Session),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataDir returns the directory this Store persists session files under.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dataDir, id+".json")
}

func (s *Store) sessionLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CreateSession allocates a fresh UUIDv4 session id, writes the initial
// session file synchronously, caches it, and runs bounded-count eviction
// if configured.
func (s *Store) CreateSession(model, provider string) (string, error) {
	id := uuid.New().String()
	now := time.Now()

	sess := &chattypes.Session{
		SessionID:    id,
		StartTime:    now,
		LastActivity: now,
		Model:        model,
		Provider:     provider,
		Messages:     []chattypes.Message{},
		ToolCalls:    []chattypes.ToolCall{},
		Metadata:     chattypes.SessionMetadata{},
	}

	if err := s.persist(sess); err != nil {
		return "", fmt.Errorf("session: create %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = sess
	s.mu.Unlock()

	if s.maxSessions > 0 {
		if err := s.enforceBound(); err != nil {
			log.Printf("session: bounded-count eviction failed: %v", err)
		}
	}

	return id, nil
}

// Fork copies sourceID's transcript (messages, tool calls, and metadata)
// into a freshly allocated session id, recording ParentSessionID so the
// lineage survives a round trip to disk. The fork is persisted
// synchronously before Fork returns, same as CreateSession.
func (s *Store) Fork(sourceID string) (string, error) {
	src, err := s.GetSession(sourceID)
	if err != nil {
		return "", err
	}
	if src == nil {
		return "", ErrSessionNotFound
	}

	id := uuid.New().String()
	now := time.Now()

	messages := make([]chattypes.Message, len(src.Messages))
	copy(messages, src.Messages)
	toolCalls := make([]chattypes.ToolCall, len(src.ToolCalls))
	copy(toolCalls, src.ToolCalls)

	fork := &chattypes.Session{
		SessionID:       id,
		StartTime:       now,
		LastActivity:    now,
		Model:           src.Model,
		Provider:        src.Provider,
		Messages:        messages,
		ToolCalls:       toolCalls,
		Metadata:        src.Metadata,
		ParentSessionID: sourceID,
	}

	if err := s.persist(fork); err != nil {
		return "", fmt.Errorf("session: fork %s -> %s: %w", sourceID, id, err)
	}

	s.mu.Lock()
	s.cache[id] = fork
	s.mu.Unlock()

	if s.maxSessions > 0 {
		if err := s.enforceBound(); err != nil {
			log.Printf("session: bounded-count eviction failed: %v", err)
		}
	}

	return id, nil
}

// GetSession returns the session, checking the cache first and falling
// back to disk. Returns (nil, nil) if no file exists for id.
func (s *Store) GetSession(id string) (*chattypes.Session, error) {
	s.mu.RLock()
	if sess, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return sess, nil
	}
	s.mu.RUnlock()

	sess, err := s.loadFromDisk(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.cache[id] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *Store) loadFromDisk(id string) (*chattypes.Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read %s: %w", id, err)
	}

	var sess chattypes.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &CorruptedSessionError{SessionID: id, Err: err}
	}
	return &sess, nil
}

// RecordMessage appends message to the session, advances LastActivity
// monotonically, and writes through to disk before returning.
func (s *Store) RecordMessage(id string, message chattypes.Message) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	sess.Messages = append(sess.Messages, message)
	sess.LastActivity = monotonicNow(sess.LastActivity)

	return s.persistCached(sess)
}

// RecordToolCall appends toolCall to the session with the same durability
// and ordering semantics as RecordMessage.
func (s *Store) RecordToolCall(id string, toolCall chattypes.ToolCall) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	sess.ToolCalls = append(sess.ToolCalls, toolCall)
	sess.LastActivity = monotonicNow(sess.LastActivity)

	return s.persistCached(sess)
}

// SaveSession flushes the cached session for id to disk.
func (s *Store) SaveSession(id string) error {
	s.mu.RLock()
	sess, ok := s.cache[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotInCache
	}
	return s.persist(sess)
}

// DeleteSession removes id from the cache and unlinks its file. A missing
// file is not an error.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	err := os.Remove(s.sessionPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	os.Remove(s.sessionPath(id) + ".lock")
	return nil
}

// ListSessions scans the data directory, parses each session file, skips
// ones that fail to parse, and returns summaries sorted by LastActivity
// descending.
func (s *Store) ListSessions() ([]chattypes.SessionSummary, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var summaries []chattypes.SessionSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := s.loadFromDisk(id)
		if err != nil {
			log.Printf("session: skipping unparsable session %s: %v", id, err)
			continue
		}
		if sess == nil {
			continue
		}
		summaries = append(summaries, sess.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// DeleteOldestSessions keeps the `keep` most recent sessions by
// LastActivity and deletes the rest.
func (s *Store) DeleteOldestSessions(keep int) error {
	summaries, err := s.ListSessions()
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	if len(summaries) <= keep {
		return nil
	}
	for _, sum := range summaries[keep:] {
		if err := s.DeleteSession(sum.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// PruneOlderThan deletes sessions whose LastActivity predates the cutoff,
// a time-based complement to the count-based DeleteOldestSessions.
func (s *Store) PruneOlderThan(cutoff time.Time) (int, error) {
	summaries, err := s.ListSessions()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, sum := range summaries {
		if sum.LastActivity.Before(cutoff) {
			if err := s.DeleteSession(sum.SessionID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) enforceBound() error {
	summaries, err := s.ListSessions()
	if err != nil {
		return err
	}
	if len(summaries) <= s.maxSessions {
		return nil
	}
	return s.DeleteOldestSessions(s.maxSessions)
}

func (s *Store) persistCached(sess *chattypes.Session) error {
	s.mu.Lock()
	s.cache[sess.SessionID] = sess
	s.mu.Unlock()
	return s.persist(sess)
}

func (s *Store) persist(sess *chattypes.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return writeAtomic(s.sessionPath(sess.SessionID), data)
}

// monotonicNow returns the current time, never earlier than prev.
func monotonicNow(prev time.Time) time.Time {
	now := time.Now()
	if now.Before(prev) {
		return prev
	}
	return now
}
