package session

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jg-phare/ollm/pkg/chattypes"
)

func TestCreateAndGetSession_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	id, err := store.CreateSession("llama3.1:8b", "ollama")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := NewStore(dir).GetSession(id); err != nil {
		t.Fatalf("GetSession from fresh store: %v", err)
	}

	sess, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil || sess.SessionID != id {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.Model != "llama3.1:8b" || sess.Provider != "ollama" {
		t.Errorf("model/provider not recorded: %+v", sess)
	}
}

func TestGetSession_UnknownReturnsNilNil(t *testing.T) {
	store := NewStore(t.TempDir())
	sess, err := store.GetSession("does-not-exist")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil session, got %+v", sess)
	}
}

func TestRecordMessage_PersistsAndAdvancesLastActivity(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id, err := store.CreateSession("m", "p")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	before, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	firstActivity := before.LastActivity

	time.Sleep(5 * time.Millisecond)

	msg := chattypes.NewTextMessage(chattypes.RoleUser, "hello")
	if err := store.RecordMessage(id, msg); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}

	fresh := NewStore(dir)
	loaded, err := fresh.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession after reload: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Text() != "hello" {
		t.Fatalf("message not persisted: %+v", loaded.Messages)
	}
	if !loaded.LastActivity.After(firstActivity) {
		t.Errorf("LastActivity did not advance: %v vs %v", loaded.LastActivity, firstActivity)
	}
}

func TestRecordMessage_UnknownSessionErrors(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.RecordMessage("nope", chattypes.NewTextMessage(chattypes.RoleUser, "x"))
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRecordToolCall_Persists(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id, _ := store.CreateSession("m", "p")

	tc := chattypes.ToolCall{ID: "1", Name: "read_file", Args: map[string]any{"path": "/x"}}
	if err := store.RecordToolCall(id, tc); err != nil {
		t.Fatalf("RecordToolCall: %v", err)
	}

	loaded, err := NewStore(dir).GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(loaded.ToolCalls) != 1 || loaded.ToolCalls[0].Name != "read_file" {
		t.Fatalf("tool call not persisted: %+v", loaded.ToolCalls)
	}
}

func TestSaveSession_NotInCacheErrors(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.SaveSession("nope"); err != ErrSessionNotInCache {
		t.Fatalf("expected ErrSessionNotInCache, got %v", err)
	}
}

func TestDeleteSession_MissingFileIsNotError(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.DeleteSession("nope"); err != nil {
		t.Fatalf("expected nil error deleting missing session, got %v", err)
	}
}

func TestDeleteSession_RemovesFromCacheAndDisk(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id, _ := store.CreateSession("m", "p")

	if err := store.DeleteSession(id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	sess, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected session gone, got %+v", sess)
	}
}

func TestListSessions_SortedByLastActivityDescending(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	id1, _ := store.CreateSession("m", "p")
	time.Sleep(5 * time.Millisecond)
	id2, _ := store.CreateSession("m", "p")
	time.Sleep(5 * time.Millisecond)
	id3, _ := store.CreateSession("m", "p")

	summaries, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(summaries))
	}
	if summaries[0].SessionID != id3 || summaries[2].SessionID != id1 {
		t.Errorf("unexpected order: %+v (ids: %s %s %s)", summaries, id1, id2, id3)
	}
}

func TestListSessions_SkipsCorruptedFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id, _ := store.CreateSession("m", "p")

	if err := writeAtomic(filepath.Join(dir, "bogus.json"), []byte("not json")); err != nil {
		t.Fatalf("writeAtomic: %v", err)
	}

	summaries, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions should skip corrupted entries, got error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].SessionID != id {
		t.Fatalf("expected only the valid session, got %+v", summaries)
	}
}

func TestGetSession_CorruptedFileReturnsTypedError(t *testing.T) {
	dir := t.TempDir()
	if err := writeAtomic(filepath.Join(dir, "broken.json"), []byte("{not valid")); err != nil {
		t.Fatalf("writeAtomic: %v", err)
	}

	store := NewStore(dir)
	_, err := store.GetSession("broken")
	if err == nil {
		t.Fatal("expected error for corrupted session file")
	}
	var corrupted *CorruptedSessionError
	if !asCorrupted(err, &corrupted) {
		t.Fatalf("expected CorruptedSessionError, got %v (%T)", err, err)
	}
}

func asCorrupted(err error, target **CorruptedSessionError) bool {
	if ce, ok := err.(*CorruptedSessionError); ok {
		*target = ce
		return true
	}
	return false
}

func TestWithMaxSessions_EvictsOldest(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, WithMaxSessions(2))

	id1, _ := store.CreateSession("m", "p")
	time.Sleep(5 * time.Millisecond)
	_, _ = store.CreateSession("m", "p")
	time.Sleep(5 * time.Millisecond)
	id3, _ := store.CreateSession("m", "p")

	summaries, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected bounded count of 2, got %d: %+v", len(summaries), summaries)
	}
	for _, sum := range summaries {
		if sum.SessionID == id1 {
			t.Errorf("expected oldest session %s to be evicted", id1)
		}
	}
	found3 := false
	for _, sum := range summaries {
		if sum.SessionID == id3 {
			found3 = true
		}
	}
	if !found3 {
		t.Errorf("expected newest session %s to survive eviction", id3)
	}
}

func TestPruneOlderThan_DeletesOnlyStale(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	oldID, _ := store.CreateSession("m", "p")
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	freshID, _ := store.CreateSession("m", "p")

	deleted, err := store.PruneOlderThan(cutoff)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}

	if sess, _ := store.GetSession(oldID); sess != nil {
		t.Errorf("expected old session pruned, still present: %+v", sess)
	}
	if sess, _ := store.GetSession(freshID); sess == nil {
		t.Errorf("expected fresh session to survive prune")
	}
}

func TestConcurrentWrites_DifferentSessions(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	const n = 10
	ids := make([]string, n)
	for i := range ids {
		id, err := store.CreateSession("m", "p")
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			msg := chattypes.NewTextMessage(chattypes.RoleUser, "hi "+id)
			if err := store.RecordMessage(id, msg); err != nil {
				t.Errorf("RecordMessage(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		sess, err := store.GetSession(id)
		if err != nil {
			t.Fatalf("GetSession(%s): %v", id, err)
		}
		if len(sess.Messages) != 1 {
			t.Errorf("session %s: expected 1 message, got %d", id, len(sess.Messages))
		}
	}
}

func TestConcurrentWrites_SameSessionSerializes(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	id, _ := store.CreateSession("m", "p")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := chattypes.NewTextMessage(chattypes.RoleUser, "msg")
			if err := store.RecordMessage(id, msg); err != nil {
				t.Errorf("RecordMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	sess, err := store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.Messages) != n {
		t.Fatalf("expected %d messages, lost writes under concurrency: got %d", n, len(sess.Messages))
	}
}

func TestFork_CopiesTranscriptAndRecordsParent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	sourceID, err := store.CreateSession("m", "p")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.RecordMessage(sourceID, chattypes.NewTextMessage(chattypes.RoleUser, "hi")); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	if err := store.RecordToolCall(sourceID, chattypes.ToolCall{ID: "t1", Name: "bash"}); err != nil {
		t.Fatalf("RecordToolCall: %v", err)
	}

	forkID, err := store.Fork(sourceID)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if forkID == sourceID {
		t.Fatal("Fork returned the source id instead of a new one")
	}

	fork, err := store.GetSession(forkID)
	if err != nil {
		t.Fatalf("GetSession(fork): %v", err)
	}
	if fork == nil {
		t.Fatal("forked session not found")
	}
	if fork.ParentSessionID != sourceID {
		t.Errorf("ParentSessionID = %q, want %q", fork.ParentSessionID, sourceID)
	}
	if len(fork.Messages) != 1 || len(fork.ToolCalls) != 1 {
		t.Fatalf("expected copied transcript, got %d messages, %d tool calls", len(fork.Messages), len(fork.ToolCalls))
	}

	// Mutating the fork must not mutate the source (independent copies).
	if err := store.RecordMessage(forkID, chattypes.NewTextMessage(chattypes.RoleUser, "more")); err != nil {
		t.Fatalf("RecordMessage(fork): %v", err)
	}
	source, err := store.GetSession(sourceID)
	if err != nil {
		t.Fatalf("GetSession(source): %v", err)
	}
	if len(source.Messages) != 1 {
		t.Errorf("source session was mutated by a write to its fork: %d messages", len(source.Messages))
	}

	// Reload from disk to confirm ParentSessionID round-trips through JSON.
	store2 := NewStore(dir)
	reloaded, err := store2.GetSession(forkID)
	if err != nil {
		t.Fatalf("GetSession(reloaded fork): %v", err)
	}
	if reloaded.ParentSessionID != sourceID {
		t.Errorf("ParentSessionID did not survive reload: got %q", reloaded.ParentSessionID)
	}
}

func TestFork_UnknownSourceErrors(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Fork("does-not-exist"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Fork on unknown source: got %v, want ErrSessionNotFound", err)
	}
}
