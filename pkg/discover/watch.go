package discover

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent is the kind of filesystem mutation reported to a watcher
// callback.
type ChangeEvent string

const (
	ChangeAdd    ChangeEvent = "add"
	ChangeModify ChangeEvent = "change"
	ChangeUnlink ChangeEvent = "unlink"
)

// Disposable releases the resources backing a single watch subscription.
type Disposable interface {
	Dispose()
}

type noopDisposable struct{}

func (noopDisposable) Dispose() {}

const watchDebounce = 200 * time.Millisecond

// WatchChanges registers cb to be invoked for every add/change/unlink
// event observed under root, respecting the same ignore rules as
// DiscoverAll. Multiple independent watchers on the same root may
// coexist; disposing one does not affect the others. A root that does
// not exist or is not a directory is logged and yields a no-op
// Disposable rather than an error.
func WatchChanges(root string, cb func(event ChangeEvent, path string)) Disposable {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		log.Printf("discover: watch: %s is not a watchable directory: %v", root, err)
		return noopDisposable{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("discover: watch: failed to create watcher: %v", err)
		return noopDisposable{}
	}

	patterns := collectIgnorePatterns(root)
	if err := addTree(fsw, root, patterns); err != nil {
		log.Printf("discover: watch: failed to register %s: %v", root, err)
		fsw.Close()
		return noopDisposable{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		root:     root,
		patterns: patterns,
		watcher:  fsw,
		cb:       cb,
		cancel:   cancel,
	}
	go sub.run(ctx)
	return sub
}

func addTree(fsw *fsnotify.Watcher, dir string, patterns []string) error {
	if err := fsw.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rel := e.Name()
		if ShouldIgnore(rel, patterns) {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if err := addTree(fsw, sub, patterns); err != nil {
			log.Printf("discover: watch: skipping %s: %v", sub, err)
		}
	}
	return nil
}

type subscription struct {
	root     string
	patterns []string
	watcher  *fsnotify.Watcher
	cb       func(ChangeEvent, string)
	cancel   context.CancelFunc

	mu       sync.Mutex
	disposed bool
}

// Dispose detaches this subscription. After it returns, no further events
// fire on its callback.
func (s *subscription) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.cancel()
}

func (s *subscription) run(ctx context.Context) {
	defer s.watcher.Close()

	var timers = map[string]*time.Timer{}
	var timersMu sync.Mutex

	fire := func(event ChangeEvent, path string) {
		s.mu.Lock()
		disposed := s.disposed
		s.mu.Unlock()
		if disposed {
			return
		}
		s.cb(event, path)
	}

	for {
		select {
		case <-ctx.Done():
			timersMu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			timersMu.Unlock()
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			rel, _ := filepath.Rel(s.root, ev.Name)
			if ShouldIgnore(rel, s.patterns) || ShouldIgnore(filepath.Base(ev.Name), s.patterns) {
				continue
			}

			var kind ChangeEvent
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = ChangeUnlink
			case ev.Op&fsnotify.Create != 0:
				kind = ChangeAdd
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTree(s.watcher, ev.Name, s.patterns)
				}
			case ev.Op&fsnotify.Write != 0:
				kind = ChangeModify
			default:
				continue
			}

			path := ev.Name
			timersMu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(watchDebounce, func() {
				fire(kind, path)
			})
			timersMu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("discover: watch error on %s: %v", s.root, err)
		}
	}
}
