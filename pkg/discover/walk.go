package discover

import (
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jg-phare/ollm/pkg/chattypes"
)

// Options configures DiscoverAll.
type Options struct {
	// MaxDepth limits recursion; 0 means only entries directly in root.
	// Nil means unbounded.
	MaxDepth *int

	IncludePatterns []string
	ExcludePatterns []string

	// FollowSymlinks enables descending into symlinked directories. Cycle
	// detection via a set of visited resolved target paths still applies.
	FollowSymlinks bool
}

// DiscoverAll walks root and returns every file and directory entry not
// excluded by ignore rules, in deterministic (lexically sorted per
// directory) order.
func DiscoverAll(root string, opts Options) ([]chattypes.FileEntry, error) {
	patterns := collectIgnorePatterns(root)
	patterns = append(patterns, opts.ExcludePatterns...)

	w := &walker{
		root:     root,
		opts:     opts,
		patterns: patterns,
		visited:  make(map[string]bool),
	}
	return w.walk(root, 0)
}

type walker struct {
	root     string
	opts     Options
	patterns []string
	visited  map[string]bool
}

func (w *walker) withinDepth(depth int) bool {
	if w.opts.MaxDepth == nil {
		return true
	}
	return depth <= *w.opts.MaxDepth
}

func (w *walker) walk(dir string, depth int) ([]chattypes.FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("discover: skipping inaccessible directory %s: %v", dir, err)
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
	}

	var out []chattypes.FileEntry
	for _, name := range names {
		entry := byName[name]
		absPath := filepath.Join(dir, name)
		relPath, _ := filepath.Rel(w.root, absPath)

		if ShouldIgnore(relPath, w.patterns) || ShouldIgnore(name, w.patterns) {
			continue
		}
		if len(w.opts.IncludePatterns) > 0 && !matchesAny(relPath, name, w.opts.IncludePatterns) {
			if !entry.IsDir() {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			log.Printf("discover: skipping unreadable entry %s: %v", absPath, err)
			continue
		}

		isSymlink := info.Mode()&os.ModeSymlink != 0
		isDir := entry.IsDir()

		if isSymlink {
			if !w.opts.FollowSymlinks {
				continue
			}
			target, err := filepath.EvalSymlinks(absPath)
			if err != nil {
				log.Printf("discover: skipping broken symlink %s: %v", absPath, err)
				continue
			}
			targetInfo, err := os.Stat(target)
			if err != nil {
				continue
			}
			isDir = targetInfo.IsDir()
			if isDir {
				if w.visited[target] {
					continue
				}
				w.visited[target] = true
			}
			info = targetInfo
		}

		entryType := chattypes.FileEntryFile
		if isDir {
			entryType = chattypes.FileEntryDirectory
		}

		if len(w.opts.IncludePatterns) == 0 || isDir || matchesAny(relPath, name, w.opts.IncludePatterns) {
			out = append(out, chattypes.FileEntry{
				Path:         absPath,
				RelativePath: relPath,
				Type:         entryType,
				Size:         info.Size(),
				Modified:     info.ModTime(),
			})
		}

		if isDir && w.withinDepth(depth+1) {
			children, err := w.walk(absPath, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		}
	}

	return out, nil
}

func matchesAny(relPath, base string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ShouldIgnore(relPath, []string{p}) {
			return true
		}
	}
	return false
}
