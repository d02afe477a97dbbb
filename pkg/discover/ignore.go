// Package discover implements the ignore-aware recursive file walker and
// change watcher used to build the agent's view of the working tree.
package discover

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// builtinIgnores are always applied regardless of .gitignore/.ollmignore
// contents, matching common directories nobody wants walked.
var builtinIgnores = []string{
	"node_modules", "node_modules/**",
	".git", ".git/**",
	"dist", "dist/**",
	"build", "build/**",
	".next", ".next/**",
	".cache", ".cache/**",
}

// loadIgnoreFile reads newline-delimited glob patterns from path, skipping
// blank lines and comments. A missing file yields no patterns and no error.
func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// collectIgnorePatterns composes the built-in list with .gitignore and
// .ollmignore found directly in root, in that order.
func collectIgnorePatterns(root string) []string {
	patterns := append([]string{}, builtinIgnores...)

	for _, name := range []string{".gitignore", ".ollmignore"} {
		found, err := loadIgnoreFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		patterns = append(patterns, found...)
	}
	return patterns
}

// ShouldIgnore reports whether path matches any of patterns. path is
// matched both as given and against its basename, since ignore files mix
// bare names ("node_modules") with path-shaped globs ("**/*.log"). An
// empty pattern list or empty path always returns false.
func ShouldIgnore(path string, patterns []string) bool {
	if path == "" || len(patterns) == 0 {
		return false
	}

	base := filepath.Base(path)
	clean := filepath.ToSlash(path)

	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, clean); matched {
			return true
		}
		// A bare directory name like "dist" should also match nested
		// occurrences, e.g. "pkg/dist/out.js".
		if !strings.Contains(pattern, "/") {
			for _, part := range strings.Split(clean, "/") {
				if matched, _ := doublestar.Match(pattern, part); matched {
					return true
				}
			}
		}
	}
	return false
}
