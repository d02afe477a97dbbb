// Package environ implements a pure allow/deny filter over process
// environment maps, used by the shell executor to keep secrets out of
// spawned commands.
package environ

import (
	"log"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultAllowList is always kept, even if a deny pattern would otherwise match.
var DefaultAllowList = []string{
	"PATH", "HOME", "USER", "SHELL", "TERM", "LANG", "LC_ALL",
	"LC_COLLATE", "LC_CTYPE", "LC_MESSAGES", "LC_MONETARY",
	"LC_NUMERIC", "LC_TIME",
}

// DefaultDenyPatterns matches secret-shaped variable names by convention.
var DefaultDenyPatterns = []string{
	"*_KEY", "*_SECRET", "*_TOKEN", "*_PASSWORD", "*_CREDENTIAL",
	"AWS_*", "GITHUB_*",
}

// Sanitizer filters a string->string environment map by allow list and
// deny glob patterns. The zero value is not usable; construct with New.
type Sanitizer struct {
	mu           sync.RWMutex
	allowList    map[string]bool
	allowOrdered []string
	denyPatterns []string
}

// New returns a Sanitizer configured with the package defaults.
func New() *Sanitizer {
	s := &Sanitizer{}
	s.setAllowList(DefaultAllowList)
	s.denyPatterns = append([]string(nil), DefaultDenyPatterns...)
	return s
}

func (s *Sanitizer) setAllowList(list []string) {
	s.allowOrdered = append([]string(nil), list...)
	s.allowList = make(map[string]bool, len(list))
	for _, k := range list {
		s.allowList[k] = true
	}
}

// Options configures a Sanitizer's lists; either may be nil to keep defaults.
type Options struct {
	AllowList    []string
	DenyPatterns []string
}

// Configure replaces a list only when the provided list is non-empty and
// every pattern in it is well-formed. Invalid patterns are logged and
// ignored, leaving the existing list untouched.
func (s *Sanitizer) Configure(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(opts.AllowList) > 0 {
		s.setAllowList(opts.AllowList)
	}

	if len(opts.DenyPatterns) > 0 {
		wellFormed := true
		for _, pattern := range opts.DenyPatterns {
			if _, err := doublestar.Match(pattern, "probe"); err != nil {
				log.Printf("environ: deny list ignored, invalid pattern %q: %v", pattern, err)
				wellFormed = false
			}
		}
		if wellFormed {
			s.denyPatterns = append([]string(nil), opts.DenyPatterns...)
		}
	}
}

// IsAllowed reports whether key is in the allow list by exact match.
func (s *Sanitizer) IsAllowed(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowList[key]
}

// IsDenied reports whether key matches any deny glob pattern.
func (s *Sanitizer) IsDenied(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDeniedLocked(key)
}

func (s *Sanitizer) isDeniedLocked(key string) bool {
	for _, pattern := range s.denyPatterns {
		if matched, _ := doublestar.Match(pattern, key); matched {
			return true
		}
	}
	return false
}

// GetAllowList returns a copy of the current allow list.
func (s *Sanitizer) GetAllowList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.allowOrdered...)
}

// GetDenyPatterns returns a copy of the current deny pattern list.
func (s *Sanitizer) GetDenyPatterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.denyPatterns...)
}

// Sanitize returns a new map containing every key that is either allow-listed
// by exact match, or not matched by any deny pattern. The input is never mutated.
func (s *Sanitizer) Sanitize(env map[string]string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(env))
	for k, v := range env {
		if s.allowList[k] || !s.isDeniedLocked(k) {
			out[k] = v
		}
	}
	return out
}
