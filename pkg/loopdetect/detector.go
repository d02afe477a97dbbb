// Package loopdetect implements a small online state machine that watches
// a stream of tool calls, tool outputs, and turns for three repetition
// patterns and emits an at-most-once stop signal.
package loopdetect

import (
	"log"
	"sync"

	"github.com/jg-phare/ollm/pkg/chattypes"
)

// DefaultMaxTurns and DefaultRepeatThreshold are applied by New when a
// Config field is left at its zero value.
const (
	DefaultMaxTurns        = 50
	DefaultRepeatThreshold = 3
)

// Config holds the detector's tunable thresholds.
type Config struct {
	Enabled         bool
	MaxTurns        int
	RepeatThreshold int
}

// ListenerHandle identifies a registered listener so it can later be removed.
type ListenerHandle int

// Detector tracks per-conversation state and evaluates loop patterns.
// A Detector is not safe against unsynchronized concurrent recordX calls
// from multiple goroutines within the same conversation — callers own
// that serialization (spec §5); the internal mutex only protects the
// bookkeeping fields themselves from torn reads.
type Detector struct {
	mu sync.Mutex

	cfg Config

	turnCount    int
	toolFingers  []string
	outputs      []string
	stopped      bool
	pattern      *chattypes.LoopPattern
	listeners    map[ListenerHandle]func(chattypes.LoopPattern)
	nextHandleID ListenerHandle
}

// New constructs a Detector, filling unset Config fields with defaults.
func New(cfg Config) *Detector {
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.RepeatThreshold == 0 {
		cfg.RepeatThreshold = DefaultRepeatThreshold
	}
	return &Detector{
		cfg:       cfg,
		listeners: make(map[ListenerHandle]func(chattypes.LoopPattern)),
	}
}

// Configure merges non-zero fields of partial into the detector's config.
func (d *Detector) Configure(partial Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if partial.MaxTurns != 0 {
		d.cfg.MaxTurns = partial.MaxTurns
	}
	if partial.RepeatThreshold != 0 {
		d.cfg.RepeatThreshold = partial.RepeatThreshold
	}
	// Enabled is a plain bool; callers set it explicitly via SetEnabled.
}

// SetEnabled toggles detection on or off.
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Enabled = enabled
}

// RecordTurn increments the turn counter.
func (d *Detector) RecordTurn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turnCount++
}

// RecordToolCall appends a (name, canonical-args) fingerprint to the sliding buffer.
func (d *Detector) RecordToolCall(name string, args map[string]any) {
	fp := fingerprint(name, args)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolFingers = append(d.toolFingers, fp)
}

// RecordOutput appends an output string to the sliding buffer.
func (d *Detector) RecordOutput(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs = append(d.outputs, text)
}

// GetTurnCount returns the number of turns recorded since the last reset.
func (d *Detector) GetTurnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.turnCount
}

// IsExecutionStopped reports whether a stop signal has already fired.
func (d *Detector) IsExecutionStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// OnLoopDetected registers a listener invoked exactly once on first detection.
func (d *Detector) OnLoopDetected(cb func(chattypes.LoopPattern)) ListenerHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandleID++
	id := d.nextHandleID
	d.listeners[id] = cb
	return id
}

// OffLoopDetected removes a previously registered listener.
func (d *Detector) OffLoopDetected(handle ListenerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, handle)
}

// Reset clears buffers, the turn counter, and the stopped flag, but
// preserves registered listeners and configuration.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turnCount = 0
	d.toolFingers = nil
	d.outputs = nil
	d.stopped = false
	d.pattern = nil
}

// CheckForLoop evaluates the detection rules in priority order: turn-limit,
// repeated-tool, repeated-output. The first detection latches the detector
// and fires every listener exactly once; subsequent calls return the same
// pattern without re-invoking listeners.
func (d *Detector) CheckForLoop() *chattypes.LoopPattern {
	d.mu.Lock()

	if !d.cfg.Enabled {
		d.mu.Unlock()
		return nil
	}

	if d.stopped {
		p := *d.pattern
		d.mu.Unlock()
		return &p
	}

	pattern := d.evaluateLocked()
	if pattern == nil {
		d.mu.Unlock()
		return nil
	}

	d.stopped = true
	d.pattern = pattern
	cbs := make([]func(chattypes.LoopPattern), 0, len(d.listeners))
	for _, cb := range d.listeners {
		cbs = append(cbs, cb)
	}
	d.mu.Unlock()

	fireListeners(cbs, *pattern)

	return pattern
}

// evaluateLocked must be called with d.mu held.
func (d *Detector) evaluateLocked() *chattypes.LoopPattern {
	if d.turnCount >= d.cfg.MaxTurns {
		return &chattypes.LoopPattern{
			Type:    chattypes.LoopPatternTurnLimit,
			Details: "turn count reached the configured maximum",
			Count:   d.turnCount,
		}
	}

	if allEqualTail(d.toolFingers, d.cfg.RepeatThreshold) {
		return &chattypes.LoopPattern{
			Type:    chattypes.LoopPatternRepeatedTool,
			Details: "the same tool call repeated with identical arguments",
			Count:   d.cfg.RepeatThreshold,
		}
	}

	if allEqualTail(d.outputs, d.cfg.RepeatThreshold) {
		return &chattypes.LoopPattern{
			Type:    chattypes.LoopPatternRepeatedOutput,
			Details: "the same output text repeated",
			Count:   d.cfg.RepeatThreshold,
		}
	}

	return nil
}

// allEqualTail reports whether the last n elements of s are present and pairwise equal.
func allEqualTail(s []string, n int) bool {
	if n <= 0 || len(s) < n {
		return false
	}
	tail := s[len(s)-n:]
	for _, v := range tail[1:] {
		if v != tail[0] {
			return false
		}
	}
	return true
}

// fireListeners invokes each listener, swallowing panics so one bad
// listener never prevents the others from running.
func fireListeners(cbs []func(chattypes.LoopPattern), pattern chattypes.LoopPattern) {
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("loopdetect: listener panicked: %v", r)
				}
			}()
			cb(pattern)
		}()
	}
}
