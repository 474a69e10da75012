// Package ctxwindow is the Context Manager: a token-accounted sliding window
// over the active conversation, used to decide when the distiller must run
// and what gets sent to the chat model on the next turn.
package ctxwindow

import (
	"fmt"

	"github.com/pragnyanramtha/longmem/core"
)

// Tokenizer counts tokens in a string. Implementations may be exact
// (model-specific BPE) or approximate (character/4 heuristics); the window
// only needs a consistent count, not a particular scheme.
type Tokenizer interface {
	CountTokens(text string) int
}

// Config holds the window's sizing policy.
type Config struct {
	// MaxTokens is the budget the window must stay under before a flush is
	// required. Default: 8192.
	MaxTokens int

	// FlushThreshold is the fraction of MaxTokens, in (0,1], at which
	// NeedsFlush starts reporting true. Default: 0.70.
	FlushThreshold float64

	// KeepTailN is how many of the most recent turns survive a Reset.
	// Default: 4.
	KeepTailN int
}

// DefaultConfig are sensible defaults for an 8k-token chat model budget.
var DefaultConfig = &Config{
	MaxTokens:      8192,
	FlushThreshold: 0.70,
	KeepTailN:      4,
}

func (c Config) thresholdTokens() int {
	return int(float64(c.MaxTokens) * c.FlushThreshold)
}

type turnEntry struct {
	role    core.Role
	content string
	tokens  int
}

// Window is the sliding token-accounted context. Not safe for concurrent
// use; the orchestrator owns one per conversation and calls it from a single
// goroutine.
type Window struct {
	cfg Config
	tok Tokenizer

	systemPrompt string
	systemTokens int
	turns        []turnEntry
}

// New validates cfg's structural bounds (positive MaxTokens, FlushThreshold
// in (0,1], non-negative KeepTailN) and constructs a Window. It cannot
// statically catch a KeepTailN that is too large relative to FlushThreshold:
// with no turns appended yet, there is nothing to measure utilization
// against. That check is enforced dynamically by Reset/FlushToTail instead,
// the first time there is real content to test it on.
func New(cfg *Config, tok Tokenizer) (*Window, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive", core.ErrContextConfig)
	}
	if cfg.FlushThreshold <= 0 || cfg.FlushThreshold > 1 {
		return nil, fmt.Errorf("%w: flush_threshold must be in (0,1]", core.ErrContextConfig)
	}
	if cfg.KeepTailN < 0 {
		return nil, fmt.Errorf("%w: keep_tail_n must be non-negative", core.ErrContextConfig)
	}
	return &Window{cfg: *cfg, tok: tok}, nil
}

// SetSystemPrompt replaces the window's system prompt.
func (w *Window) SetSystemPrompt(text string) {
	w.systemPrompt = text
	w.systemTokens = w.tok.CountTokens(text)
}

// Append adds one turn to the window.
func (w *Window) Append(role core.Role, content string) {
	w.turns = append(w.turns, turnEntry{role: role, content: content, tokens: w.tok.CountTokens(content)})
}

// TotalTokens is the system prompt plus every turn currently held.
func (w *Window) TotalTokens() int {
	total := w.systemTokens
	for _, t := range w.turns {
		total += t.tokens
	}
	return total
}

// Utilization is TotalTokens as a fraction of MaxTokens.
func (w *Window) Utilization() float64 {
	if w.cfg.MaxTokens == 0 {
		return 0
	}
	return float64(w.TotalTokens()) / float64(w.cfg.MaxTokens)
}

// NeedsFlush reports whether the window has crossed FlushThreshold.
func (w *Window) NeedsFlush() bool {
	return w.TotalTokens() >= w.cfg.thresholdTokens()
}

// Reset drops every turn but the most recent keepTailN, leaving the system
// prompt untouched. Called after a successful distillation flush. Returns
// core.ErrContextConfig if the kept tail alone still leaves utilization at
// or above FlushThreshold, since that would make NeedsFlush permanently true
// and no further flush could ever bring the window back under budget.
func (w *Window) Reset(keepTailN int) error {
	if keepTailN <= 0 {
		w.turns = nil
		return nil
	}
	if keepTailN < len(w.turns) {
		tail := make([]turnEntry, keepTailN)
		copy(tail, w.turns[len(w.turns)-keepTailN:])
		w.turns = tail
	}
	if w.NeedsFlush() {
		return fmt.Errorf("%w: keep_tail_n too large for flush_threshold: utilization %.2f still at or above threshold after reset", core.ErrContextConfig, w.Utilization())
	}
	return nil
}

// FlushToTail resets to the configured KeepTailN.
func (w *Window) FlushToTail() error {
	return w.Reset(w.cfg.KeepTailN)
}

// MessagesForAPI renders the window as a chat message slice: the system
// prompt first (if set), then every turn in order.
func (w *Window) MessagesForAPI() []core.ChatMessage {
	msgs := make([]core.ChatMessage, 0, len(w.turns)+1)
	if w.systemPrompt != "" {
		msgs = append(msgs, core.ChatMessage{Role: core.RoleSystem, Content: w.systemPrompt})
	}
	for _, t := range w.turns {
		msgs = append(msgs, core.ChatMessage{Role: t.role, Content: t.content})
	}
	return msgs
}

// TurnCount returns the number of turns currently held (excludes the system
// prompt).
func (w *Window) TurnCount() int {
	return len(w.turns)
}
