package ctxwindow

import (
	"errors"
	"testing"

	"github.com/pragnyanramtha/longmem/core"
)

type fixedTokenizer struct{ n int }

func (f fixedTokenizer) CountTokens(text string) int { return f.n }

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []*Config{
		{MaxTokens: 0, FlushThreshold: 0.8, KeepTailN: 4},
		{MaxTokens: 100, FlushThreshold: 0, KeepTailN: 4},
		{MaxTokens: 100, FlushThreshold: 1.5, KeepTailN: 4},
		{MaxTokens: 100, FlushThreshold: 0.8, KeepTailN: -1},
	}
	for i, cfg := range cases {
		if _, err := New(cfg, fixedTokenizer{n: 1}); !errors.Is(err, core.ErrContextConfig) {
			t.Fatalf("case %d: expected ErrContextConfig, got %v", i, err)
		}
	}
}

func TestAppendAndTotalTokens(t *testing.T) {
	w, err := New(&Config{MaxTokens: 100, FlushThreshold: 0.8, KeepTailN: 2}, fixedTokenizer{n: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.SetSystemPrompt("system")
	w.Append(core.RoleUser, "hi")
	w.Append(core.RoleAssistant, "hello")

	if got := w.TotalTokens(); got != 30 {
		t.Fatalf("expected 30 tokens (10 system + 10 + 10), got %d", got)
	}
}

func TestNeedsFlushCrossesThreshold(t *testing.T) {
	w, err := New(&Config{MaxTokens: 100, FlushThreshold: 0.5, KeepTailN: 1}, fixedTokenizer{n: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		if w.NeedsFlush() {
			t.Fatalf("should not need flush before threshold, turn %d, total %d", i, w.TotalTokens())
		}
		w.Append(core.RoleUser, "x")
	}
	if !w.NeedsFlush() {
		t.Fatalf("expected NeedsFlush true at or above threshold, total %d", w.TotalTokens())
	}
}

func TestResetKeepsTail(t *testing.T) {
	w, err := New(&Config{MaxTokens: 100, FlushThreshold: 0.8, KeepTailN: 2}, fixedTokenizer{n: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Append(core.RoleUser, "a")
	w.Append(core.RoleAssistant, "b")
	w.Append(core.RoleUser, "c")
	w.Append(core.RoleAssistant, "d")

	if err := w.Reset(2); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if w.TurnCount() != 2 {
		t.Fatalf("expected 2 turns after reset, got %d", w.TurnCount())
	}
	msgs := w.MessagesForAPI()
	if msgs[len(msgs)-1].Content != "d" || msgs[len(msgs)-2].Content != "c" {
		t.Fatalf("expected the last two turns to survive, got %+v", msgs)
	}
}

func TestResetZeroClearsAllTurns(t *testing.T) {
	w, err := New(&Config{MaxTokens: 100, FlushThreshold: 0.8, KeepTailN: 0}, fixedTokenizer{n: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Append(core.RoleUser, "a")
	if err := w.Reset(0); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if w.TurnCount() != 0 {
		t.Fatalf("expected 0 turns after Reset(0), got %d", w.TurnCount())
	}
}

func TestResetRejectsTailStillOverThreshold(t *testing.T) {
	w, err := New(&Config{MaxTokens: 100, FlushThreshold: 0.5, KeepTailN: 10}, fixedTokenizer{n: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		w.Append(core.RoleUser, "x")
	}

	if err := w.FlushToTail(); !errors.Is(err, core.ErrContextConfig) {
		t.Fatalf("expected ErrContextConfig when keep_tail_n leaves utilization at or above threshold, got %v", err)
	}
}

func TestMessagesForAPIIncludesSystemPromptFirst(t *testing.T) {
	w, err := New(&Config{MaxTokens: 100, FlushThreshold: 0.8, KeepTailN: 2}, fixedTokenizer{n: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.SetSystemPrompt("be helpful")
	w.Append(core.RoleUser, "hi")

	msgs := w.MessagesForAPI()
	if len(msgs) != 2 || msgs[0].Role != core.RoleSystem || msgs[0].Content != "be helpful" {
		t.Fatalf("expected system prompt first, got %+v", msgs)
	}
}

func TestApproxTokenizer(t *testing.T) {
	tok := ApproxTokenizer{}
	if tok.CountTokens("") != 0 {
		t.Fatalf("expected 0 tokens for empty string")
	}
	if tok.CountTokens("ab") != 1 {
		t.Fatalf("expected minimum 1 token for short non-empty string")
	}
	if tok.CountTokens("abcdefgh") != 2 {
		t.Fatalf("expected 2 tokens for 8 chars, got %d", tok.CountTokens("abcdefgh"))
	}
}
