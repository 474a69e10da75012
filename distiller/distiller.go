// Package distiller turns a flushed context window into a Delta of memory
// actions by prompting the chat model for structured JSON and repairing the
// common ways a model response falls short of valid JSON: a trailing
// explanation, an unterminated final object, or a wrapping markdown fence.
package distiller

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

// Config configures the distiller.
type Config struct {
	// MaxOutputTokens bounds the distillation JSON response. Default: 2000.
	MaxOutputTokens int
}

// DefaultConfig are the distiller's defaults.
var DefaultConfig = &Config{MaxOutputTokens: 2000}

// Distiller extracts a Delta from a conversation window and the memories
// currently active, via a JSONClient.
type Distiller struct {
	client core.JSONClient
	cfg    Config
	log    zerolog.Logger
}

// New constructs a Distiller. cfg may be nil to use DefaultConfig.
func New(client core.JSONClient, cfg *Config, log zerolog.Logger) *Distiller {
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &Distiller{client: client, cfg: *cfg, log: log}
}

// Distill prompts the model with the window's turns and the active memory
// set, and parses the response into a Delta. A parse failure that survives
// best-effort repair is not fatal: it produces an empty Delta and
// core.ErrDistillParse is returned wrapped so callers can log it, but the
// turn itself is unaffected.
func (d *Distiller) Distill(ctx context.Context, turns []core.TurnRecord, active []core.Memory) (core.Delta, error) {
	prompt := buildPrompt(turns, active)

	raw, err := d.client.JSONComplete(ctx, prompt, d.cfg.MaxOutputTokens)
	if err != nil {
		return core.Delta{}, fmt.Errorf("distiller: json_complete: %w", err)
	}

	delta, err := parseDelta(raw)
	if err != nil {
		d.log.Warn().Err(err).Str("raw_prefix", previewText(raw, 200)).Msg("distiller: unrecoverable response, treating delta as empty")
		return core.Delta{}, fmt.Errorf("%w: %v", core.ErrDistillParse, err)
	}
	return delta, nil
}

func previewText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func buildPrompt(turns []core.TurnRecord, active []core.Memory) string {
	var b strings.Builder
	b.WriteString("You are extracting durable memory updates from a conversation window.\n")
	b.WriteString("Respond with a JSON object: {\"actions\": [...]}.\n")
	b.WriteString("Each action has: action (add|update|keep|expire), target_id (for update/keep/expire),")
	b.WriteString(" type, category, key, value, confidence (0-1), for add/update.\n\n")

	b.WriteString("Currently active memories:\n")
	if len(active) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range active {
		fmt.Fprintf(&b, "- id=%s type=%s category=%s key=%q value=%q confidence=%.2f\n",
			m.ID, m.Type, m.Category, m.Key, m.Value, m.Confidence)
	}

	b.WriteString("\nConversation window:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "[%d] %s: %s\n", t.TurnID, t.Role, t.Content)
	}
	return b.String()
}
