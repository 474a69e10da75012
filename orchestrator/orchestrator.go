// Package orchestrator owns the per-turn pipeline: retrieve, rebuild system
// prompt, chat, log, maybe-flush. It wires together the context window, the
// hybrid retriever, the distiller, the store, and a chat client, and is the
// single place an internal error becomes a user-visible result.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
	"github.com/pragnyanramtha/longmem/ctxwindow"
	"github.com/pragnyanramtha/longmem/distiller"
	"github.com/pragnyanramtha/longmem/retriever"
)

// DefaultSystemPromptTemplate is the static portion of every rebuilt system
// prompt, ahead of the profile and per-query memory sections.
const DefaultSystemPromptTemplate = "You are a helpful assistant with long-term memory of this conversation."

// Config configures the orchestrator's own tunables. The subsystems it wires
// (context window, retriever, distiller) take their own Config values at
// construction; this struct only covers what the orchestrator itself needs.
type Config struct {
	// SystemPromptTemplate is the static template prefix. Default:
	// DefaultSystemPromptTemplate.
	SystemPromptTemplate string
}

// DefaultConfig are the orchestrator's defaults.
var DefaultConfig = &Config{
	SystemPromptTemplate: DefaultSystemPromptTemplate,
}

func (c Config) withDefaults() Config {
	if c.SystemPromptTemplate == "" {
		c.SystemPromptTemplate = DefaultConfig.SystemPromptTemplate
	}
	return c
}

// Option configures the Orchestrator at construction.
type Option func(*Orchestrator)

// WithLogger attaches a structured logger. Default: a disabled logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// Orchestrator owns current_turn_id, segment_start_turn, and total_flushes,
// and serializes all per-turn work. There is no internal parallelism: one
// turn completes before the next begins.
type Orchestrator struct {
	store    core.Store
	embed    core.Embedder
	chat     core.ChatClient
	window   *ctxwindow.Window
	retrieve *retriever.Retriever
	distill  *distiller.Distiller
	cfg      Config
	log      zerolog.Logger

	currentTurnID    int
	segmentStartTurn int
	totalFlushes     int
}

// New constructs an Orchestrator and rebuilds its startup state from the
// store: current_turn_id is resumed from the last logged turn, and the
// system prompt is seeded from the profile snapshot with no query memories
// yet, per the startup procedure. cfg may be nil to use DefaultConfig.
func New(
	ctx context.Context,
	store core.Store,
	embed core.Embedder,
	chat core.ChatClient,
	window *ctxwindow.Window,
	retrieve *retriever.Retriever,
	distill *distiller.Distiller,
	cfg *Config,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}
	o := &Orchestrator{
		store:    store,
		embed:    embed,
		chat:     chat,
		window:   window,
		retrieve: retrieve,
		distill:  distill,
		cfg:      cfg.withDefaults(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	last, err := store.LastTurnID(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: last turn id: %w", err)
	}
	o.currentTurnID = last
	o.segmentStartTurn = last + 1

	if err := o.rebuildSystemPrompt(ctx, nil); err != nil {
		return nil, fmt.Errorf("orchestrator: startup system prompt: %w", err)
	}
	return o, nil
}

// Close releases the store's underlying resources. It is safe to call
// exactly once; callers at the process boundary should defer it immediately
// after New succeeds so it runs on every exit path, including a panicking
// turn (recover it at the call site, then Close, then re-panic if desired).
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

// TurnResult is the envelope returned to the caller after each turn.
type TurnResult struct {
	Response           string
	TurnID             int
	ContextUtilization string
	ContextTokens      int
	RetrievalMS        float64
	TotalMS            float64
	FlushTriggered     bool
	TotalFlushes       int
	TotalMemories      int
	ActiveMemories     []ActiveMemoryView
}

// ActiveMemoryView is one entry of the turn result's active_memories list.
type ActiveMemoryView struct {
	MemoryID     string
	Content      string
	OriginTurn   int
	LastUsedTurn int
	Type         core.MemoryType
	Confidence   float64
}

// Turn runs one user turn through the pipeline: retrieve, rebuild system
// prompt, chat, log, maybe-flush. A context cancellation before or during
// the chat call returns core.ErrCancellation wrapped; an LLM transport
// failure returns core.ErrLLM wrapped. In both cases no turn row is logged
// and current_turn_id is unchanged, but last_used_turn updates already made
// by retrieval are kept.
func (o *Orchestrator) Turn(ctx context.Context, message string) (TurnResult, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return TurnResult{}, fmt.Errorf("%w: %v", core.ErrCancellation, err)
	}

	nextTurnID := o.currentTurnID + 1

	retrievalStart := time.Now()
	results, err := o.retrieve.Retrieve(ctx, message, nextTurnID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: retrieve: %w", err)
	}
	retrievalMS := float64(time.Since(retrievalStart).Microseconds()) / 1000.0

	if err := o.rebuildSystemPrompt(ctx, results); err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: rebuild system prompt: %w", err)
	}
	o.window.Append(core.RoleUser, message)

	reply, err := o.chat.Chat(ctx, o.window.MessagesForAPI())
	if err != nil {
		if ctx.Err() != nil {
			return TurnResult{}, fmt.Errorf("%w: %v", core.ErrCancellation, ctx.Err())
		}
		return TurnResult{}, fmt.Errorf("%w: %v", core.ErrLLM, err)
	}
	o.window.Append(core.RoleAssistant, reply)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Memory.ID)
	}
	// log_turn assigns the authoritative, store-owned turn_id; current_turn_id
	// tracks that counter exactly (not a separate per-user-message count) so
	// a restart resumes from store.LastTurnID() with no divergence. One user
	// turn advances it by two: the user row, then the assistant row.
	if _, err := o.store.LogTurn(ctx, core.RoleUser, message, ids); err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: log user turn: %w", err)
	}
	assistantTurnID, err := o.store.LogTurn(ctx, core.RoleAssistant, reply, nil)
	if err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: log assistant turn: %w", err)
	}
	o.currentTurnID = assistantTurnID

	flushTriggered := false
	if o.window.NeedsFlush() {
		if err := o.Flush(ctx); err != nil {
			o.log.Warn().Err(err).Msg("orchestrator: flush failed, context left unreset")
		} else {
			flushTriggered = true
		}
	}

	result, err := o.buildResult(ctx, reply, retrievalMS, time.Since(start), flushTriggered)
	if err != nil {
		return TurnResult{}, err
	}
	return result, nil
}

// rebuildSystemPrompt composes the static template, the profile section, and
// the per-query memories section, then installs it into the context window.
func (o *Orchestrator) rebuildSystemPrompt(ctx context.Context, results []core.RetrievalResult) error {
	profile, err := o.store.ProfileSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("profile snapshot: %w", err)
	}
	prompt := composeSystemPrompt(o.cfg.SystemPromptTemplate, profile, results)
	o.window.SetSystemPrompt(prompt)
	return nil
}

func (o *Orchestrator) buildResult(ctx context.Context, reply string, retrievalMS float64, total time.Duration, flushTriggered bool) (TurnResult, error) {
	active, err := o.store.GetActive(ctx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("orchestrator: get active: %w", err)
	}
	views := make([]ActiveMemoryView, 0, len(active))
	for _, m := range active {
		views = append(views, ActiveMemoryView{
			MemoryID:     m.ID,
			Content:      fmt.Sprintf("%s: %s", m.Key, m.Value),
			OriginTurn:   m.SourceTurn,
			LastUsedTurn: m.LastUsedTurn,
			Type:         m.Type,
			Confidence:   m.Confidence,
		})
	}

	return TurnResult{
		Response:           reply,
		TurnID:             o.currentTurnID,
		ContextUtilization: fmt.Sprintf("%d%%", int(o.window.Utilization()*100)),
		ContextTokens:      o.window.TotalTokens(),
		RetrievalMS:        retrievalMS,
		TotalMS:            float64(total.Microseconds()) / 1000.0,
		FlushTriggered:     flushTriggered,
		TotalFlushes:       o.totalFlushes,
		TotalMemories:      len(active),
		ActiveMemories:     views,
	}, nil
}
