package main

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
	"github.com/pragnyanramtha/longmem/ctxwindow"
	"github.com/pragnyanramtha/longmem/distiller"
	"github.com/pragnyanramtha/longmem/llmclient"
	"github.com/pragnyanramtha/longmem/memory/embedder/mock"
	"github.com/pragnyanramtha/longmem/memory/store/sqlite"
	"github.com/pragnyanramtha/longmem/orchestrator"
	"github.com/pragnyanramtha/longmem/retriever"
)

// runtime bundles what the commands use: the orchestrator and the store it
// wraps. The embedder, database handle, and LLM client are acquired once in
// buildRuntime; Close releases the database handle and its file lock through
// the orchestrator and does not close the embedder or the LLM client.
type runtime struct {
	orch  *orchestrator.Orchestrator
	store core.Store
}

func (r *runtime) Close() error {
	return r.orch.Close()
}

// buildRuntime wires the five subsystems from a merged fileConfig and
// environment, following the demo's configuration-loading convention:
// godotenv first, then explicit env vars, then file config overrides for
// anything the file sets non-zero.
func buildRuntime(ctx context.Context, fc *fileConfig, log zerolog.Logger) (*runtime, error) {
	dbPath := fc.DBPath
	if dbPath == "" {
		dbPath = "longmem.db"
	}
	dim := fc.EmbeddingDim
	if dim <= 0 {
		dim = mock.DefaultDimensions
	}

	store, err := sqlite.Open(ctx, dbPath, dim, log.With().Str("component", "store").Logger())
	if err != nil {
		return nil, fmt.Errorf("%w: open store: %v", core.ErrStore, err)
	}

	embed, err := buildEmbedder(fc, dim, log.With().Str("component", "embedder").Logger())
	if err != nil {
		store.Close()
		return nil, err
	}

	chat, err := buildChatClient(fc, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	windowCfg := *ctxwindow.DefaultConfig
	if fc.ContextLimit > 0 {
		windowCfg.MaxTokens = fc.ContextLimit
	}
	if fc.FlushThreshold > 0 {
		windowCfg.FlushThreshold = fc.FlushThreshold
	}
	if fc.KeepTailN > 0 {
		windowCfg.KeepTailN = fc.KeepTailN
	}
	window, err := ctxwindow.New(&windowCfg, ctxwindow.ApproxTokenizer{})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("context window: %w", err)
	}

	retrCfg := &retriever.Config{TopK: fc.TopK, RRFK: fc.RRFK}
	retr := retriever.New(store, embed, retrCfg, log.With().Str("component", "retriever").Logger())

	var distCfg *distiller.Config
	if fc.DistillMaxTokens > 0 {
		distCfg = &distiller.Config{MaxOutputTokens: fc.DistillMaxTokens}
	}
	dist := distiller.New(chat, distCfg, log.With().Str("component", "distiller").Logger())

	orch, err := orchestrator.New(ctx, store, embed, chat, window, retr, dist, nil,
		orchestrator.WithLogger(log.With().Str("component", "orchestrator").Logger()))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return &runtime{orch: orch, store: store}, nil
}

func buildChatClient(fc *fileConfig, log zerolog.Logger) (core.ChatClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is required", core.ErrLLM)
	}
	sdk := anthropic.NewClient(option.WithAPIKey(apiKey))
	cfg := llmclient.Config{Model: fc.Model}
	return llmclient.New(&sdk, cfg, log.With().Str("component", "llmclient").Logger()), nil
}
