package core

import "errors"

// Sentinel error kinds. Callers compare with errors.Is; components wrap
// these with fmt.Errorf("...: %w", ErrX) to add call-site context.
var (
	// ErrStore covers I/O, corruption, and schema-mismatch failures in the
	// memory store. Fatal at startup; at runtime the orchestrator aborts
	// the turn.
	ErrStore = errors.New("store error")

	// ErrEmbedding indicates the embedding model is unavailable. Fatal at
	// startup; mid-run the retriever degrades to FTS-only search.
	ErrEmbedding = errors.New("embedding error")

	// ErrLLM indicates a transport failure on the chat call. The turn
	// fails; no half-turn is logged.
	ErrLLM = errors.New("llm error")

	// ErrDistillParse indicates the distiller's JSON response was
	// unrecoverable even after best-effort repair. The delta is treated as
	// empty.
	ErrDistillParse = errors.New("distill parse error")

	// ErrDuplicateKey is raised by Store.Add when an active row with the
	// same key already exists. The orchestrator converts this into an
	// update.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrContextConfig indicates an invalid context-window configuration.
	// ctxwindow.New returns it for out-of-range bounds, which is fatal at
	// startup. A keep_tail_n too large relative to flush_threshold for reset
	// to clear the threshold is not detected at startup: Reset returns it
	// when a flush runs.
	ErrContextConfig = errors.New("context config error")

	// ErrCancellation indicates the caller cancelled the turn. Non-fatal;
	// no turn is logged, though last_used_turn updates already made by
	// retrieval are kept.
	ErrCancellation = errors.New("turn cancelled")

	// ErrNotFound indicates a lookup by ID found no matching row.
	ErrNotFound = errors.New("not found")
)
