// Package retriever is the hybrid retriever: it embeds the query, searches
// both the vector and FTS indexes with overfetch, and fuses the two ranked
// lists with Reciprocal Rank Fusion. Scoring follows the same shape as the
// RRF fusion used across the retrieved pack's RAG pipelines (1/(k+rank) per
// list, summed), but keeps rank-based tie-breaking rather than a rank-sum
// shortcut, so two candidates with the same fused score are ordered the same
// way every time regardless of fusion weighting.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
)

// DefaultRRFK is the RRF denominator constant, matching the value the
// retrieved pack's RAG fusion code defaults to.
const DefaultRRFK = 60

// DefaultOverfetchFactor multiplies TopK when querying each underlying
// index, so fusion has enough candidates from both lists to rank fairly.
const DefaultOverfetchFactor = 3

// Config configures the retriever.
type Config struct {
	// TopK is the number of fused results to return. Default: 5.
	TopK int

	// RRFK is the RRF denominator constant. Default: 60.
	RRFK int

	// OverfetchFactor multiplies TopK for the per-index fetch size.
	// Default: 3.
	OverfetchFactor int
}

// DefaultConfig are the retriever's defaults.
var DefaultConfig = &Config{
	TopK:            5,
	RRFK:            DefaultRRFK,
	OverfetchFactor: DefaultOverfetchFactor,
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultConfig.TopK
	}
	if c.RRFK <= 0 {
		c.RRFK = DefaultConfig.RRFK
	}
	if c.OverfetchFactor <= 0 {
		c.OverfetchFactor = DefaultConfig.OverfetchFactor
	}
	return c
}

// Retriever is the hybrid retriever.
type Retriever struct {
	store core.Store
	embed core.Embedder
	cfg   Config
	log   zerolog.Logger
}

// New constructs a Retriever over store and embed. cfg may be nil to use
// DefaultConfig.
func New(store core.Store, embed core.Embedder, cfg *Config, log zerolog.Logger) *Retriever {
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &Retriever{store: store, embed: embed, cfg: cfg.withDefaults(), log: log}
}

// Retrieve embeds query, fetches overfetched candidate lists from both
// indexes, fuses them with RRF, and touches (updates last_used_turn on)
// every memory returned in the top TopK before returning. An empty store
// returns an empty, non-error result.
func (r *Retriever) Retrieve(ctx context.Context, query string, turnID int) ([]core.RetrievalResult, error) {
	active, err := r.store.ActiveCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("retriever: active count: %w", err)
	}
	if active == 0 {
		return nil, nil
	}

	fetchN := r.cfg.TopK * r.cfg.OverfetchFactor

	embedding, err := r.embed.Embed(ctx, query)
	if err != nil {
		r.log.Warn().Err(err).Msg("retriever: embedding unavailable, degrading to FTS-only")
		return r.retrieveFTSOnly(ctx, query, fetchN, turnID)
	}

	vecMatches, err := r.store.SearchVector(ctx, embedding, fetchN)
	if err != nil {
		return nil, fmt.Errorf("retriever: search vector: %w", err)
	}
	ftsMatches, err := r.store.SearchFTS(ctx, query, fetchN)
	if err != nil {
		return nil, fmt.Errorf("retriever: search fts: %w", err)
	}

	results, err := r.fuse(ctx, vecMatches, ftsMatches)
	if err != nil {
		return nil, err
	}

	if err := r.touchAll(ctx, results, turnID); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Retriever) retrieveFTSOnly(ctx context.Context, query string, fetchN, turnID int) ([]core.RetrievalResult, error) {
	ftsMatches, err := r.store.SearchFTS(ctx, query, fetchN)
	if err != nil {
		return nil, fmt.Errorf("retriever: search fts: %w", err)
	}
	results, err := r.fuse(ctx, nil, ftsMatches)
	if err != nil {
		return nil, err
	}
	if err := r.touchAll(ctx, results, turnID); err != nil {
		return nil, err
	}
	return results, nil
}

// fuse computes RRF scores over the union of the two ranked lists. Tie
// breaks, in order: better (lower) vector rank, better (lower) FTS rank,
// lexicographic id. A rank of 0 means absent from that list.
func (r *Retriever) fuse(ctx context.Context, vec []core.VectorMatch, fts []core.FTSMatch) ([]core.RetrievalResult, error) {
	vecRank := make(map[string]int, len(vec))
	for i, m := range vec {
		vecRank[m.ID] = i + 1
	}
	ftsRank := make(map[string]int, len(fts))
	for i, m := range fts {
		ftsRank[m.ID] = i + 1
	}

	seen := make(map[string]struct{}, len(vec)+len(fts))
	ids := make([]string, 0, len(vec)+len(fts))
	for _, m := range vec {
		if _, ok := seen[m.ID]; !ok {
			seen[m.ID] = struct{}{}
			ids = append(ids, m.ID)
		}
	}
	for _, m := range fts {
		if _, ok := seen[m.ID]; !ok {
			seen[m.ID] = struct{}{}
			ids = append(ids, m.ID)
		}
	}

	k := float64(r.cfg.RRFK)
	candidates := make([]core.RetrievalResult, 0, len(ids))
	for _, id := range ids {
		vr := vecRank[id]
		fr := ftsRank[id]
		var score float64
		if vr > 0 {
			score += 1.0 / (k + float64(vr))
		}
		if fr > 0 {
			score += 1.0 / (k + float64(fr))
		}

		mem, err := r.store.GetByID(ctx, id)
		if err != nil {
			r.log.Warn().Str("id", id).Err(err).Msg("retriever: candidate missing from store, skipping")
			continue
		}
		candidates = append(candidates, core.RetrievalResult{Memory: *mem, FusedScore: score, VectorRank: vr, FTSRank: fr})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.VectorRank != b.VectorRank {
			if a.VectorRank == 0 {
				return false
			}
			if b.VectorRank == 0 {
				return true
			}
			return a.VectorRank < b.VectorRank
		}
		if a.FTSRank != b.FTSRank {
			if a.FTSRank == 0 {
				return false
			}
			if b.FTSRank == 0 {
				return true
			}
			return a.FTSRank < b.FTSRank
		}
		return a.Memory.ID < b.Memory.ID
	})

	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}
	return candidates, nil
}

func (r *Retriever) touchAll(ctx context.Context, results []core.RetrievalResult, turnID int) error {
	for _, res := range results {
		if err := r.store.Touch(ctx, res.Memory.ID, turnID); err != nil {
			return fmt.Errorf("retriever: touch %s: %w", res.Memory.ID, err)
		}
	}
	return nil
}
