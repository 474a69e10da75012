//go:build !onnx

package main

import (
	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
	"github.com/pragnyanramtha/longmem/memory/embedder/cache"
	"github.com/pragnyanramtha/longmem/memory/embedder/mock"
)

// buildEmbedder returns the deterministic mock embedder, cache-wrapped. This
// is the default build; -tags onnx swaps in the production ONNX Runtime
// embedder instead (see wire_onnx.go).
func buildEmbedder(fc *fileConfig, dim int, log zerolog.Logger) (core.Embedder, error) {
	log.Info().Int("dim", dim).Msg("using mock embedder (build without -tags onnx)")
	return cache.Wrap(mock.NewWithDimensions(dim)), nil
}
