//go:build onnx

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pragnyanramtha/longmem/core"
	"github.com/pragnyanramtha/longmem/memory/embedder/cache"
	"github.com/pragnyanramtha/longmem/memory/embedder/onnx"
)

// buildEmbedder loads the production all-MiniLM-L6-v2 ONNX embedder named by
// fc.OnnxModelPath/OnnxTokenizerPath, cache-wrapped the same way the mock
// build is. Requires ONNXRUNTIME_LIB_PATH to point at the ONNX Runtime
// shared library; the config file has no setting for it.
func buildEmbedder(fc *fileConfig, dim int, log zerolog.Logger) (core.Embedder, error) {
	if fc.OnnxModelPath == "" || fc.OnnxTokenizerPath == "" {
		return nil, fmt.Errorf("%w: onnx_model_path and onnx_tokenizer_path are required in an onnx build", core.ErrEmbedding)
	}
	embedder, err := onnx.New(onnx.Config{
		ModelPath:     fc.OnnxModelPath,
		TokenizerPath: fc.OnnxTokenizerPath,
		Dimensions:    dim,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: %w", err)
	}
	return cache.Wrap(embedder), nil
}
