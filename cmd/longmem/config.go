package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk shape for --config, covering the
// tunables from spec.md's Configuration section. Any field left unset keeps
// the relevant component's own default.
type fileConfig struct {
	DBPath           string  `yaml:"db_path"`
	ContextLimit     int     `yaml:"context_limit"`
	FlushThreshold   float64 `yaml:"flush_threshold"`
	TopK             int     `yaml:"top_k"`
	EmbeddingDim     int     `yaml:"embedding_dim"`
	RRFK             int     `yaml:"rrf_k"`
	DistillMaxTokens int     `yaml:"distill_max_tokens"`
	KeepTailN        int     `yaml:"keep_tail_n"`
	Model            string  `yaml:"model"`

	// OnnxModelPath and OnnxTokenizerPath select the production embedder
	// when the binary is built with -tags onnx. Ignored otherwise.
	OnnxModelPath     string `yaml:"onnx_model_path"`
	OnnxTokenizerPath string `yaml:"onnx_tokenizer_path"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
