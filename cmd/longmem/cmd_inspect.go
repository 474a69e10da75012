package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump the active memories and profile snapshot as JSON",
	RunE:  runInspect,
}

type inspectOutput struct {
	ActiveMemories []inspectMemory   `json:"active_memories"`
	Profile        map[string]string `json:"profile"`
}

type inspectMemory struct {
	ID           string  `json:"memory_id"`
	Type         string  `json:"type"`
	Category     string  `json:"category"`
	Key          string  `json:"key"`
	Value        string  `json:"value"`
	SourceTurn   int     `json:"source_turn"`
	LastUsedTurn int     `json:"last_used_turn"`
	Confidence   float64 `json:"confidence"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fc, err := loadMergedConfig()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(ctx, fc, log)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer rt.Close()

	active, err := rt.store.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("inspect: get active: %w", err)
	}
	profile, err := rt.store.ProfileSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("inspect: profile snapshot: %w", err)
	}

	out := inspectOutput{
		ActiveMemories: make([]inspectMemory, 0, len(active)),
		Profile:        profile,
	}
	for _, m := range active {
		out.ActiveMemories = append(out.ActiveMemories, inspectMemory{
			ID:           m.ID,
			Type:         string(m.Type),
			Category:     m.Category,
			Key:          m.Key,
			Value:        m.Value,
			SourceTurn:   m.SourceTurn,
			LastUsedTurn: m.LastUsedTurn,
			Confidence:   m.Confidence,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
