package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Run the flush procedure once against the current segment and exit",
	Long: `Distills the turns since the last flush into memory deltas, applies
them, and resets the context window, exactly as an automatic threshold
flush would. Useful for forcing consolidation without waiting on the
threshold, or for scripting a flush after a batch-loaded conversation.`,
	RunE: runFlush,
}

func runFlush(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("flush: %w", err)
	}
	defer rt.Close()

	if err := rt.orch.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fmt.Println("flush complete")
	return nil
}
