package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session backed by long-term memory",
	Long: `Reads lines from stdin and runs each one through the orchestrator,
printing the assistant's reply followed by the turn's utilization, flush,
and retrieval stats. Type 'exit' or press Ctrl+D to end the session.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("chat: %w", err)
	}
	defer func() {
		r := recover()
		rt.Close()
		if r != nil {
			panic(r)
		}
	}()

	fmt.Println("longmem chat — type 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, err := rt.orch.Turn(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}

		fmt.Println(result.Response)
		fmt.Printf("  [context %s, %d tokens, retrieval %.1fms, total %.1fms, flush=%v, flushes=%d, memories=%d]\n",
			result.ContextUtilization, result.ContextTokens, result.RetrievalMS, result.TotalMS,
			result.FlushTriggered, result.TotalFlushes, result.TotalMemories)
	}
	return scanner.Err()
}
