// Command longmem is a demo CLI over the orchestrator: an interactive chat
// loop backed by a local sqlite file, plus one-shot flush and inspect
// commands. It is the thin, untested surface around the core library.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "longmem",
	Short: "A long-form conversational memory engine",
	Long: `longmem wires a token-accounted context window, a hybrid
vector+FTS retriever, and an LLM-driven distiller around a local sqlite
store, so a chat session remembers facts, preferences, and decisions
across a conversation that outgrows any single context window.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the sqlite store (overrides config db_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd, flushCmd, inspectCmd)
}

// loadMergedConfig reads the optional config file and applies the --db
// override, which always wins over the file's db_path.
func loadMergedConfig() (*fileConfig, error) {
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		fc.DBPath = dbPath
	}
	return fc, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
