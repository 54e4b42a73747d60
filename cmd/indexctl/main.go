// Package main provides indexctl, an operator CLI over the vector index directory.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"chem-rag-api/internal/config"
	"chem-rag-api/internal/infrastructure/vectorstore"
)

// Version is set at build time via ldflags
var Version = "dev"

// Exit codes
const (
	ExitOK       = 0
	ExitError    = 1
	ExitNotFound = 2
	ExitCorrupt  = 3
)

var (
	indexDir    string
	humanOutput bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexctl",
	Short: "Inspect and maintain per-document vector indices",
	Long: `indexctl works directly on the vector index directory used by the
api-gateway and job-worker. All commands output JSON by default;
pass --human for colored text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&indexDir, "dir", "", "Index directory (default: vector_index.dir from config)")
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// loadConfig reads configs/ when present; indexctl also works with defaults only.
func loadConfig() *config.Config {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitError, "loading config: %v", err)
	}
	if indexDir != "" {
		cfg.VectorIndex.Dir = indexDir
	}
	return cfg
}

// mustOpenStore opens the index directory with the given default dimension.
func mustOpenStore(cfg *config.Config, dim int) *vectorstore.Store {
	if dim <= 0 {
		dim = cfg.Embedding.Local.Dimension
	}
	store, err := vectorstore.NewStore(&cfg.VectorIndex, dim)
	if err != nil {
		exitWithError(ExitError, "opening index dir: %v", err)
	}
	return store
}
