package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chem-rag-api/internal/domain/entity"
	"chem-rag-api/internal/infrastructure/embedding"
)

var searchTopK int

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "Number of results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <file_id> <query>",
	Short: "Search one index with the local embedding model",
	Long: `Search one index with the local embedding model configured under
embedding.local (hash, http or ollama).

Examples:
  indexctl search 3f2b... "反应釜升温速率"
  indexctl search 3f2b... "精馏塔回流比" -k 10 --human`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

// SearchResponse is the JSON output of search.
type SearchResponse struct {
	FileID string             `json:"file_id"`
	Query  string             `json:"query"`
	Model  string             `json:"model"`
	Hits   []entity.SearchHit `json:"hits"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	fileID, query := args[0], args[1]
	cfg := loadConfig()

	provider, err := embedding.NewLocalProvider(&cfg.Embedding.Local)
	if err != nil {
		exitWithError(ExitError, "creating embedder: %v", err)
	}
	emb := embedding.NewService(provider)
	store := mustOpenStore(cfg, emb.Dimension())

	info := store.GetIndexInfo(ctx, fileID)
	if !info.Exists {
		exitWithError(ExitNotFound, "index not found: %s", fileID)
	}
	if info.Dimension != 0 && info.Dimension != emb.Dimension() {
		exitWithError(ExitError, "index dimension %d does not match model %s (%d)", info.Dimension, emb.ModelName(), emb.Dimension())
	}

	vec, err := emb.EncodeText(ctx, query)
	if err != nil {
		exitWithError(ExitError, "embedding query: %v", err)
	}
	hits, err := store.Search(ctx, fileID, vec, searchTopK)
	if err != nil {
		exitWithError(ExitCorrupt, "searching index: %v", err)
	}

	if !humanOutput {
		outputJSON(SearchResponse{FileID: fileID, Query: query, Model: emb.ModelName(), Hits: hits})
		return nil
	}

	if len(hits) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, h := range hits {
		fmt.Printf("%d. [%s] %s\n", h.Rank, yellow(fmt.Sprintf("%.3f", h.Similarity)), boldCyan(h.Metadata.SegmentID))
		fmt.Printf("   %s\n\n", truncateString(h.Metadata.TextPreview, PreviewMaxLen))
	}
	return nil
}
