package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chem-rag-api/internal/domain/entity"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all indices",
	Long: `List every index found in the index directory.

Examples:
  indexctl list
  indexctl list --human --dir data/vector_indices`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// ListResponse is the JSON output of list.
type ListResponse struct {
	Dir     string             `json:"dir"`
	Total   int                `json:"total"`
	Indices []entity.IndexInfo `json:"indices"`
}

func runList(cmd *cobra.Command, args []string) error {
	store := mustOpenStore(loadConfig(), 0)
	infos := store.ListAllIndices(cmd.Context())

	if !humanOutput {
		outputJSON(ListResponse{Dir: store.Dir(), Total: len(infos), Indices: infos})
		return nil
	}

	if len(infos) == 0 {
		fmt.Printf("No indices in %s\n", store.Dir())
		return nil
	}
	fmt.Printf("%s indices in %s:\n\n", boldGreen(len(infos)), store.Dir())
	for _, info := range infos {
		fmt.Printf("  %-40s %6d vectors  %4d dim  %s\n",
			boldCyan(info.FileID), info.VectorCount, info.Dimension, faint(humanSize(info.IndexSize+info.MetaSize)))
	}
	return nil
}
