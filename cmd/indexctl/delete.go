package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file_id>",
	Short: "Delete the index artifacts of one document",
	Long: `Delete the index artifacts of one document. Document metadata and
segments in PostgreSQL are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	store := mustOpenStore(loadConfig(), 0)
	removed, err := store.DeleteIndex(cmd.Context(), args[0])
	if err != nil {
		exitWithError(ExitError, "deleting index: %v", err)
	}
	if !removed {
		exitWithError(ExitNotFound, "index not found: %s", args[0])
	}

	if humanOutput {
		fmt.Printf("%s index %s\n", boldGreen("deleted"), args[0])
		return nil
	}
	outputJSON(StatusResponse{Status: "deleted", FileID: args[0]})
	return nil
}
