package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info <file_id>",
	Short: "Show details of one index",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	store := mustOpenStore(loadConfig(), 0)
	info := store.GetIndexInfo(cmd.Context(), args[0])
	if !info.Exists {
		exitWithError(ExitNotFound, "index not found: %s", args[0])
	}

	if !humanOutput {
		outputJSON(info)
		return nil
	}

	fmt.Printf("%s %s\n", boldGreen("Index"), boldCyan(info.FileID))
	fmt.Printf("  vectors:   %d\n", info.VectorCount)
	fmt.Printf("  dimension: %d\n", info.Dimension)
	fmt.Printf("  metric:    %s\n", info.Metric)
	fmt.Printf("  size:      %s (+ %s metadata)\n", humanSize(info.IndexSize), humanSize(info.MetaSize))
	fmt.Printf("  modified:  %s\n", info.ModifiedAt.Format(time.DateTime))
	if info.VectorCount == 0 {
		fmt.Printf("  %s index files exist but could not be loaded, run verify\n", yellow("warning:"))
	}
	return nil
}
