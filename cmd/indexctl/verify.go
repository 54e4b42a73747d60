package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file_id]",
	Short: "Reload index artifacts and check vector/metadata alignment",
	Long: `Reload index artifacts from disk and check that vectors and metadata
are aligned. Without a file_id every index in the directory is checked.
Exits with code 3 when any index is corrupt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

// VerifyResult is the outcome for one index.
type VerifyResult struct {
	FileID  string `json:"file_id"`
	OK      bool   `json:"ok"`
	Vectors int    `json:"vectors"`
	Error   string `json:"error,omitempty"`
}

// VerifyResponse is the JSON output of verify.
type VerifyResponse struct {
	Checked int            `json:"checked"`
	Failed  int            `json:"failed"`
	Results []VerifyResult `json:"results"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store := mustOpenStore(loadConfig(), 0)

	ids := args
	if len(ids) == 0 {
		ids = store.ListFileIDs(ctx)
	}

	resp := VerifyResponse{Results: make([]VerifyResult, 0, len(ids))}
	for _, id := range ids {
		n, err := store.Verify(ctx, id)
		r := VerifyResult{FileID: id, OK: err == nil, Vectors: n}
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				exitWithError(ExitNotFound, "index not found: %s", id)
			}
			r.Error = err.Error()
			resp.Failed++
		}
		resp.Checked++
		resp.Results = append(resp.Results, r)
	}

	if humanOutput {
		for _, r := range resp.Results {
			if r.OK {
				fmt.Printf("  %s %s (%d vectors)\n", boldGreen("ok"), r.FileID, r.Vectors)
			} else {
				fmt.Printf("  %s %s: %s\n", boldRed("FAIL"), r.FileID, r.Error)
			}
		}
		fmt.Printf("\n%d checked, %d failed\n", resp.Checked, resp.Failed)
	} else {
		outputJSON(resp)
	}

	if resp.Failed > 0 {
		os.Exit(ExitCorrupt)
	}
	return nil
}
