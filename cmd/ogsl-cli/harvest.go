package main

import (
	"fmt"
	"os"
	"strconv"

	"ogsl-backend/lib/render"
	"ogsl-backend/services/harvest"

	"github.com/spf13/cobra"
)

func init() {
	harvestCmd.Flags().String("query", "", "search query forwarded to the remote catalog")
	harvestCmd.Flags().Int("max-results", 100, "stop after importing this many datasets")
	rootCmd.AddCommand(harvestCmd)
}

var harvestCmd = &cobra.Command{
	Use:   "harvest <source-id>",
	Short: "Run one harvest against a configured source.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourceID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid source id %q\n", args[0])
			os.Exit(1)
		}

		st, db, err := openStore()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		defer db.Close()

		query, _ := cmd.Flags().GetString("query")
		maxResults, _ := cmd.Flags().GetInt("max-results")

		service := harvest.NewService(st, render.Chrome{})
		report := service.Harvest(cmd.Context(), harvest.HarvestRequest{
			SourceID:   sourceID,
			Query:      query,
			MaxResults: maxResults,
		})

		fmt.Printf("imported=%d skipped=%d failed=%d\n", report.Imported, report.Skipped, report.Failed)
		for _, reason := range report.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		if report.Failed > 0 {
			os.Exit(1)
		}
	},
}
