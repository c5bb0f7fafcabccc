package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	listDatasetsCmd.Flags().Int64("source", 0, "restrict to one source id")
	listDatasetsCmd.Flags().Int("limit", 25, "maximum rows to print")

	datasetsCmd.AddCommand(listDatasetsCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(statsCmd)
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect harvested datasets.",
}

var listDatasetsCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recently published datasets.",
	Run: func(cmd *cobra.Command, args []string) {
		st, db, err := openStore()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		defer db.Close()

		sourceID, _ := cmd.Flags().GetInt64("source")
		limit, _ := cmd.Flags().GetInt("limit")

		datasets, err := st.ListDatasets(cmd.Context(), sourceID, limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		t := newTable()
		t.AppendHeader(table.Row{"id", "title", "published", "url"})
		for _, ds := range datasets {
			t.AppendRow(table.Row{ds.ID, ds.Title, ds.PublicationDate, ds.URL})
		}
		t.Render()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print catalog entity counts.",
	Run: func(cmd *cobra.Command, args []string) {
		st, db, err := openStore()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		defer db.Close()

		counts, err := st.Counts(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		t := newTable()
		t.AppendHeader(table.Row{"sources", "organizations", "themes", "datasets"})
		t.AppendRow(table.Row{counts.Sources, counts.Organizations, counts.Themes, counts.Datasets})
		t.Render()
	},
}
