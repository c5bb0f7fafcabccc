package main

import (
	"fmt"
	"os"

	"ogsl-backend/services/catalog/store"
	"ogsl-backend/services/harvest"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	addSourceCmd.Flags().String("name", "", "unique source name")
	addSourceCmd.Flags().String("base-url", "", "base URL of the remote catalog")
	addSourceCmd.Flags().String("description", "", "free-form description")
	addSourceCmd.Flags().String("kind", "", "harvest strategy: ckan, dataverse or rendered (inferred from the name when omitted)")
	addSourceCmd.MarkFlagRequired("name")
	addSourceCmd.MarkFlagRequired("base-url")

	sourcesCmd.AddCommand(listSourcesCmd)
	sourcesCmd.AddCommand(addSourceCmd)
	rootCmd.AddCommand(sourcesCmd)
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage external data sources.",
}

var listSourcesCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources.",
	Run: func(cmd *cobra.Command, args []string) {
		st, db, err := openStore()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		defer db.Close()

		sources, err := st.ListSources(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		t := newTable()
		t.AppendHeader(table.Row{"id", "name", "kind", "base url", "active"})
		for _, src := range sources {
			kind := src.Kind
			if kind == "" {
				kind = harvest.InferKind(src.Name) + " (inferred)"
			}
			t.AppendRow(table.Row{src.ID, src.Name, kind, src.BaseURL, src.IsActive})
		}
		t.Render()
	},
}

var addSourceCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new source.",
	Run: func(cmd *cobra.Command, args []string) {
		st, db, err := openStore()
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		defer db.Close()

		name, _ := cmd.Flags().GetString("name")
		baseURL, _ := cmd.Flags().GetString("base-url")
		description, _ := cmd.Flags().GetString("description")
		kind, _ := cmd.Flags().GetString("kind")
		if kind == "" {
			kind = harvest.InferKind(name)
		}

		src, err := st.CreateSource(cmd.Context(), store.Source{
			Name:        name,
			BaseURL:     baseURL,
			Description: description,
			Kind:        kind,
			IsActive:    true,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Printf("created source %d (%s)\n", src.ID, src.Kind)
	},
}
