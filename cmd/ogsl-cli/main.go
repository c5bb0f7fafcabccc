package main

import (
	"os"

	"ogsl-backend/services/catalog/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "ogsl-cli",
	Short: "Operator tooling for the open-data catalog.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "catalog.db", "path to the catalog sqlite database")
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func openStore() (store.Store, *sqlx.DB, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return store.Store{}, nil, err
	}
	return store.New(db), db, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
