package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Opening the database applies the schema.
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "  Schema is up to date (%s).\n", e.db.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
