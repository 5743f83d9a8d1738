// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

// GlobalOptions are shared by every sub-command.
type GlobalOptions struct {
	SchemaFile string
}

func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "ledgerbridge",
		Short: "ledgerbridge - sync accounting datasets into a database",
		Long: `ledgerbridge pulls master and transaction datasets from an accounting
system's XML export endpoint and upserts them into MongoDB, SQL Server or
PostgreSQL. Datasets are described declaratively in a schema document.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.SchemaFile, "schemas", "s", "configs/schemas.yaml", "Path to the schema document (YAML or JSON)")

	rootCmd.AddCommand(NewSyncCmd(opts), newSchemasCmd(opts), newQueryCmd(opts))

	return rootCmd
}
