package cli

import (
	"github.com/spf13/cobra"
)

type SyncOptions struct {
	*GlobalOptions
	CompanyID   string
	DivisionID  string
	Tables      []string
	Sink        string
	BatchSize   int
	Workers     int
	Parallelism int
	DryRun      bool
}

func NewSyncCmd(global *GlobalOptions) *cobra.Command {
	opts := &SyncOptions{GlobalOptions: global}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch datasets from the remote system and upsert them into the sink",
		Example: `  ledgerbridge sync --company acme --division north
  ledgerbridge sync --company acme --tables mst_ledger,trn_voucher --dry-run`,
		RunE: func(c *cobra.Command, args []string) error {
			return runSync(c.Context(), opts, c.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.CompanyID, "company", "c", "", "Tenant company id stamped on every record")
	cmd.Flags().StringVarP(&opts.DivisionID, "division", "d", "", "Tenant division id stamped on every record")
	cmd.Flags().StringSliceVarP(&opts.Tables, "tables", "t", nil, "Datasets to sync (default: all registered)")
	cmd.Flags().StringVar(&opts.Sink, "sink", "", "Sink type: mongo, mssql, postgres or memory (overrides SINK_TYPE)")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Records per sink write (overrides IMPORT_BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Concurrent batch writes per table (overrides IMPORT_WORKERS)")
	cmd.Flags().IntVarP(&opts.Parallelism, "parallelism", "p", 0, "Tables synced at once (overrides SYNC_PARALLELISM)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Write to an in-memory sink and only report counts")

	cmd.MarkFlagRequired("company")

	return cmd
}
