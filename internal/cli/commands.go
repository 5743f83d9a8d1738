package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/BartekS5/ledgerbridge/internal/config"
	"github.com/BartekS5/ledgerbridge/internal/etl"
)

func newSchemasCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the datasets registered in the schema document",
		RunE: func(c *cobra.Command, args []string) error {
			return listSchemas(opts, c.OutOrStdout())
		},
	}
}

func newQueryCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <table>",
		Short: "Print the export request synthesized for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return printQuery(opts, args[0], c.OutOrStdout())
		},
	}
}

func listSchemas(opts *GlobalOptions, out io.Writer) error {
	registry, err := config.LoadRegistry(opts.SchemaFile)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOLLECTION\tFIELDS\tMODE")
	for _, t := range registry.All() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Name, t.Collection, len(t.Fields), t.Mode())
	}
	return w.Flush()
}

func printQuery(opts *GlobalOptions, table string, out io.Writer) error {
	registry, err := config.LoadRegistry(opts.SchemaFile)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	schema, ok := registry.Lookup(table)
	if !ok {
		return errors.Errorf("unknown table %q", table)
	}

	var vars etl.StaticVariables
	if cfg, err := config.LoadConfig(); err == nil {
		vars = cfg.StaticVariables()
	}

	body, err := etl.Synthesize(schema).Render(vars)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}
