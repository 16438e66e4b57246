package main

import (
	"fmt"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/domain/bulk"
	"github.com/spf13/cobra"
)

func newRunCmd(open serviceOpener) *cobra.Command {
	var opts importapp.RunOptions

	cmd := &cobra.Command{
		Use:       "run <categories|products|stock|customers>",
		Short:     "Import one page of an entity kind and print the run report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"categories", "products", "stock", "customers"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := bulk.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			if opts.Limit < 0 || opts.Offset < 0 {
				return fmt.Errorf("--limit and --offset cannot be negative")
			}

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := svc.Run(cmd.Context(), kind, opts)
			if run != nil {
				fmt.Fprint(cmd.OutOrStdout(), run.Render())
				fmt.Fprintf(cmd.OutOrStdout(), "Run id: %s\n", run.ID)
			}
			if err != nil {
				return err
			}
			if run.Status != bulk.RunStatusCompleted {
				return fmt.Errorf("import run finished with status %s", run.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Records to import (0 uses import.max_records_per_run)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Records to skip in the source listing")
	return cmd
}
