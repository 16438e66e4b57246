package main

import (
	"fmt"
	"text/tabwriter"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunsCmd(open serviceOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the import run history",
	}
	cmd.AddCommand(newRunsListCmd(open))
	cmd.AddCommand(newRunsShowCmd(open))
	return cmd
}

func newRunsListCmd(open serviceOpener) *cobra.Command {
	var (
		filter   importapp.ListRunsFilter
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.ListRuns(cmd.Context(), filter, page, pageSize)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSTARTED\tPROCESSED\tCREATED\tUPDATED\tERRORS")
			for _, run := range result.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					run.ID, run.Kind, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Processed, run.Created, run.Updated, run.Errors)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d runs\n", result.Page, len(result.Items), result.TotalCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Kind, "kind", "", "Only runs of this entity kind")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only runs with this status")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Runs per page (max 100)")
	return cmd
}

func newRunsShowCmd(open serviceOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of one import run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := svc.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), run.Render())
			return nil
		},
	}
}
