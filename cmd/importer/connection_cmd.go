package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/erp/importer/internal/domain/integration"
	"github.com/spf13/cobra"
)

func newTestConnectionCmd(open serviceOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Probe the webservice and report each step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.TestConnection(cmd.Context())
			if err != nil {
				return err
			}
			printConnectionReport(cmd.OutOrStdout(), report)
			if !report.OK {
				return errors.New("connection test failed")
			}
			return nil
		},
	}
}

func printConnectionReport(w io.Writer, report *integration.ConnectionReport) {
	fmt.Fprintf(w, "Source: %s (key %s)\n", report.BaseURL, report.MaskedKey)
	for _, step := range report.Steps {
		mark := "ok"
		if !step.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  %-4s %-20s", mark, step.Name)
		if step.StatusCode != 0 {
			fmt.Fprintf(w, " HTTP %d", step.StatusCode)
		}
		if step.Duration > 0 {
			fmt.Fprintf(w, " %s", step.Duration.Round(time.Millisecond))
		}
		if step.Detail != "" {
			fmt.Fprintf(w, " %s", step.Detail)
		}
		fmt.Fprintln(w)
	}
	if report.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", report.Hint)
	}
}
