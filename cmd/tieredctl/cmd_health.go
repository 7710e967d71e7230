package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/kbukum/tiered/component"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Start every configured backend and report its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.close(ctx)) }()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tTYPE\tDETAILS")
			for _, d := range a.registry.Describe() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Type, d.Details)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "NAME\tSTATUS\tMESSAGE")
			unhealthy := 0
			for _, h := range a.registry.HealthAll(ctx) {
				if h.Status != component.StatusHealthy {
					unhealthy++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", h.Name, h.Status, h.Message)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if unhealthy > 0 {
				return fmt.Errorf("%d component(s) unhealthy", unhealthy)
			}
			return nil
		},
	}
}
