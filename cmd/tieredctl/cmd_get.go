package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/pipeline"
)

func newGetCmd() *cobra.Command {
	var partial bool
	cmd := &cobra.Command{
		Use:   "get <id>...",
		Short: "Retrieve ids through the pipeline and print them as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			data, err := a.pipeline.Retrieve(ctx, args)
			var perr *pipeline.Error[string, json.RawMessage]
			if errors.As(err, &perr) && partial {
				a.log.Warn("returning partial results", logger.Fields("errors", len(perr.Errors)))
				data, err = perr.Results, nil
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
	cmd.Flags().BoolVar(&partial, "partial", false, "print the results recorded before a failure instead of failing")
	return cmd
}
