package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <id> <value>",
		Short: "Write a value to the SQL store",
		Long: "Write a value to the SQL store. A value that is not valid JSON is stored as a JSON string.\n" +
			"Cached copies in other tiers are not refreshed until they expire.",
		Args: cobra.ExactArgs(2),
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

			value := json.RawMessage(args[1])
			if !json.Valid(value) {
				if value, err = json.Marshal(args[1]); err != nil {
					return err
				}
			}
			if err := a.store.Put(ctx, map[string]json.RawMessage{args[0]: value}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	}
}
