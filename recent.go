package main

import (
	"context"
	"encoding/json"
	"time"

	"gitevents/pkg/api"

	"github.com/spf13/cobra"
)

func newRecentCommand(opts *rootOptions) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the events stored within the query window as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			location, err := cfg.Query.Location()
			if err != nil {
				return err
			}
			if window <= 0 {
				window = cfg.Query.Window()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			views, err := (&api.RecentEvents{
				Store:    store,
				Window:   window,
				Location: location,
			}).List(ctx)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(views)
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Override query.window_ms, e.g. 1h")
	return cmd
}
