package main

import (
	"fmt"
	"strings"

	"gitevents/internal"
	"gitevents/pkg/storage/events"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gitevents",
		Short:         "Ingest GitHub webhooks and serve recent repository events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newRecentCommand(opts),
		newListenCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load() (internal.Config, error) {
	cfg, err := internal.LoadConfig(o.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := internal.ConfigureLogging(cfg.Log); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openStore(cfg internal.Config) (*events.Store, error) {
	store, err := events.Open(events.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         cfg.Storage.DSN,
		Table:       cfg.Storage.Table,
		AutoMigrate: cfg.Storage.AutoMigrate != nil && *cfg.Storage.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return store, nil
}

func usesDriver(cfg internal.WatermillConfig, driver string) bool {
	drivers := cfg.Drivers
	if len(drivers) == 0 {
		drivers = []string{cfg.Driver}
	}
	for _, name := range drivers {
		if strings.EqualFold(strings.TrimSpace(name), driver) {
			return true
		}
	}
	return false
}
