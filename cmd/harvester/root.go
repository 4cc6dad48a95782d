package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/qepting91/reddit-link-harvester/internal/collector"
	"github.com/qepting91/reddit-link-harvester/internal/config"
	"github.com/qepting91/reddit-link-harvester/internal/extract"
	"github.com/qepting91/reddit-link-harvester/internal/ingest"
	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/qepting91/reddit-link-harvester/internal/storage"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile      string
	communities     []string
	communitiesFile string
	logLevel        string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "harvester",
		Short:        "Harvest external links posted to Reddit communities",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "config file (default is ./config.yaml)")
	flags.StringSliceVar(&o.communities, "communities", nil, "communities to scrape, comma separated (r/ prefix optional)")
	flags.StringVar(&o.communitiesFile, "communities-file", "", "CSV file listing communities (default from input.communities_file)")
	flags.StringVar(&o.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newBackfillCmd(o),
		newDailyCmd(o),
		newExportCmd(o),
		newStatsCmd(o),
		newServeCmd(o),
		newScheduleCmd(o),
	)
	return cmd
}

func (o *rootOptions) init() error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(o.logger)
	return nil
}

// targets resolves the community list from flags, falling back to the
// configured CSV file only when it was named explicitly or exists.
func (o *rootOptions) targets() ([]string, error) {
	if len(o.communities) > 0 {
		return ingest.NormalizeCommunities(o.communities)
	}

	path := o.communitiesFile
	if path == "" {
		path = o.cfg.Input.CommunitiesFile
		if _, err := os.Stat(path); err != nil {
			return nil, scrape.ErrNoCommunities
		}
	}
	names, err := ingest.LoadCommunities(path)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", scrape.ErrNoCommunities, path)
	}
	return names, nil
}

type app struct {
	store     *storage.Store
	harvester *scrape.Harvester
	bus       *scrape.Bus
}

// openApp wires storage, the listing source and the harvester. Settings are
// validated before anything touches the network or the database.
func (o *rootOptions) openApp() (*app, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	cfg := o.cfg
	src, err := collector.NewSource(collector.Settings{
		Mode:           cfg.Collector.Mode,
		UserAgent:      cfg.Collector.UserAgent,
		BaseURL:        cfg.Collector.BaseURL,
		RequestTimeout: cfg.Scrape.RequestTimeout,
		ClientID:       cfg.Reddit.ClientID,
		ClientSecret:   cfg.Reddit.ClientSecret,
		Username:       cfg.Reddit.Username,
		Password:       cfg.Reddit.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize collector: %w", err)
	}
	o.logger.Info("Collector initialized", "mode", cfg.Collector.Mode)

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	fetcher := collector.NewFetcher(src,
		collector.WithPageSize(cfg.Scrape.PageSize),
		collector.WithCooldown(cfg.Scrape.RateLimitCooldown),
		collector.WithLogger(o.logger),
	)
	bus := scrape.NewBus()
	h := scrape.New(fetcher, store,
		scrape.WithNormalizer(extract.New(cfg.Platform.Domains)),
		scrape.WithPageDelay(cfg.Scrape.PageDelay),
		scrape.WithEndpointDelay(cfg.Scrape.EndpointDelay),
		scrape.WithMaxPages(cfg.Scrape.MaxPages),
		scrape.WithLookback(cfg.Scrape.FirstRunLookback),
		scrape.WithWorkers(cfg.Scrape.Workers),
		scrape.WithLogger(o.logger),
		scrape.WithBus(bus),
	)
	return &app{store: store, harvester: h, bus: bus}, nil
}

// openStore is enough for commands that only read the database.
func (o *rootOptions) openStore() (*storage.Store, error) {
	return storage.Open(o.cfg.Database.Path)
}

func (a *app) Close() error {
	a.bus.Close()
	return a.store.Close()
}
