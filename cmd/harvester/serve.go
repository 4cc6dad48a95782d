package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/dashboard"
	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var scheduled bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and its JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tracker := dashboard.NewStatusTracker(dashboard.DefaultLogSize)
			go tracker.Follow(ctx, a.bus)

			gate := &scrape.Gate{}
			if scheduled {
				targets, err := o.targets()
				if err != nil {
					return err
				}
				harvest := gated(gate, o.logger, func() error {
					_, err := a.harvester.RunIncremental(ctx, targets)
					return err
				})
				c, err := startSchedule(o.cfg.Schedule.Cron, o.logger, harvest)
				if err != nil {
					return err
				}
				defer stopSchedule(c, o.logger)
			}

			srv := dashboard.New(a.store, a.harvester, tracker,
				dashboard.WithLogger(o.logger),
				dashboard.WithBaseContext(ctx),
				dashboard.WithGate(gate),
			)
			addr := ":" + o.cfg.Server.Port
			o.logger.Info("Starting Dashboard", "port", o.cfg.Server.Port)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().BoolVar(&scheduled, "schedule", false, "also run incremental harvests on schedule.cron")
	return cmd
}

func newScheduleCmd(o *rootOptions) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run incremental harvests on the schedule.cron expression",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			targets, err := o.targets()
			if err != nil {
				return err
			}
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			harvest := gated(&scrape.Gate{}, o.logger, func() error {
				_, err := a.harvester.RunIncremental(ctx, targets)
				return err
			})
			c, err := startSchedule(o.cfg.Schedule.Cron, o.logger, harvest)
			if err != nil {
				return err
			}
			defer stopSchedule(c, o.logger)

			if now {
				go harvest()
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "run one harvest immediately on startup")
	return cmd
}

// gated wraps a run so that it is skipped while any other run sharing gate
// is in progress.
func gated(gate *scrape.Gate, logger *slog.Logger, run func() error) func() {
	return func() {
		if !gate.Enter() {
			logger.Info("Skipping scheduled harvest, a run is in progress")
			return
		}
		defer gate.Leave()
		if err := run(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduled harvest failed", "err", err)
		}
	}
}

// startSchedule runs fn on spec.
func startSchedule(spec string, logger *slog.Logger, fn func()) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	if _, err := c.AddFunc(spec, fn); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	logger.Info("Scheduler started", "cron", spec)
	return c, nil
}

func stopSchedule(c *cron.Cron, logger *slog.Logger) {
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Scheduled harvest still running at shutdown")
	}
	logger.Info("Scheduler stopped")
}
