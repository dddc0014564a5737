package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/warden/pkg/warden/health"
	"github.com/jamesainslie/warden/pkg/warden/lifecycle"
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

var (
	monitorFeed      string
	monitorFromStart bool
	monitorListen    string
	monitorNoHTTP    bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a worker event feed and classify lifecycle failures",
	Long: `Monitor tails a JSONL event feed written by the worker supervisor,
classifies worker exits (clean, error, timeout kill, OOM kill), keeps
rolling statistics, and serves a health verdict with Prometheus metrics
over HTTP.

The monitor never influences the workers; it only observes.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorFeed, "feed", "", "path to the JSONL event feed (required)")
	monitorCmd.Flags().BoolVar(&monitorFromStart, "from-start", false, "replay the feed from the beginning instead of tailing")
	monitorCmd.Flags().StringVar(&monitorListen, "listen", "", "health endpoint address (default from config)")
	monitorCmd.Flags().BoolVar(&monitorNoHTTP, "no-http", false, "disable the health endpoint")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	feed := monitorFeed
	if feed == "" {
		feed = cfg.Monitor.FeedPath
	}
	if feed == "" {
		return setupErr(errors.New("no event feed: pass --feed or set monitor.feed_path"))
	}

	var opts []lifecycle.FeedOption
	if monitorFromStart {
		opts = append(opts, lifecycle.FromStart())
	}
	src, err := lifecycle.NewFeedSource(feed, opts...)
	if err != nil {
		return setupErr(fmt.Errorf("opening feed: %w", err))
	}
	defer src.Close()

	mon := lifecycle.NewMonitor(src,
		lifecycle.WithWindow(time.Duration(cfg.Monitor.WindowSec)*time.Second),
		lifecycle.WithAlertThreshold(cfg.Monitor.AlertThreshold),
		lifecycle.WithPressureWindow(time.Duration(cfg.Monitor.PressureWindowSec)*time.Second),
	)

	pol := cfg.ToPolicy()
	dash := health.New(probe.System(), pol, mon,
		health.WithInterval(time.Duration(cfg.Health.IntervalSec)*time.Second))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() { errCh <- mon.Run(ctx) }()
	go func() { errCh <- dash.Run(ctx) }()

	if !monitorNoHTTP {
		listen := monitorListen
		if listen == "" {
			listen = cfg.Health.Listen
		}
		srv := health.NewServer(dash, mon, listen)
		go func() { errCh <- srv.Run(ctx) }()
	}

	err = <-errCh
	stop()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Interface check: the monitor is the dashboard's stats source.
var _ health.StatsSource = (*lifecycle.Monitor)(nil)
