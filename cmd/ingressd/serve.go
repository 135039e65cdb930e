package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gocmd "github.com/goliatone/go-command"
	ingresscommand "github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/transport"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

var (
	serveMigrate   bool
	serveRetention time.Duration
	purgeInterval  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve webhook endpoints over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(settings, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				rt.logger.Warn("shutdown", "error", err)
			}
		}()

		if serveMigrate {
			if err := migrate(ctx, rt.client, rt.dialect); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		if err := rt.build(ctx); err != nil {
			return err
		}
		rt.logger.Info("endpoints loaded",
			"endpoints", rt.service.Config().EndpointNames(),
			"schemes", rt.service.Registry().Names(),
		)

		if serveRetention > 0 {
			go runRetention(ctx, rt.facade.Commands().PurgeEventRecords, serveRetention, purgeInterval, rt.logger)
		}

		handler := rt.facade.HTTPHandler(transport.WithMaxBodyBytes(settings.MaxBodyBytes))
		return transport.NewServer(settings.HTTP, handler, rt.logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply migrations before serving")
	serveCmd.Flags().DurationVar(&serveRetention, "retention", 0, "purge finished event records older than this (0 disables)")
	serveCmd.Flags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "how often the retention purge runs")
}

// runRetention purges finished records on every tick until ctx is done.
func runRetention(ctx context.Context, purge gocmd.Commander[ingresscommand.PurgeEventRecordsMessage], retention, interval time.Duration, logger glog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := gocmd.NewResult[ingresscommand.PurgeResult]()
			err := purge.Execute(gocmd.ContextWithResult(ctx, result), ingresscommand.PurgeEventRecordsMessage{OlderThan: retention})
			if err != nil {
				logger.Error("retention purge failed", "error", err)
				continue
			}
			if purged, ok := result.Load(); ok {
				logger.Info("retention purge", "before", purged.Before, "deleted", purged.Deleted)
			}
		}
	}
}
