package cmd

import (
	"os/signal"
	"syscall"

	"github.com/ortelius/pdvd-enricher/internal/api"
	"github.com/ortelius/pdvd-enricher/internal/kafka"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST and GraphQL API and consume re-triage events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		noEvents, _ := cmd.Flags().GetBool("no-events")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := setup(ctx, true)
		if err != nil {
			return err
		}
		defer e.logger.Sync() //nolint:errcheck
		s, err := e.wire(ctx, true, services.Options{})
		if err != nil {
			return err
		}
		defer s.Close()

		if !noEvents {
			if err := kafka.RunEventProcessor(ctx, e.cfg.Kafka, s.Triage, e.logger); err != nil {
				e.logger.Warn("Kafka event processor not started; re-triage events will not be consumed", zap.Error(err))
			}
		}

		app, err := api.NewFiberApp(s)
		if err != nil {
			return err
		}

		go func() {
			<-ctx.Done()
			e.logger.Info("Shutting down")
			_ = app.Shutdown()
		}()

		e.logger.Info("Listening", zap.String("port", e.cfg.Port))
		return app.Listen(":" + e.cfg.Port)
	},
}

func init() {
	serveCmd.Flags().Bool("no-events", false, "do not consume re-triage events from Kafka")
	rootCmd.AddCommand(serveCmd)
}
