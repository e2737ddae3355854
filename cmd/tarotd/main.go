package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tarottracker/internal/app"
	"tarottracker/internal/config"
	"tarottracker/libs/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tarotd",
		Short:         "Tarot reading session tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newNotifyCmd())
	root.AddCommand(newExportCmd())
	return root
}

func loadApp() (*app.App, *zap.Logger, error) {
	logger, err := logging.NewLogger()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return nil, nil, err
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to init app", zap.Error(err))
		return nil, nil, err
	}
	return application, logger, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker HTTP service",
		RunE: func(_ *cobra.Command, _ []string) error {
			application, logger, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer application.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("service stopped", zap.Error(err))
				return err
			}
			logger.Info("service stopped")
			return nil
		},
	}
}

func newNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Run the notification heuristics once",
		RunE: func(_ *cobra.Command, _ []string) error {
			application, logger, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer application.Close()

			return application.Notify(context.Background())
		},
	}
}

func newExportCmd() *cobra.Command {
	var user, output string

	export := &cobra.Command{
		Use:   "export --user <name>",
		Short: "Export a user's session history as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			application, logger, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer application.Close()

			out := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				out = file
			}
			return application.Export(context.Background(), user, out)
		},
	}
	export.Flags().StringVar(&user, "user", "", "user name")
	export.Flags().StringVar(&output, "output", "", "write CSV to file instead of stdout")
	return export
}
