package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/auth"
	"github.com/RaikyD/isp-order-intake/internal/config"
	"github.com/RaikyD/isp-order-intake/internal/kafka"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/migrate"
	"github.com/RaikyD/isp-order-intake/internal/presentation"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "leadsvc",
	Short:         "Internet order intake service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|status]",
	Short:     "Apply or inspect database migrations",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "status"},
	RunE:      runMigrate,
}

var sweepLimit int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deliver pending submissions once and exit",
	RunE:  runSweep,
}

var fakeSaleCmd = &cobra.Command{
	Use:   "fake-sale",
	Short: "Generate one demo sale and post it to Slack",
	RunE:  runFakeSale,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h)
		return nil
	},
}

func init() {
	sweepCmd.Flags().IntVar(&sweepLimit, "limit", 50, "max submissions to claim")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, fakeSaleCmd, hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.LogDev)
	return cfg, nil
}

func runMigrate(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if len(args) == 1 && args[0] == "status" {
		return migrate.Status(cfg.DBString)
	}
	return migrate.Up(cfg.DBString)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orders.Sweep(cmd.Context(), sweepLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d done=%d retried=%d dead=%d\n", res.Claimed, res.Done, res.Retried, res.Dead)
	return nil
}

func runFakeSale(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	gen := newFakeSales(cmd.Context(), cfg, cat, newSlack(cfg))
	sale, err := gen.Once(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) via %s [%s]\n", sale.CustomerName, sale.SelectedProvider, sale.AgentName, sale.Source)
	return nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(cfg.DBString); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.loadCoverage()

	var consumerDone <-chan struct{}
	if cfg.FanoutMode == config.FanoutQueue {
		consumerDone = kafka.StartConsumer(ctx, a.orders, kafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
	}
	if cfg.SweepInterval > 0 {
		go a.sweepLoop(ctx, cfg.SweepInterval)
	}
	if cfg.FakeSalesAutostart {
		a.scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: presentation.NewRouter(presentation.Deps{
			Orders:         a.orders,
			Providers:      a.providers,
			Availability:   a.availability,
			Validator:      a.validator,
			Catalog:        a.catalog,
			Coverage:       a.matcher,
			Push:           a.push,
			FakeSales:      a.fakeSales,
			Scheduler:      a.scheduler,
			Auth:           auth.NewAuthenticator(cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTTTL),
			VAPIDPublicKey: cfg.VAPIDPublicKey,
			FakeSalesToken: cfg.FakeSalesToken,
			CronSecret:     cfg.CronSecret,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http", "addr", srv.Addr, "fanout", cfg.FanoutMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	a.scheduler.Stop()
	stop()
	if consumerDone != nil {
		<-consumerDone
	}
	return nil
}
