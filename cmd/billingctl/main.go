// Command billingctl operates a billing deployment: it migrates the store,
// runs renewal sweeps once or on a schedule, and inspects plans and
// customers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/billing"
	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/internal/config"
	"github.com/xraph/billing/lock/redislock"
	"github.com/xraph/billing/plugin"
	"github.com/xraph/billing/store"
	"github.com/xraph/billing/store/memory"
	"github.com/xraph/billing/store/postgres"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operate the subscription billing engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: ./billing.yaml when present)")

	load := func(cmd *cobra.Command, plugins ...plugin.Plugin) (*app, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return newApp(cmd.Context(), cfg, cmd.ErrOrStderr(), plugins...)
	}

	root.AddCommand(
		newMigrateCmd(load),
		newRenewCmd(load),
		newSchedulerCmd(load),
		newPlansCmd(load),
		newCustomersCmd(load),
	)
	return root
}

// loader builds the application for one command invocation.
type loader func(cmd *cobra.Command, plugins ...plugin.Plugin) (*app, error)

// app holds what a command needs: the resolved config, the logger and an
// engine over the configured store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *billing.Engine
	closer []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer, plugins ...plugin.Plugin) (*app, error) {
	logger, err := cfg.Log.NewLogger(logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	opts := []billing.Option{
		billing.WithLogger(logger),
		billing.WithOperationTimeout(cfg.Engine.OperationTimeout),
		billing.WithDefaults(billing.Defaults{
			Currency:    cfg.Engine.Currency,
			PaymentType: customer.PaymentType(cfg.Engine.PaymentType),
			TaxRate:     cfg.Engine.TaxRate,
		}),
	}
	if cfg.Redis.URL != "" {
		locker, err := redislock.Dial(ctx, cfg.Redis.URL, redislock.WithTTL(cfg.Redis.LockTTL))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closer = append(a.closer, locker.Close)
		opts = append(opts, billing.WithLocker(locker))
	}
	for _, p := range plugins {
		opts = append(opts, billing.WithPlugin(p))
	}

	a.engine = billing.New(s, opts...)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DSN, cfg.MaxConns, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		logger.Warn("using the in-memory store; nothing is persisted")
		return memory.New(), nil
	}
}

// start migrates the store and initializes plugins.
func (a *app) start(ctx context.Context) error {
	return a.engine.Start(ctx)
}

// Close stops the engine, which closes the store, then releases the rest.
func (a *app) Close(ctx context.Context) error {
	err := a.engine.Stop(ctx)
	for _, c := range a.closer {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
