package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/billing/clock"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/observability"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/scheduler"
)

const shutdownTimeout = 15 * time.Second

// withApp loads the app, starts the engine, runs fn and always closes the
// app afterwards.
func withApp(cmd *cobra.Command, load loader, fn func(ctx context.Context, a *app) error) error {
	a, err := load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}()

	if err := a.start(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, load, func(_ context.Context, a *app) error {
				fmt.Fprintf(cmd.OutOrStdout(), "store %q is up to date\n", a.cfg.Store.Driver)
				return nil
			})
		},
	}
}

func newRenewCmd(load loader) *cobra.Command {
	var (
		customerID string
		date       string
	)
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Renew one customer, or every customer due on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var custID id.ID
			if customerID != "" {
				parsed, err := id.ParseCustomerID(customerID)
				if err != nil {
					return fmt.Errorf("--customer: %w", err)
				}
				custID = parsed
			}
			var day time.Time
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				day = parsed
			}

			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if !custID.IsNil() {
					assignment, err := a.engine.RenewPlan(ctx, custID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "renewed %s until %s\n", custID, assignment.RenewalDate.Format(time.DateOnly))
					return nil
				}

				if day.IsZero() {
					day = clock.System{}.Now()
				}
				sweeper := scheduler.New(a.engine, scheduler.WithLogger(a.logger))
				report, err := sweeper.RunOnce(ctx, day)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: due %d, renewed %d, failed %d\n",
					report.Day.Format(time.DateOnly), report.Due, report.Renewed, len(report.Failed))
				for cust, ferr := range report.Failed {
					fmt.Fprintf(out, "  %s: %v\n", cust, ferr)
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d renewals failed", len(report.Failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "renew only this customer id")
	cmd.Flags().StringVar(&date, "date", "", "sweep the renewals due on this day, YYYY-MM-DD (default: today, UTC)")
	cmd.MarkFlagsMutuallyExclusive("customer", "date")
	return cmd
}

func newSchedulerCmd(load loader) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the renewal sweep on its cron schedule and serve /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(registry))

			a, err := load(cmd, metrics)
			if err != nil {
				return err
			}
			return runScheduler(ctx, a, registry, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address of the metrics endpoint (default: metrics.addr)")
	return cmd
}

func runScheduler(ctx context.Context, a *app, registry *prometheus.Registry, metricsAddr string) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}()
	if err := a.start(ctx); err != nil {
		return err
	}

	if metricsAddr == "" {
		metricsAddr = a.cfg.Metrics.Addr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("metrics server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sweeper := scheduler.New(a.engine,
		scheduler.WithLogger(a.logger),
		scheduler.WithSchedule(a.cfg.Scheduler.Schedule),
	)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down scheduler")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, sweeper.Stop(shutdownCtx), server.Shutdown(shutdownCtx))
}

func newPlansCmd(load loader) *cobra.Command {
	plans := &cobra.Command{
		Use:   "plans",
		Short: "Inspect the plan catalog",
	}

	var includeInactive bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				catalog, err := a.engine.ListPlans(ctx, plan.ListOpts{IncludeInactive: includeInactive})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRICE\tACTIVE")
				for _, p := range catalog {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Type, priceOf(p), p.IsActive)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().BoolVar(&includeInactive, "all", false, "include deactivated plans")

	plans.AddCommand(list)
	return plans
}

func priceOf(p *plan.Plan) string {
	switch {
	case p.Package != nil:
		return fmt.Sprintf("%d/%s", p.Package.Price, p.Package.Validity)
	case p.PayAsYouGo != nil:
		return fmt.Sprintf("%d/interview", p.PayAsYouGo.InterviewRate)
	default:
		return "-"
	}
}

func newCustomersCmd(load loader) *cobra.Command {
	customers := &cobra.Command{
		Use:   "customers",
		Short: "Inspect customer accounts",
	}

	get := &cobra.Command{
		Use:   "get <customer-id>",
		Short: "Print a customer account as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			custID, err := id.ParseCustomerID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				c, err := a.engine.GetCustomer(ctx, custID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			})
		},
	}

	customers.AddCommand(get)
	return customers
}
