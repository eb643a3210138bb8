package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/copybill/internal/billing"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	"github.com/smallbiznis/copybill/internal/billingperiod"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	"github.com/smallbiznis/copybill/internal/cache"
	"github.com/smallbiznis/copybill/internal/clock"
	"github.com/smallbiznis/copybill/internal/config"
	"github.com/smallbiznis/copybill/internal/consumption"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	"github.com/smallbiznis/copybill/internal/device"
	"github.com/smallbiznis/copybill/internal/migration"
	"github.com/smallbiznis/copybill/internal/observability"
	"github.com/smallbiznis/copybill/internal/pricing"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"github.com/smallbiznis/copybill/internal/reading"
	"github.com/smallbiznis/copybill/internal/redis"
	"github.com/smallbiznis/copybill/internal/server"
	"github.com/smallbiznis/copybill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const commandTimeout = 2 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "copybill",
		Short:         "Copier counter reconciliation and billing",
		Version:       readVersionFromEnv(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newDebtCmd(), newInvoiceCmd(), newHistoryCmd(), newFleetCmd(), newDeviceCmd())
	return root
}

// engineModules wires everything needed to answer billing queries.
func engineModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		db.Module,
		clock.Module,
		redis.Module,
		cache.Module,
		reading.Module,
		device.Module,
		billingperiod.Module,
		consumption.Module,
		pricing.Module,
		billing.Module,
	)
}

func newMigrateCmd() *cobra.Command {
	var opts migration.Options
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the local reading and registry schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx")}
				}),
				fx.Provide(registerSnowflake),
				fx.Supply(opts),
				db.Module,
				clock.Module,
				migration.Module,
			)

			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("migrate failed: %w", err)
			}
			_ = app.Stop(context.Background())
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Archive, "archive", false, "also create the legacy readings table")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "load a demo fleet when the registry is empty")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(engineModules(), server.Module)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

type queryFlags struct {
	client     string
	date       string
	convention string
	ruleSet    string
}

func (f *queryFlags) bindClient(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.client, "client", "", "client id")
}

func (f *queryFlags) bindDate(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "reference date, YYYY-MM-DD or RFC3339 (default now)")
}

func newDebtCmd() *cobra.Command {
	var (
		flags queryFlags
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "debt",
		Short: "Print a client's balance, or every client's with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBilling(cmd.Context(), func(ctx context.Context, deps billingDeps) (any, error) {
				date, err := parseDate(flags.date, deps.Resolver.Location())
				if err != nil {
					return nil, err
				}
				convention := consumptiondomain.Convention(flags.convention)
				ruleSet := pricingdomain.RuleSet(flags.ruleSet)
				if all {
					return deps.Billing.AllClientDebts(ctx, billingdomain.BatchRequest{
						Date:       date,
						Convention: convention,
						RuleSet:    ruleSet,
					})
				}
				clientID, err := parseClient(flags.client)
				if err != nil {
					return nil, err
				}
				return deps.Billing.ClientDebt(ctx, billingdomain.DebtRequest{
					ClientID:   clientID,
					Date:       date,
					Convention: convention,
					RuleSet:    ruleSet,
				})
			})
		},
	}
	flags.bindClient(cmd)
	flags.bindDate(cmd)
	cmd.Flags().StringVar(&flags.convention, "convention", string(consumptiondomain.ConventionLifetime), "lifetime or period")
	cmd.Flags().StringVar(&flags.ruleSet, "rule-set", string(pricingdomain.RuleSetDebt), "debt or invoice")
	cmd.Flags().BoolVar(&all, "all", false, "compute every client concurrently")
	return cmd
}

func newInvoiceCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Print invoice lines for a client's billing period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBilling(cmd.Context(), func(ctx context.Context, deps billingDeps) (any, error) {
				clientID, err := parseClient(flags.client)
				if err != nil {
					return nil, err
				}
				date, err := parseDate(flags.date, deps.Resolver.Location())
				if err != nil {
					return nil, err
				}
				return deps.Billing.InvoiceLines(ctx, billingdomain.InvoiceRequest{ClientID: clientID, Date: date})
			})
		},
	}
	flags.bindClient(cmd)
	flags.bindDate(cmd)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		flags   queryFlags
		periods int
		order   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a client's consumption over past billing periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBilling(cmd.Context(), func(ctx context.Context, deps billingDeps) (any, error) {
				clientID, err := parseClient(flags.client)
				if err != nil {
					return nil, err
				}
				date, err := parseDate(flags.date, deps.Resolver.Location())
				if err != nil {
					return nil, err
				}
				parsedOrder, err := billingperioddomain.ParseOrder(order)
				if err != nil {
					return nil, err
				}
				return deps.Billing.ClientHistory(ctx, billingdomain.HistoryRequest{
					ClientID:   clientID,
					Date:       date,
					Periods:    periods,
					Order:      parsedOrder,
					Convention: consumptiondomain.Convention(flags.convention),
					RuleSet:    pricingdomain.RuleSet(flags.ruleSet),
				})
			})
		},
	}
	flags.bindClient(cmd)
	flags.bindDate(cmd)
	cmd.Flags().IntVar(&periods, "periods", 12, "number of billing periods")
	cmd.Flags().StringVar(&order, "order", string(billingperioddomain.OrderNewestFirst), "newest_first or oldest_first")
	cmd.Flags().StringVar(&flags.convention, "convention", string(consumptiondomain.ConventionPeriod), "lifetime or period")
	cmd.Flags().StringVar(&flags.ruleSet, "rule-set", string(pricingdomain.RuleSetDebt), "debt or invoice")
	return cmd
}

func newFleetCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Print fleet consumption per client for a billing period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBilling(cmd.Context(), func(ctx context.Context, deps billingDeps) (any, error) {
				date, err := parseDate(flags.date, deps.Resolver.Location())
				if err != nil {
					return nil, err
				}
				req := billingdomain.FleetRequest{Date: date}
				if strings.TrimSpace(flags.client) != "" {
					clientID, err := parseClient(flags.client)
					if err != nil {
						return nil, err
					}
					req.ClientID = &clientID
				}
				return deps.Billing.FleetConsumption(ctx, req)
			})
		},
	}
	flags.bindClient(cmd)
	flags.bindDate(cmd)
	return cmd
}

func newDeviceCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "device <device-id>",
		Short: "Print one device's consumption and owner for a billing period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBilling(cmd.Context(), func(ctx context.Context, deps billingDeps) (any, error) {
				date, err := parseDate(flags.date, deps.Resolver.Location())
				if err != nil {
					return nil, err
				}
				return deps.Billing.DeviceConsumption(ctx, billingdomain.DeviceRequest{
					DeviceID:   args[0],
					Date:       date,
					Convention: consumptiondomain.Convention(flags.convention),
				})
			})
		},
	}
	flags.bindDate(cmd)
	cmd.Flags().StringVar(&flags.convention, "convention", string(consumptiondomain.ConventionPeriod), "lifetime or period")
	return cmd
}

type billingDeps struct {
	fx.In

	Billing  billingdomain.Service
	Resolver billingperioddomain.Resolver
}

// withBilling starts the engine without the HTTP server, runs one query and prints it as JSON.
func withBilling(parent context.Context, query func(context.Context, billingDeps) (any, error)) error {
	if parent == nil {
		parent = context.Background()
	}
	var deps billingDeps
	app := fx.New(
		engineModules(),
		fx.Invoke(func(d billingDeps) { deps = d }),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	result, err := query(ctx, deps)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseClient(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: --client is required", billingdomain.ErrInvalidClient)
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", billingdomain.ErrInvalidClient, value)
	}
	return id, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	parsed, err := time.ParseInLocation(time.DateOnly, trimmed, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", billingperioddomain.ErrInvalidPeriod, value)
	}
	return parsed, nil
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
