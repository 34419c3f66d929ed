package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adboardhq/platform/shared/config"
	"github.com/adboardhq/platform/shared/enforcement"
	"github.com/adboardhq/platform/shared/entitlements"
	"github.com/adboardhq/platform/shared/events"
	"github.com/adboardhq/platform/shared/utils"
)

var (
	flagTenant     string
	flagDryRun     bool
	flagNotifyOnly bool
	flagWorkers    int
	flagGraceHours int
)

func init() {
	monitorCmd.Flags().StringVar(&flagTenant, "tenant", "", "Limit the sweep to one tenant (id or slug)")
	monitorCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log intended actions without mutating anything")
	monitorCmd.Flags().BoolVar(&flagNotifyOnly, "notify-only", false, "Emit events but apply no corrective mutations")
	monitorCmd.Flags().IntVar(&flagWorkers, "workers", 4, "Tenants processed in parallel")

	enforceLimitsCmd.Flags().StringVar(&flagTenant, "tenant", "", "Limit the sweep to one tenant (id or slug)")
	enforceLimitsCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log intended actions without mutating anything")
	enforceLimitsCmd.Flags().IntVar(&flagWorkers, "workers", 4, "Tenants processed in parallel")
	enforceLimitsCmd.Flags().IntVar(&flagGraceHours, "grace-period", 24, "Hours past expiration before access is restricted")
}

var monitorCmd = &cobra.Command{
	Use:   "subscriptions:monitor",
	Short: "Expire overdue subscriptions and restrict or restore tenant access",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context(), entitlements.GraceFromEnv())
	},
}

var enforceLimitsCmd = &cobra.Command{
	Use:   "subscriptions:enforce-limits",
	Short: "Detect plan-limit overages and apply per-feature remediation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context(), time.Duration(flagGraceHours)*time.Hour)
	},
}

// logSink replaces the Kafka producer in dry runs so intended events show up
// in the log instead of on the wire.
type logSink struct {
	log *logrus.Logger
}

func (s logSink) Emit(event events.Event) error {
	s.log.WithFields(logrus.Fields{
		"event_type": event.Type,
		"tenant_id":  event.TenantID,
		"reason":     event.Reason,
	}).Info("[dry-run] Would emit event")
	return nil
}

// runSweep wires the sweeper and executes one enforcement pass. Per-tenant
// failures are counted in the stats, not surfaced as a process failure; a
// sweep that loaded its subscriptions exits zero.
func runSweep(ctx context.Context, grace time.Duration) error {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	log := logrus.New()

	db, err := config.ConnectDatabase()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := utils.InitRedis(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer utils.CloseRedis()

	engine := entitlements.NewEngine(entitlements.NewGormUsageSource(db), grace)

	sink, cleanup, err := buildSink(log)
	if err != nil {
		return err
	}
	defer cleanup()

	sweeper := enforcement.NewSweeper(
		enforcement.NewGormStore(db),
		engine,
		sink,
		enforcement.RedisLocker{},
		log,
	)

	if ctx == nil {
		ctx = context.Background()
	}
	stats, err := sweeper.Run(ctx, enforcement.Options{
		Tenant:     flagTenant,
		DryRun:     flagDryRun,
		NotifyOnly: flagNotifyOnly,
		Workers:    flagWorkers,
	})
	if err != nil {
		return err
	}

	fmt.Println(stats.String())
	return nil
}

// buildSink returns the event sink for this run: a log sink for dry runs,
// the Kafka producer otherwise.
func buildSink(log *logrus.Logger) (enforcement.EventSink, func(), error) {
	if flagDryRun {
		return logSink{log: log}, func() {}, nil
	}

	producer, err := events.NewProducer(os.Getenv("KAFKA_BROKER"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}
