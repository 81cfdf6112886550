package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"

	"github.com/quantdesk/agentmem/pkg/agentmem"
	"github.com/quantdesk/agentmem/pkg/config"
	"github.com/quantdesk/agentmem/pkg/log"
)

// cycleTimeout bounds one verification cycle including all price lookups.
const cycleTimeout = 5 * time.Minute

func main() {
	configPath := flag.String("config", "agentmem.yaml", "Path to configuration file")
	runOnce := flag.Bool("once", false, "Run a single verification cycle and exit")
	flag.Parse()

	// A missing .env file is fine; explicit environment still applies.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Setup(cfg.Logging)
	log.Info("Starting reflection daemon",
		"driver", cfg.Storage.Driver, "schedule", cfg.Reflection.Schedule)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := agentmem.Open(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize agent memory subsystem", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if *runOnce {
		if err := runCycle(ctx, client); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, client, cfg.Reflection.Schedule); err != nil {
		log.Error("Daemon stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Reflection daemon stopped")
}

// run ticks every minute and fires a verification cycle whenever the cron
// expression is due. A long cycle simply delays the next check; cycles never
// overlap.
func run(ctx context.Context, client *agentmem.Client, schedule string) error {
	gron := gronx.New()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// One immediate cycle on startup clears any backlog accumulated while
	// the daemon was down.
	if err := runCycle(ctx, client); err != nil && ctx.Err() != nil {
		return nil
	}

	var lastFired time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			minute := now.Truncate(time.Minute)
			if minute.Equal(lastFired) {
				continue
			}

			due, err := gron.IsDue(schedule, minute)
			if err != nil {
				return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
			}
			if !due {
				continue
			}

			lastFired = minute
			if err := runCycle(ctx, client); err != nil && ctx.Err() != nil {
				return nil
			}
		}
	}
}

func runCycle(ctx context.Context, client *agentmem.Client) error {
	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	report, err := client.Scheduler().RunCycle(cycleCtx)
	if err != nil {
		log.Error("Verification cycle failed", "error", err)
		return err
	}

	if report.Claimed > 0 {
		log.Info("Verification cycle done",
			"claimed", report.Claimed, "completed", report.Completed,
			"skipped", report.Skipped, "failed", report.Failed)
	}
	return nil
}
