package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mweyns/unshacled/internal/component"
	"github.com/mweyns/unshacled/internal/config"
	"github.com/mweyns/unshacled/internal/dag"
	"github.com/mweyns/unshacled/internal/engine"
	"github.com/mweyns/unshacled/internal/modeldata"
	"github.com/mweyns/unshacled/internal/resilience"
	"github.com/mweyns/unshacled/internal/rewrite"
	"github.com/mweyns/unshacled/internal/task"
	"github.com/mweyns/unshacled/internal/telemetry"
	"github.com/mweyns/unshacled/internal/trigger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Host the scheduler, wiring any configured cron/event triggers and a health endpoint",
	RunE:  runE,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// incrementTask is the demo unit of work: it reads and writes DataGraph,
// bumping an in-model counter. Clones of it form a dependency chain the
// fusing rewriter below can collapse into a single execution.
func incrementTask(priority int) *task.Task {
	rw := component.NewSet(component.DataGraph)
	return task.New(func(d *modeldata.Store) {
		cur, _ := d.Get(component.DataGraph)
		n, _ := cur.(int)
		d.Set(component.DataGraph, n+1)
	}, rw, rw, priority)
}

// fusingRewriter merges two adjacent DataGraph increments into a single
// task that runs both closures back to back, so the fused result leaves
// the model exactly as running the pair sequentially would.
func fusingRewriter() *rewrite.SimpleTaskRewriter {
	isIncrement := func(t *task.Task) bool {
		return t.Reads().Has(component.DataGraph) && t.Writes().Has(component.DataGraph) &&
			len(t.Reads()) == 1 && len(t.Writes()) == 1
	}
	return rewrite.New(
		func(first, second *task.Task) bool {
			return isIncrement(first) && isIncrement(second)
		},
		func(first, second *task.Task) *task.Task {
			rw := component.NewSet(component.DataGraph)
			return task.New(func(d *modeldata.Store) {
				first.Execute(d)
				second.Execute(d)
			}, rw, rw, first.Priority())
		},
	)
}

func runE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.InitLogger(cfg.Service, cfg.Log.Level, cfg.Log.JSON)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := telemetry.InitTracer(ctx, cfg.Service)
	shutdownMetrics, instruments := telemetry.InitMetrics(ctx, cfg.Service)
	defer func() {
		sdCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = shutdownTrace(sdCtx)
		_ = shutdownMetrics(sdCtx)
	}()

	baseline := modeldata.New()
	baseline.ObserveChanges(func(written component.Set) {
		logger.Debug("components written", "count", len(written))
	})

	processor := dag.New(baseline)
	processor.RegisterRewriter(fusingRewriter())

	eng := engine.New(processor, logger)
	eng.SetInstruments(instruments.InstructionsScheduled, instruments.InstructionsProcessed, instruments.InstructionDuration, instruments.RewritesFused)
	if _, err := telemetry.RegisterReadyQueueDepth(func() int64 {
		depth, _ := eng.Stats()
		return int64(depth)
	}); err != nil {
		logger.Warn("ready queue gauge registration failed", "error", err)
	}

	if cfg.Resilience.Strict {
		policy := resilience.NewClosureFailurePolicy(cfg.Resilience.MinSamples, cfg.Resilience.FailureRate)
		eng.SetFailurePolicy(policy)
		logger.Info("strict closure-failure policy enabled", "min_samples", cfg.Resilience.MinSamples, "failure_rate", cfg.Resilience.FailureRate)
	}

	if cfg.Cron.Enabled {
		cronTrigger := trigger.NewCronTrigger(eng, logger)
		if _, err := cronTrigger.AddSchedule("demo-increment", cfg.Cron.Expression, func() *task.Task {
			return incrementTask(0)
		}); err != nil {
			return fmt.Errorf("add cron schedule: %w", err)
		}
		cronTrigger.Start()
		defer cronTrigger.Stop()
	}

	if cfg.Events.Enabled {
		nc, err := nats.Connect(cfg.Events.URL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Drain()

		eventTrigger := trigger.NewEventTrigger(nc, eng, logger)
		if _, err := eventTrigger.Subscribe(cfg.Events.Subject, trigger.Filter{}, func(data map[string]any) *task.Task {
			return incrementTask(1)
		}); err != nil {
			return fmt.Errorf("subscribe events: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		depth, empty := eng.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"ready_depth": depth,
			"idle":        empty,
		})
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("unshacledd started", "addr", cfg.HTTPAddr, "cron", cfg.Cron.Enabled, "events", cfg.Events.Enabled, "strict", cfg.Resilience.Strict)
	<-ctx.Done()
	logger.Info("shutdown initiated")

	sdCtx, sdCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sdCancel()
	_ = srv.Shutdown(sdCtx)
	logger.Info("shutdown complete")
	return nil
}
