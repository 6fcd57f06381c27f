package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agentscore/internal/clock"
	"agentscore/internal/config"
	"agentscore/internal/execution"
	"agentscore/internal/filestore"
	"agentscore/internal/httpclient"
	"agentscore/internal/ledger"
	"agentscore/internal/lock"
	"agentscore/internal/logging"
	"agentscore/internal/moltbook"
	"agentscore/internal/observability"
	"agentscore/internal/server"
	"agentscore/internal/state"
	"agentscore/internal/tasksource"
	"agentscore/internal/worker"
)

// app is the wired worker process.
type app struct {
	cfg        config.WorkerConfig
	statePath  string
	lock       *lock.FileLock
	metrics    *observability.MetricsCollector
	tracer     *observability.TracerProvider
	controller *worker.Controller
	status     *server.Server
	logger     logging.Logger
}

func runWorker(cmd *cobra.Command, flags *cliFlags) error {
	cfg, meta, err := flags.loadConfig(cmd)
	if err != nil {
		return err
	}

	obsLogger := observability.NewLogger(cfg.Observability.Logging)
	logging.SetBase(obsLogger)
	logger := logging.NewComponentLogger("main")
	if file := meta.File(); file != "" {
		logger.Info("configuration loaded from %s", file)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cfg, clock.Real())
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	printBanner(out, cfg, a.statePath)

	if err := a.controller.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.controller.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		a.controller.Shutdown(context.WithoutCancel(gctx))
		return nil
	})
	if a.status != nil {
		g.Go(func() error {
			return a.status.Serve(gctx)
		})
	}
	err = g.Wait()

	fmt.Fprintln(out)
	printStats(out, "Final stats", a.controller.Stats())
	return err
}

// buildApp wires every collaborator from cfg and takes the state lock.
func buildApp(cfg config.WorkerConfig, clk clock.Clock) (*app, error) {
	logger := logging.NewComponentLogger("worker")

	statePath := filestore.ResolvePath(cfg.StatePath, config.DefaultStatePath)
	if err := filestore.EnsureParentDir(statePath); err != nil {
		return nil, fmt.Errorf("prepare state directory: %w", err)
	}
	fileLock := lock.ForSnapshot(statePath)
	if err := fileLock.TryLock(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, fmt.Errorf("another worker already owns %s: %w", statePath, err)
		}
		return nil, err
	}

	a := &app{cfg: cfg, statePath: statePath, lock: fileLock, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		return nil, err
	}
	a.metrics = metrics

	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
		tracer = observability.NoopTracerProvider()
	}
	a.tracer = tracer

	var source tasksource.Source = tasksource.NewLocal()
	if cfg.TaskSourceURL != "" {
		client := httpclient.NewWithCircuitBreaker(cfg.HTTPTimeout, logging.NewComponentLogger("task-source"), "task-source")
		source = tasksource.NewHTTPSource(cfg.TaskSourceURL, cfg.TaskTier, client)
	}

	var scores ledger.Ledger = ledger.NewMemory()
	if cfg.LedgerURL != "" {
		client := httpclient.NewWithCircuitBreaker(cfg.HTTPTimeout, logging.NewComponentLogger("ledger"), "ledger")
		scores = ledger.NewHTTP(cfg.LedgerURL, client)
	}

	var moltbookClient *moltbook.Client
	if cfg.MoltbookEnabled {
		client := httpclient.NewWithCircuitBreaker(cfg.MoltbookTimeout, logging.NewComponentLogger("moltbook"), "moltbook")
		moltbookClient = moltbook.NewClient(cfg.MoltbookURL, client)
	}
	channel := moltbook.NewChannel(moltbook.ChannelConfig{
		Identity:         cfg.Identity,
		Client:           moltbookClient,
		Live:             cfg.MoltbookLive,
		BroadcastSpacing: cfg.BroadcastSpacing,
		CommentSpacing:   cfg.CommentSpacing,
		Clock:            clk,
		Logger:           logging.NewComponentLogger("moltbook"),
	})

	profile, err := cfg.RatingRange()
	if err != nil {
		return nil, err
	}
	engine, err := execution.New(execution.Config{
		Profile:  profile,
		MinDelay: cfg.MinDelay,
		MaxDelay: cfg.MaxDelay,
	})
	if err != nil {
		return nil, err
	}

	controller, err := worker.New(worker.Config{
		PollInterval:     cfg.PollInterval,
		MockInterval:     cfg.MockInterval,
		ReportInterval:   cfg.ReportInterval,
		MockTasks:        cfg.MockTasks,
		MockPayout:       cfg.MockPayout,
		ShutdownGrace:    cfg.ShutdownGrace,
		SettledCacheSize: worker.DefaultConfig().SettledCacheSize,
	}, worker.Deps{
		Identity: cfg.Identity,
		Source:   source,
		Ledger:   scores,
		Channel:  channel,
		Engine:   engine,
		Store:    state.NewFileStore(statePath, clk, logging.NewComponentLogger("state")),
		Clock:    clk,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})
	if err != nil {
		return nil, err
	}
	a.controller = controller

	if cfg.StatusAddr != "" {
		a.status = server.New(server.Config{
			Addr:            cfg.StatusAddr,
			ShutdownTimeout: cfg.ShutdownGrace,
		}, controller, metrics.Handler(), logging.NewComponentLogger("status"))
	}

	ok = true
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer cancel()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown: %v", err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics shutdown: %v", err)
		}
	}
	if err := a.lock.Unlock(); err != nil {
		a.logger.Warn("release %s: %v", a.lock.Path(), err)
	}
}
