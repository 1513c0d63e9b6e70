package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gocron "github.com/goliatone/go-command/cron"
	crmconnect "github.com/goliatone/go-crm-connect"
	"github.com/goliatone/go-crm-connect/adapters/gocommand"
	"github.com/goliatone/go-crm-connect/adapters/gojob"
	"github.com/goliatone/go-crm-connect/adapters/gologger"
	"github.com/goliatone/go-crm-connect/core"
	"github.com/goliatone/go-crm-connect/httpapi"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	Addr string
}

func NewServeCommand(root *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the integration endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := LoadSettings(nil)
			if err != nil {
				return err
			}
			root.apply(&settings)
			if opts.Addr != "" {
				settings.HTTP.Addr = opts.Addr
			}
			return serve(cmd.Context(), settings)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from CRMCONNECT_HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, settings Settings) error {
	logger := newLogger(settings.Log, nil)

	store, closeStore, err := openTransientStore(ctx, settings.Store, true)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics := core.NewMemoryMetricsRecorder()
	defer logOperationTotals(logger, metrics)

	service, err := crmconnect.NewService(core.Config{},
		crmconnect.WithLogger(logger),
		crmconnect.WithMetricsRecorder(metrics),
		crmconnect.WithTransientStore(store),
		crmconnect.WithConfigProvider(core.NewCfgxConfigProvider(settings)),
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	facade, err := crmconnect.NewFacade(service)
	if err != nil {
		return fmt.Errorf("build facade: %w", err)
	}
	bus, err := gocommand.NewBus(gocommand.WithQueueRegistry(jobqueuecommand.NewRegistry()))
	if err != nil {
		return fmt.Errorf("build command bus: %w", err)
	}
	if err := bus.Mount(facade); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	defer bus.Close()
	if err := bus.Initialize(); err != nil {
		return fmt.Errorf("initialize commands: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := gojob.NewMemoryQueue()
	purgeWorker, err := gojob.NewPurgeWorker(jobs, bus.QueueRegistry(), gojob.WorkerConfig{
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("build purge worker: %w", err)
	}
	if err := purgeWorker.Start(ctx); err != nil {
		return fmt.Errorf("start purge worker: %w", err)
	}
	defer stopWithTimeout(logger, "purge worker", settings.HTTP.ShutdownTimeout, purgeWorker.Stop)

	scheduler := gocron.NewScheduler(
		gocron.WithLogger(gologger.ToCronLogger(logger)),
		gocron.WithErrorHandler(func(err error) {
			logger.Error("purge enqueue failed", "error", err.Error())
		}),
	)
	if _, err := gojob.SchedulePurges(scheduler, jobs, bus.QueueRegistry(), settings.Store.PurgeInterval, nil); err != nil {
		return fmt.Errorf("schedule purges: %w", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer stopWithTimeout(logger, "scheduler", settings.HTTP.ShutdownTimeout, scheduler.Stop)

	server := &http.Server{
		Addr:              settings.HTTP.Addr,
		Handler:           httpapi.New(service, httpapi.WithLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", settings.HTTP.Addr, "store", settings.Store.Driver, "provider", service.ProviderID())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), settings.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func logOperationTotals(logger glog.Logger, metrics *core.MemoryMetricsRecorder) {
	totals := metrics.CounterTotals()
	args := make([]any, 0, len(totals)*2)
	for _, name := range metrics.SortedCounterNames() {
		args = append(args, name, totals[name])
	}
	logger.Info("operation totals", args...)
}

func stopWithTimeout(logger glog.Logger, name string, timeout time.Duration, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Error("stop failed", "component", name, "error", err.Error())
	}
}
