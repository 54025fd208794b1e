package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"pairlab/internal/api"
	"pairlab/internal/event"
	"pairlab/internal/experiment"
	"pairlab/internal/gateway"
	"pairlab/internal/logging"
	"pairlab/internal/metrics"
	"pairlab/internal/results"
	"pairlab/internal/stimuli"

	"golang.org/x/time/rate"
)

const eventHistorySize = 512

// application is one wired pairlab process: the hub and its engine, the
// experiment event bus, the stimulus store and the optional result recorder.
type application struct {
	cfg      Config
	logger   *logging.Logger
	metrics  *metrics.Registry
	events   *event.Bus[event.ExperimentEvent]
	stimuli  *stimuli.Store
	watcher  *stimuli.Watcher
	store    *results.SQLStore
	hub      *gateway.Hub
	handler  http.Handler
	shutdown *shutdownCoordinator

	stopEvents   context.CancelFunc
	stopHub      context.CancelFunc
	hubDone      chan struct{}
	stopRecorder func()
	recorderDone chan struct{}
}

func newApplication(ctx context.Context, cfg Config, output io.Writer) (*application, error) {
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel, output)
	app := &application{
		cfg:      cfg,
		logger:   logger,
		metrics:  &metrics.Registry{},
		shutdown: newShutdownCoordinator(logger.Category("shutdown")),
	}

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	app.stopEvents = stopEvents
	app.events = event.NewBus[event.ExperimentEvent](eventsCtx, event.BusOptions{
		Name:        "experiment_events",
		HistorySize: eventHistorySize,
		Registry:    app.metrics,
	})

	if err := app.loadStimuli(); err != nil {
		app.abort()
		return nil, err
	}
	if err := app.openResults(ctx); err != nil {
		app.abort()
		return nil, err
	}

	app.hub = gateway.NewHub(gateway.HubOptions{
		Engine: experiment.Options{
			Stimuli:   app.stimuli,
			Publisher: app.events,
		},
		Logger:     logger,
		Metrics:    app.metrics,
		SendBuffer: cfg.SendBuffer,
		RateLimit:  rate.Limit(cfg.RateLimit),
		RateBurst:  cfg.RateBurst,
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	app.stopHub = stopHub
	app.hubDone = make(chan struct{})
	go func() {
		defer close(app.hubDone)
		_ = app.hub.Run(hubCtx)
	}()

	routerOptions := api.Options{
		Hub:            app.hub,
		Events:         app.events,
		Stimuli:        app.stimuli,
		Logger:         logger,
		Metrics:        app.metrics,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if app.store != nil {
		routerOptions.Results = app.store
	}
	app.handler = api.NewRouter(routerOptions)

	app.registerShutdown()
	return app, nil
}

func (app *application) loadStimuli() error {
	set := stimuli.Default()
	if app.cfg.StimuliFile != "" {
		loaded, err := stimuli.LoadFile(app.cfg.StimuliFile)
		if err != nil {
			return err
		}
		set = loaded
	}
	app.stimuli = stimuli.NewStore(set)
	app.logger.Category("stimuli").Info("stimuli loaded", map[string]string{
		"name":    set.Name,
		"trials":  strconv.Itoa(len(set.Targets)),
		"choices": strconv.Itoa(len(set.Choices)),
	})

	if app.cfg.StimuliFile == "" {
		return nil
	}
	watcher, err := stimuli.Watch(app.cfg.StimuliFile, app.stimuli, stimuli.WatcherOptions{
		Logger: app.logger,
	})
	if err != nil {
		// Reloading is a convenience; the loaded set still serves.
		app.logger.Category("stimuli").Warn("stimuli watch unavailable", map[string]string{
			"path":  app.cfg.StimuliFile,
			"error": err.Error(),
		})
		return nil
	}
	app.watcher = watcher
	return nil
}

func (app *application) openResults(ctx context.Context) error {
	if app.cfg.ResultsDSN == "" {
		app.logger.Category("results").Info("result recording disabled", nil)
		return nil
	}
	store, err := results.Open(ctx, app.cfg.ResultsDSN)
	if err != nil {
		return fmt.Errorf("open results store: %w", err)
	}
	app.store = store

	recorder := results.NewRecorder(store, results.RecorderOptions{
		Logger:  app.logger,
		Metrics: app.metrics,
	})
	trials, unsubscribe := app.events.SubscribeTypes(event.TypeTrialCompleted)
	app.stopRecorder = unsubscribe
	app.recorderDone = make(chan struct{})
	go func() {
		defer close(app.recorderDone)
		recorder.Run(context.Background(), trials)
	}()
	app.logger.Category("results").Info("result recording enabled", map[string]string{
		"dialect": store.Dialect(),
	})
	return nil
}

// registerShutdown orders teardown so that no participant event is handled
// after the bus or the store is gone.
func (app *application) registerShutdown() {
	app.shutdown.Add("gateway", func(ctx context.Context) error {
		app.stopHub()
		return waitDone(ctx, app.hubDone)
	})
	app.shutdown.Add("stimuli", func(ctx context.Context) error {
		return app.watcher.Close()
	})
	if app.store != nil {
		app.shutdown.Add("recorder", func(ctx context.Context) error {
			app.stopRecorder()
			return waitDone(ctx, app.recorderDone)
		})
	}
	app.shutdown.Add("events", func(ctx context.Context) error {
		app.stopEvents()
		return nil
	})
	if app.store != nil {
		app.shutdown.Add("results", func(ctx context.Context) error {
			return app.store.Close()
		})
	}
}

// abort releases whatever was opened before construction failed.
func (app *application) abort() {
	if app.watcher != nil {
		_ = app.watcher.Close()
	}
	if app.stopRecorder != nil {
		app.stopRecorder()
	}
	if app.store != nil {
		_ = app.store.Close()
	}
	app.stopEvents()
}

func (app *application) Close(ctx context.Context) error {
	return app.shutdown.Run(ctx)
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("timed out waiting for shutdown"), ctx.Err())
	}
}
