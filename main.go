package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"

	"github.com/JSNN15/PPE-Detection-System/mode"
	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/pipeline"
	"github.com/JSNN15/PPE-Detection-System/service/bus"
	"github.com/JSNN15/PPE-Detection-System/service/config"
	"github.com/JSNN15/PPE-Detection-System/service/data"
	"github.com/JSNN15/PPE-Detection-System/service/dispatch"
	"github.com/JSNN15/PPE-Detection-System/service/inference"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
	"github.com/JSNN15/PPE-Detection-System/service/metrics"
	"github.com/JSNN15/PPE-Detection-System/service/roster"
	"github.com/JSNN15/PPE-Detection-System/service/rules"
	"github.com/JSNN15/PPE-Detection-System/service/webhook"
)

const (
	// WARNING: this has to be bigger than the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"run":      mode.Run,
	"validate": mode.Validate,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			panic("error loading .env file")
		}
	}

	modeType := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	inputFolder := os.Getenv("INPUT_FOLDER")
	if inputFolder == "" {
		inputFolder = "./settings"
	}

	// Create the services needed for the mode processor
	// Config service
	cfgSvc, err := config.NewYaml(inputFolder)
	if err != nil {
		lgr.Logger.Error("error loading configuration", slog.Any("error", err))
		panic("error loading configuration")
	}

	// Rule engine. A malformed rule set is fatal; the pipeline must not run
	// with partial rules.
	rulesSvc, err := rules.NewEngine(cfgSvc.GetPPEConfig(), cfgSvc.GetDefaultConfidenceThreshold())
	if err != nil {
		lgr.Logger.Error("error building rule engine", slog.Any("error", err))
		panic("error building rule engine")
	}

	// Metrics registry
	mets := metrics.New()

	// Delivery sinks. Validate mode never delivers, so it gets an empty
	// dispatcher and no broker connection attempts.
	var sinkConfigs []dispatch.SinkConfig
	if modeType != "validate" {
		sinkConfigs, err = buildSinks(cfgSvc)
		if err != nil {
			lgr.Logger.Error("error building sinks", slog.Any("error", err))
			panic("error building sinks")
		}
	}

	// Dispatch service
	dispatchSvc := dispatch.New(canxCtx,
		cfgSvc.GetSinkQueueDepth(),
		mets,
		sinkConfigs...)

	// Roster service
	rosterSvc, err := roster.NewChannel(canxCtx, cfgSvc)
	if err != nil {
		lgr.Logger.Error("error creating roster service", slog.Any("error", err))
		panic("error creating roster service")
	}

	svcs := pipeline.ServicesFactory{
		CfgSvc:          cfgSvc,
		RulesSvc:        rulesSvc,
		DispatchSvc:     dispatchSvc,
		RosterSvc:       rosterSvc,
		Mets:            mets,
		DetectorFactory: detectorFactory(cfgSvc),
	}

	// Process surface: metrics, health and operator resets
	httpServer := newHTTPServer(cfgSvc, rosterSvc, mets)
	go func() {
		serveErr := httpServer.ListenAndServe()
		if serveErr != nil && serveErr != http.ErrServerClosed {
			lgr.Logger.Error("http server exited", slog.Any("error", xerrors.New(serveErr.Error())))
		}
	}()

	// Create mode processor result
	modeProcResult := make(chan error)
	defer close(modeProcResult)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs)
	}()

	// Wait for cancellation or the mode proc
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"detector pod context cancelled",
			)
			goto resume

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Info(
					"detector pod mode processor exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			goto resume
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for all the go routines to exit
	// This is needed because the go routines may need to report errors as they are exiting
resume:
	// Cancel the context if not already cancelled
	if canxCtx.Err() == nil {
		canxFn()
	}

	shutdownCtx, shutdownCanxFn := context.WithTimeout(rootCtx, 2*time.Second)
	defer shutdownCanxFn()
	_ = httpServer.Shutdown(shutdownCtx)

	lgr.Logger.Info(
		"detector pod is waiting for all go routines to exit",
	)

	// The only way to exit the main function is to wait for the shutdown
	// duration
	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// Timer expired, proceed with shutdown
			lgr.Logger.Info(
				"detector pod shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)

			// Close the sinks; anything still queued is counted as dropped
			dispatchSvc.Close()
			return

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Info(
					"detector pod mode processor exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
		}
	}
}

// buildSinks constructs every enabled delivery sink with its policy. A sink
// that fails to construct is fatal; running with a silently missing sink
// hides compliance data.
func buildSinks(cfgSvc config.IService) ([]dispatch.SinkConfig, error) {
	retries := cfgSvc.GetSinkRetryAttempts()
	baseDelay := time.Duration(cfgSvc.GetSinkRetryBaseDelayMs()) * time.Millisecond

	var sinks []dispatch.SinkConfig

	if params := cfgSvc.GetBusParameters(); params.Enabled {
		busSvc, err := bus.NewMqtt(params)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dispatch.SinkConfig{
			Sink:       busSvc,
			Timeout:    5 * time.Second,
			MaxRetries: retries,
			BaseDelay:  baseDelay,
		})
	}

	if params := cfgSvc.GetWebhookParameters(); params.Enabled {
		webhookSvc, err := webhook.NewHTTP(params)
		if err != nil {
			return nil, err
		}
		maxRetries := retries
		if params.RetryAttempts > 0 {
			maxRetries = params.RetryAttempts
		}
		sinks = append(sinks, dispatch.SinkConfig{
			Sink:       webhookSvc,
			Timeout:    time.Duration(params.TimeoutSecs) * time.Second,
			MaxRetries: maxRetries,
			BaseDelay:  baseDelay,
		})
	}

	if params := cfgSvc.GetExportParameters(); params.Enabled {
		dataSvc, err := data.NewFilesDB(params.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dispatch.SinkConfig{
			Sink:       dataSvc,
			Timeout:    5 * time.Second,
			MaxRetries: retries,
			BaseDelay:  baseDelay,
		})
	}

	return sinks, nil
}

// detectorFactory returns a constructor invoked once per camera worker.
// Detector backends hold per-instance buffers and are not safe for
// concurrent invocation, so workers never share one.
func detectorFactory(cfgSvc config.IService) func() (inference.IService, error) {
	if os.Getenv("DETECTOR_BACKEND") == "fake" {
		return func() (inference.IService, error) {
			return inference.NewFake(nil, cfgSvc.GetProcessEveryNthFrame()), nil
		}
	}

	return func() (inference.IService, error) {
		return inference.NewYolo(cfgSvc)
	}
}

func newHTTPServer(cfgSvc config.IService, rosterSvc roster.IService, mets *metrics.Collectors) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(mets.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	// Operator reset: re-publish the camera to the roster so a Failed
	// camera gets a fresh agent.
	mux.HandleFunc("POST /cameras/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		cameras, err := cfgSvc.RetrieveCameras()
		if err != nil {
			http.Error(w, "error retrieving cameras", http.StatusInternalServerError)
			return
		}

		for _, camera := range cameras {
			if camera.ID != id {
				continue
			}
			if !camera.Enabled {
				http.Error(w, "camera is disabled in configuration", http.StatusConflict)
				return
			}

			if err := rosterSvc.Publish([]model.Camera{camera}); err != nil {
				lgr.Logger.Error("error publishing camera reset", slog.Any("error", err))
				http.Error(w, "error publishing camera reset", http.StatusInternalServerError)
				return
			}

			lgr.Logger.Info("camera reset requested", slog.String("cameraID", id))
			w.WriteHeader(http.StatusAccepted)
			return
		}

		http.Error(w, "unknown camera", http.StatusNotFound)
	})

	return &http.Server{
		Addr:    cfgSvc.GetHTTPAddr(),
		Handler: mux,
	}
}
