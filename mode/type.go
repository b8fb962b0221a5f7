package mode

import (
	"context"
	"log/slog"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/pipeline"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory) error

// Stats flow over a stream so a camera worker never blocks on reporting;
// prometheus carries the operational counters, the stream is for the logs.
func procStats(stats interface{}) {
	switch stats := stats.(type) {
	case model.SourceStats:
		lgr.Logger.Debug(
			"source stats",
			slog.String("camera", stats.Camera),
			slog.Int("frames", stats.Frames),
			slog.Int("skipped", stats.Skipped),
			slog.Int("errors", stats.Errors),
			slog.Int("reconnects", stats.Reconnects),
			slog.Int("fps", stats.FPS),
		)
	case model.WorkerStats:
		lgr.Logger.Debug(
			"worker stats",
			slog.String("camera", stats.Camera),
			slog.Int("frames", stats.Frames),
			slog.Int("dropped", stats.Dropped),
			slog.Int("errors", stats.Errors),
			slog.Int("alerts", stats.Alerts),
			slog.Float64("avgProcTime", stats.AvgProcTime),
		)
	case model.DispatchStats:
		lgr.Logger.Debug(
			"dispatch stats",
			slog.String("sink", stats.Sink),
			slog.Int64("delivered", stats.Delivered),
			slog.Int64("retried", stats.Retried),
			slog.Int64("dropped", stats.Dropped),
			slog.Int64("failures", stats.Failures),
		)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procError(err interface{}) {
	switch err := err.(type) {
	case model.CustomError:
		lgr.Logger.Error(
			err.Message,
			slog.String("processor", err.Processor),
			slog.Any("error", err.Inner),
			slog.Any("misc", err.Misc),
		)
	default:
		lgr.Logger.Error(
			"pipeline error",
			slog.Any("error", err),
		)
	}
}
