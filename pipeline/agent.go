package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
)

type detOut struct {
	detections []model.Detection
	err        error
}

// Agent is the worker for one camera: it owns the framer, a private
// detector instance, and all per-camera pipeline state. It exits when the
// context is cancelled or the source is marked Failed; either way it
// releases the source and reports its final stats. Failures here never
// touch another camera's agent.
func Agent(canxCtx context.Context,
	svcs ServicesFactory,
	errorStream chan interface{},
	statsStream chan interface{},
	statusStream chan<- model.CameraStatusEvent,
	camera model.Camera) error {

	workerID := uuid.NewString()
	lgr.Logger.Info(
		"agent starting....",
		slog.String("workerID", workerID),
		slog.String("camera", camera.Name),
		slog.String("zone", camera.Zone),
		slog.String("framerType", camera.FramerType),
	)

	detector, err := svcs.DetectorFactory()
	if err != nil {
		return fmt.Errorf("error creating detector for camera %s: %w", camera.ID, err)
	}
	defer detector.Close()

	frames := make(chan FrameData, svcs.CfgSvc.GetFrameChannelDepth())
	status := make(chan model.CameraStatusEvent, 8)
	go framer(canxCtx, camera, errorStream, statsStream, status, frames)

	processor := NewCameraProcessor(svcs, camera)

	governanceTicker := time.NewTicker(time.Duration(svcs.CfgSvc.GetGovernanceIntervalMs()) * time.Millisecond)
	defer governanceTicker.Stop()
	heartbeatTicker := time.NewTicker(time.Duration(svcs.CfgSvc.GetHeartbeatIntervalSeconds()) * time.Second)
	defer heartbeatTicker.Stop()
	statsTicker := time.NewTicker(time.Duration(svcs.CfgSvc.GetAgentPeriodicTimeout()) * time.Second)
	defer statsTicker.Stop()

	inferenceTimeout := time.Duration(svcs.CfgSvc.GetInferenceTimeoutMs()) * time.Millisecond
	tracer := otel.Tracer("pipeline")

	var startTime = time.Now().Unix()
	var processed = 0
	var seen = 0
	var dropped = 0
	var errors = 0
	var totalInference time.Duration

	// pending holds the result channel of a detector call that overran its
	// budget; until it resolves, new frames are shed rather than invoking
	// the detector concurrently.
	var pending chan detOut

	workerStats := func() model.WorkerStats {
		uptime := time.Now().Unix() - startTime
		var avg float64
		if processed > 0 {
			avg = totalInference.Seconds() / float64(processed)
		}
		return model.WorkerStats{
			ID:          workerID,
			Camera:      camera.Name,
			Frames:      processed,
			Dropped:     dropped,
			Errors:      errors,
			Alerts:      processor.AlertCount(),
			Uptime:      uptime,
			AvgProcTime: avg,
			Timestamp:   time.Now().Unix(),
		}
	}
	defer func() {
		statsStream <- workerStats()
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"agent context cancelled",
				slog.String("camera", camera.Name),
			)
			return nil

		case ev := <-status:
			processor.OnStatus(ev)
			forwardStatus(canxCtx, statusStream, ev)

		case fd, ok := <-frames:
			if !ok {
				// Framer gave up: source Failed or shutdown. Drain any
				// last status transition so Failed is never lost.
				for {
					select {
					case ev := <-status:
						processor.OnStatus(ev)
						forwardStatus(canxCtx, statusStream, ev)
						continue
					default:
					}
					break
				}
				lgr.Logger.Info(
					"agent frame stream ended",
					slog.String("camera", camera.Name),
				)
				return nil
			}

			seen++

			if pending != nil {
				select {
				case <-pending:
					pending = nil
				default:
					// Detector still hung; shed this frame.
					dropped++
					svcs.Mets.FramesDropped.WithLabelValues(camera.ID, "busy").Inc()
					fd.Mat.Close()
					continue
				}
			}

			if detector.CanSkipFrame(seen) {
				dropped++
				svcs.Mets.FramesDropped.WithLabelValues(camera.ID, "skip").Inc()
				fd.Mat.Close()
				continue
			}

			resCh := make(chan detOut, 1)
			go func(fd FrameData) {
				defer fd.Mat.Close()
				detections, derr := detector.Detect(canxCtx, fd.Mat)
				resCh <- detOut{detections: detections, err: derr}
			}(fd)

			_, span := tracer.Start(canxCtx, "detect",
				trace.WithAttributes(attribute.String("camera", camera.ID)))
			startInference := time.Now()

			var out detOut
			select {
			case out = <-resCh:
			case <-time.After(inferenceTimeout):
				span.End()
				dropped++
				svcs.Mets.FramesDropped.WithLabelValues(camera.ID, "timeout").Inc()
				errorStream <- model.GenError("agent",
					nil,
					map[string]interface{}{"camera": camera.ID},
					"detector call exceeded %s budget, frame dropped", inferenceTimeout)
				pending = resCh
				continue
			case <-canxCtx.Done():
				span.End()
				return nil
			}
			span.End()

			elapsed := time.Since(startInference)
			totalInference += elapsed
			svcs.Mets.InferenceTime.Observe(elapsed.Seconds())

			if out.err != nil {
				errors++
				errorStream <- model.GenError("agent",
					out.err,
					map[string]interface{}{"camera": camera.ID},
					"detector error on camera %s", camera.ID)
				continue
			}

			processed++
			svcs.Mets.FramesProcessed.WithLabelValues(camera.ID).Inc()

			accepted := processor.OnFrame(model.FrameResult{
				CameraID:    camera.ID,
				Timestamp:   fd.Timestamp,
				Sequence:    fd.Sequence,
				Detections:  out.detections,
				FrameWidth:  fd.Width,
				FrameHeight: fd.Height,
			})
			if !accepted {
				dropped++
				svcs.Mets.FramesDropped.WithLabelValues(camera.ID, "stale").Inc()
			}

		case now := <-governanceTicker.C:
			uptime := time.Now().Unix() - startTime
			if uptime > 0 {
				processor.SetFPS(int(float64(processed) / float64(uptime)))
			}
			processor.OnTick(now)

		case now := <-heartbeatTicker.C:
			processor.Heartbeat(now)

		case <-statsTicker.C:
			statsStream <- workerStats()
		}
	}
}

func forwardStatus(canxCtx context.Context, statusStream chan<- model.CameraStatusEvent, ev model.CameraStatusEvent) {
	select {
	case <-canxCtx.Done():
	case statusStream <- ev:
	}
}
