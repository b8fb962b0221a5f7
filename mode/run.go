package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/pipeline"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
)

type agentHandle struct {
	Camera model.Camera
	CanxFn context.CancelFunc
}

// Run is the detection mode: it subscribes to the camera roster, owns one
// agent per camera, and drains the stats/error/status streams. A camera
// whose source ends up Failed is excluded from scheduling until the roster
// hands it out again after an operator reset; all other cameras keep
// running untouched.
func Run(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	rosterStream, err := svcs.RosterSvc.Subscribe()
	if err != nil {
		return err
	}

	errorStream := make(chan interface{}, 64)
	statsStream := make(chan interface{}, 64)
	statusStream := make(chan model.CameraStatusEvent, 64)
	agentDone := make(chan string, 16)

	runningAgents := map[string]agentHandle{}

	statsTicker := time.NewTicker(time.Duration(svcs.CfgSvc.GetAgentPeriodicTimeout()) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"run mode context cancelled",
			)
			goto resume

		case cameras := <-rosterStream:
			for _, camera := range cameras {
				if _, ok := runningAgents[camera.ID]; ok {
					lgr.Logger.Debug(
						"camera already has a running agent",
						slog.String("cameraID", camera.ID),
					)
					continue
				}

				// Child context so one agent can be torn down without
				// touching the others.
				agentCanxCtx, agentCanxFn := context.WithCancel(canxCtx)
				runningAgents[camera.ID] = agentHandle{
					Camera: camera,
					CanxFn: agentCanxFn,
				}

				go func(camera model.Camera) {
					agentErr := pipeline.Agent(agentCanxCtx, svcs, errorStream, statsStream, statusStream, camera)
					if agentErr != nil {
						procError(model.GenError("run_mode",
							agentErr,
							map[string]interface{}{},
							"error running agent for camera: %s",
							camera.Name))
					}
					agentDone <- camera.ID
				}(camera)
			}

		case id := <-agentDone:
			if handle, ok := runningAgents[id]; ok {
				handle.CanxFn()
				delete(runningAgents, id)
			}
			lgr.Logger.Info(
				"agent exited",
				slog.String("cameraID", id),
				slog.Int("runningAgents", len(runningAgents)),
			)

		case ev := <-statusStream:
			// A Failed source ends its agent; the camera stays out of the
			// schedule until the roster hands it out again after a reset.
			if ev.Status == model.CameraFailed {
				lgr.Logger.Warn(
					"camera disabled until operator reset",
					slog.String("cameraID", ev.CameraID),
					slog.Int("attempts", ev.Attempt),
				)
			}

		case <-statsTicker.C:
			for _, s := range svcs.DispatchSvc.Stats() {
				procStats(s)
			}

		case s := <-statsStream:
			procStats(s)

		case e := <-errorStream:
			procError(e)
		}
	}

	// Agents may still need to report stats and errors as they exit, so
	// keep draining for the configured shutdown window.
resume:
	lgr.Logger.Info(
		"run mode is waiting for all agents to exit",
	)

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"run mode shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return nil

		case <-agentDone:

		case s := <-statsStream:
			procStats(s)

		case e := <-errorStream:
			procError(e)

		case <-statusStream:
		}
	}
}
