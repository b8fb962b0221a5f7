package pipeline

import (
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
)

// CameraProcessor converts one camera's accepted frames into dispatched
// events: detection events per frame, a debounced verdict per governance
// tick, and deduplicated violation alerts. All state is exclusively owned
// by the camera's worker.
type CameraProcessor struct {
	svcs   ServicesFactory
	camera model.Camera

	tracker *ComplianceTracker
	dedup   *AlertDeduplicator

	seq    uint64
	fps    int
	alerts int
}

func NewCameraProcessor(svcs ServicesFactory, camera model.Camera) *CameraProcessor {
	return &CameraProcessor{
		svcs:   svcs,
		camera: camera,
		tracker: NewComplianceTracker(
			svcs.RulesSvc,
			svcs.CfgSvc.GetWindowFrames(),
			svcs.CfgSvc.GetPresenceThreshold(),
			time.Duration(svcs.CfgSvc.GetMaxSilenceSeconds())*time.Second,
		),
		dedup: NewAlertDeduplicator(time.Duration(svcs.CfgSvc.GetAlertCooldownSeconds()) * time.Second),
	}
}

// OnFrame feeds one frame result into the window and publishes a detection
// event when the frame carried detections. Returns false when the frame
// was rejected as stale or out of order.
func (p *CameraProcessor) OnFrame(res model.FrameResult) bool {
	if !p.tracker.Observe(res) {
		return false
	}

	for _, d := range res.Detections {
		p.svcs.Mets.DetectionsTotal.WithLabelValues(p.camera.ID, d.Class).Inc()
	}

	if len(res.Detections) > 0 {
		p.svcs.DispatchSvc.Publish(model.DispatchEvent{
			Type:       model.EventDetection,
			Timestamp:  res.Timestamp,
			CameraID:   p.camera.ID,
			CameraName: p.camera.Name,
			Zone:       p.camera.Zone,
			Sequence:   p.nextSeq(),
			Detections: res.Detections,
			FPS:        p.fps,
		})
	}
	return true
}

// OnTick recomputes the verdict at the governance cadence. Nothing is
// published while the window is still filling.
func (p *CameraProcessor) OnTick(now time.Time) {
	present, ok := p.tracker.Present()
	if !ok {
		return
	}

	verdict := p.svcs.RulesSvc.Verdict(p.camera.ID, p.camera.Zone, present, now)
	violations := p.svcs.RulesSvc.Evaluate(verdict, p.camera.Zone)

	for _, v := range violations {
		v := v
		if !p.dedup.ShouldEmit(v.Signature(), now) {
			p.svcs.Mets.AlertsSuppressed.WithLabelValues(p.camera.ID).Inc()
			continue
		}

		p.alerts++
		p.svcs.Mets.AlertsEmitted.WithLabelValues(p.camera.ID, string(v.Severity)).Inc()
		p.svcs.DispatchSvc.Publish(model.DispatchEvent{
			Type:       model.EventAlert,
			Timestamp:  now,
			CameraID:   p.camera.ID,
			CameraName: p.camera.Name,
			Zone:       p.camera.Zone,
			Sequence:   p.nextSeq(),
			Violation:  &v,
		})
	}
}

// OnStatus publishes the transition and resets the window when the source
// comes back after a reconnect, so frames across the gap are never
// averaged together.
func (p *CameraProcessor) OnStatus(ev model.CameraStatusEvent) {
	switch ev.Status {
	case model.CameraConnected:
		p.svcs.Mets.CameraUp.WithLabelValues(p.camera.ID).Set(1)
		if ev.Attempt > 0 {
			p.tracker.Reset()
		}
	default:
		p.svcs.Mets.CameraUp.WithLabelValues(p.camera.ID).Set(0)
	}

	p.svcs.DispatchSvc.Publish(model.DispatchEvent{
		Type:       model.EventStatus,
		Timestamp:  ev.Timestamp,
		CameraID:   p.camera.ID,
		CameraName: p.camera.Name,
		Zone:       p.camera.Zone,
		Sequence:   p.nextSeq(),
		Status:     &ev,
	})
}

// Heartbeat lets consumers distinguish a silent camera from a dead system.
func (p *CameraProcessor) Heartbeat(now time.Time) {
	p.svcs.DispatchSvc.Publish(model.DispatchEvent{
		Type:       model.EventHeartbeat,
		Timestamp:  now,
		CameraID:   p.camera.ID,
		CameraName: p.camera.Name,
		Zone:       p.camera.Zone,
		Sequence:   p.nextSeq(),
	})
}

func (p *CameraProcessor) SetFPS(fps int) {
	p.fps = fps
}

func (p *CameraProcessor) AlertCount() int {
	return p.alerts
}

func (p *CameraProcessor) nextSeq() uint64 {
	p.seq++
	return p.seq
}
