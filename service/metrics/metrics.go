package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the process metric set. Built once at startup with its
// own registry so tests can instantiate independent pipelines.
type Collectors struct {
	Registry *prometheus.Registry

	FramesProcessed  *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	DetectionsTotal  *prometheus.CounterVec
	AlertsEmitted    *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec
	SinkDelivered    *prometheus.CounterVec
	SinkFailures     *prometheus.CounterVec
	SinkDropped      *prometheus.CounterVec
	InferenceTime    prometheus.Histogram
	CameraUp         *prometheus.GaugeVec
}

func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		FramesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_frames_processed_total",
			Help: "Frames run through the detector per camera.",
		}, []string{"camera"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_frames_dropped_total",
			Help: "Frames dropped before detection, by reason (busy, skip, stale, timeout).",
		}, []string{"camera", "reason"}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_detections_total",
			Help: "Raw PPE detections per camera and class.",
		}, []string{"camera", "class"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_alerts_emitted_total",
			Help: "Violation alerts emitted per camera and severity.",
		}, []string{"camera", "severity"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_alerts_suppressed_total",
			Help: "Violation alerts suppressed by the cooldown window.",
		}, []string{"camera"}),
		SinkDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_sink_delivered_total",
			Help: "Events delivered per sink.",
		}, []string{"sink"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_sink_failures_total",
			Help: "Delivery failures per sink, including retried attempts.",
		}, []string{"sink"}),
		SinkDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppe_sink_dropped_total",
			Help: "Events dropped per sink after retries or queue overflow.",
		}, []string{"sink"}),
		InferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ppe_inference_seconds",
			Help:    "Detector invocation latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		CameraUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ppe_camera_up",
			Help: "1 while the camera source is connected, 0 otherwise.",
		}, []string{"camera"}),
	}

	c.Registry.MustRegister(
		c.FramesProcessed, c.FramesDropped, c.DetectionsTotal,
		c.AlertsEmitted, c.AlertsSuppressed,
		c.SinkDelivered, c.SinkFailures, c.SinkDropped,
		c.InferenceTime, c.CameraUp,
	)
	return c
}
