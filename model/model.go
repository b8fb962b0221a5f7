package model

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	return e.Message
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

type Camera struct {
	ID                   string `json:"id" yaml:"id"`
	Name                 string `json:"name" yaml:"name"`
	Zone                 string `json:"zone" yaml:"zone"`
	Protocol             string `json:"protocol" yaml:"protocol"` // rtsp or http
	Host                 string `json:"host" yaml:"host"`
	Port                 int    `json:"port" yaml:"port"`
	Path                 string `json:"path" yaml:"path"`
	Username             string `json:"username" yaml:"username"`
	PasswordEnv          string `json:"passwordEnv" yaml:"password_env"`
	FramerType           string `json:"framerType" yaml:"framer_type"` // rtsp | http | synthetic
	Enabled              bool   `json:"enabled" yaml:"enabled"`
	ReconnectAttempts    int    `json:"reconnectAttempts" yaml:"reconnect_attempts"`
	ReconnectBaseDelayMs int    `json:"reconnectBaseDelayMs" yaml:"reconnect_base_delay_ms"`
}

type CameraStatus string

const (
	CameraConnected    CameraStatus = "connected"
	CameraReconnecting CameraStatus = "reconnecting"
	CameraFailed       CameraStatus = "failed"
	CameraDisabled     CameraStatus = "disabled"
)

type CameraStatusEvent struct {
	CameraID  string       `json:"camera_id"`
	Status    CameraStatus `json:"status"`
	Attempt   int          `json:"attempt,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
}

type FrameResult struct {
	CameraID    string      `json:"camera_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Sequence    uint64      `json:"sequence"`
	Detections  []Detection `json:"detections"`
	FrameWidth  int         `json:"frame_width"`
	FrameHeight int         `json:"frame_height"`
}

type ComplianceVerdict struct {
	CameraID           string    `json:"camera_id"`
	Timestamp          time.Time `json:"timestamp"`
	PresentPPE         []string  `json:"present_ppe"`
	MissingMandatory   []string  `json:"missing_mandatory"`
	MissingConditional []string  `json:"missing_conditional"`
	IsCompliant        bool      `json:"is_compliant"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Violation struct {
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
	MissingPPE []string  `json:"missing_ppe"`
	Zone       string    `json:"zone"`
}

// Signature is the dedup key: the sorted set of missing classes.
func (v Violation) Signature() string {
	missing := make([]string, len(v.MissingPPE))
	copy(missing, v.MissingPPE)
	sort.Strings(missing)
	return strings.Join(missing, ",")
}

type EventType string

const (
	EventDetection EventType = "detection"
	EventAlert     EventType = "alert"
	EventStatus    EventType = "status"
	EventHeartbeat EventType = "heartbeat"
)

// DispatchEvent is the tagged union handed to sinks. The payload fields
// matching Type are set, the rest are zero. Sequence increases monotonically
// per camera so sinks can detect replays.
type DispatchEvent struct {
	Type       EventType          `json:"event_type"`
	Timestamp  time.Time          `json:"timestamp"`
	CameraID   string             `json:"camera_id"`
	CameraName string             `json:"camera_name,omitempty"`
	Zone       string             `json:"zone,omitempty"`
	Sequence   uint64             `json:"sequence"`
	Detections []Detection        `json:"detections,omitempty"`
	Violation  *Violation         `json:"violation,omitempty"`
	Status     *CameraStatusEvent `json:"status,omitempty"`
	FPS        int                `json:"fps,omitempty"`
}

type SourceStats struct {
	Name       string `json:"name"`
	Camera     string `json:"camera"`
	FPS        int    `json:"fps"`
	Frames     int    `json:"frames"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
	Reconnects int    `json:"reconnects"`
	Uptime     int64  `json:"uptime"`
	Timestamp  int64  `json:"timestamp"`
}

type WorkerStats struct {
	ID          string  `json:"id"`
	Camera      string  `json:"camera"`
	Frames      int     `json:"frames"`
	Dropped     int     `json:"dropped"`
	Errors      int     `json:"errors"`
	Alerts      int     `json:"alerts"`
	Uptime      int64   `json:"uptime"`
	AvgProcTime float64 `json:"avgProcTime"`
	Timestamp   int64   `json:"timestamp"`
}

type DispatchStats struct {
	Sink      string `json:"sink"`
	Delivered int64  `json:"delivered"`
	Retried   int64  `json:"retried"`
	Dropped   int64  `json:"dropped"`
	Failures  int64  `json:"failures"`
	Timestamp int64  `json:"timestamp"`
}
