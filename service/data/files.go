package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
)

var detectionColumns = []string{
	"timestamp", "date", "time", "camera_id", "camera_name", "zone",
	"object_class", "confidence", "bbox_x1", "bbox_y1", "bbox_x2", "bbox_y2",
}

var alertColumns = []string{
	"timestamp", "date", "time", "camera_id", "camera_name", "zone",
	"alert_type", "severity", "message",
}

type filesDBService struct {
	folder string
	mu     sync.Mutex
}

// NewFilesDB creates the export folder and returns the CSV-backed audit
// log. Files rotate by calendar day through their date-stamped names.
func NewFilesDB(folder string) (IService, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, err
	}
	return &filesDBService{folder: folder}, nil
}

func (svc *filesDBService) Name() string {
	return "csv"
}

func (svc *filesDBService) Deliver(_ context.Context, event model.DispatchEvent) error {
	switch event.Type {
	case model.EventDetection:
		return svc.NewDetectionRecords(event)
	case model.EventAlert:
		return svc.NewAlertRecord(event)
	default:
		// Status and heartbeat events are not audited.
		return nil
	}
}

func (svc *filesDBService) NewDetectionRecords(event model.DispatchEvent) error {
	if len(event.Detections) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(event.Detections))
	for _, d := range event.Detections {
		rows = append(rows, []string{
			event.Timestamp.Format(time.RFC3339),
			event.Timestamp.Format("2006-01-02"),
			event.Timestamp.Format("15:04:05"),
			event.CameraID,
			event.CameraName,
			event.Zone,
			d.Class,
			strconv.FormatFloat(d.Confidence, 'f', 3, 64),
			strconv.Itoa(d.Box.X1),
			strconv.Itoa(d.Box.Y1),
			strconv.Itoa(d.Box.X2),
			strconv.Itoa(d.Box.Y2),
		})
	}

	filename := fmt.Sprintf("detections_%s.csv", event.Timestamp.Format("2006-01-02"))
	return svc.appendRows(filename, detectionColumns, rows)
}

func (svc *filesDBService) NewAlertRecord(event model.DispatchEvent) error {
	v := event.Violation
	if v == nil {
		return nil
	}

	row := []string{
		event.Timestamp.Format(time.RFC3339),
		event.Timestamp.Format("2006-01-02"),
		event.Timestamp.Format("15:04:05"),
		event.CameraID,
		event.CameraName,
		v.Zone,
		"missing_ppe",
		string(v.Severity),
		fmt.Sprintf("missing PPE detected on %s: %s", event.CameraName, strings.Join(v.MissingPPE, ", ")),
	}

	filename := fmt.Sprintf("alerts_%s.csv", event.Timestamp.Format("2006-01-02"))
	return svc.appendRows(filename, alertColumns, [][]string{row})
}

func (svc *filesDBService) appendRows(filename string, header []string, rows [][]string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	path := filepath.Join(svc.folder, filename)

	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (svc *filesDBService) Close() error {
	return nil
}
