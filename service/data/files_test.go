package data

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return rows
}

func TestDetectionRecordColumns(t *testing.T) {
	folder := t.TempDir()
	svc, err := NewFilesDB(folder)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	err = svc.Deliver(context.Background(), model.DispatchEvent{
		Type:       model.EventDetection,
		Timestamp:  ts,
		CameraID:   "cam-1",
		CameraName: "Welding Bay",
		Zone:       "welding",
		Detections: []model.Detection{
			{Class: "safety_shoes", Confidence: 0.912, Box: model.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 220}},
			{Class: "protective_suit", Confidence: 0.7, Box: model.BoundingBox{X1: 5, Y1: 5, X2: 90, Y2: 200}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, filepath.Join(folder, "detections_2026-03-14.csv"))
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if !reflect.DeepEqual(rows[0], detectionColumns) {
		t.Errorf("header = %v", rows[0])
	}

	want := []string{
		"2026-03-14T09:26:53Z", "2026-03-14", "09:26:53",
		"cam-1", "Welding Bay", "welding",
		"safety_shoes", "0.912", "10", "20", "110", "220",
	}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("row = %v, want %v", rows[1], want)
	}
}

func TestAlertRecordColumns(t *testing.T) {
	folder := t.TempDir()
	svc, err := NewFilesDB(folder)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	err = svc.Deliver(context.Background(), model.DispatchEvent{
		Type:       model.EventAlert,
		Timestamp:  ts,
		CameraID:   "cam-1",
		CameraName: "Welding Bay",
		Violation: &model.Violation{
			CameraID:   "cam-1",
			Severity:   model.SeverityHigh,
			MissingPPE: []string{"safety_glasses", "safety_shoes"},
			Zone:       "welding",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, filepath.Join(folder, "alerts_2026-03-14.csv"))
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if !reflect.DeepEqual(rows[0], alertColumns) {
		t.Errorf("header = %v", rows[0])
	}

	want := []string{
		"2026-03-14T09:30:00Z", "2026-03-14", "09:30:00",
		"cam-1", "Welding Bay", "welding",
		"missing_ppe", "high",
		"missing PPE detected on Welding Bay: safety_glasses, safety_shoes",
	}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("row = %v, want %v", rows[1], want)
	}
}

func TestHeaderWrittenOncePerFile(t *testing.T) {
	folder := t.TempDir()
	svc, err := NewFilesDB(folder)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err = svc.Deliver(context.Background(), model.DispatchEvent{
			Type:       model.EventDetection,
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
			CameraID:   "cam-1",
			Detections: []model.Detection{{Class: "safety_shoes", Confidence: 0.9}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rows := readCSV(t, filepath.Join(folder, "detections_2026-03-14.csv"))
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	for _, row := range rows[1:] {
		if row[0] == "timestamp" {
			t.Fatal("header repeated mid-file")
		}
	}
}

func TestFilesRotateByDay(t *testing.T) {
	folder := t.TempDir()
	svc, err := NewFilesDB(folder)
	if err != nil {
		t.Fatal(err)
	}

	for _, day := range []int{14, 15} {
		err = svc.Deliver(context.Background(), model.DispatchEvent{
			Type:       model.EventDetection,
			Timestamp:  time.Date(2026, 3, day, 23, 59, 0, 0, time.UTC),
			CameraID:   "cam-1",
			Detections: []model.Detection{{Class: "safety_shoes", Confidence: 0.9}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for _, name := range []string{"detections_2026-03-14.csv", "detections_2026-03-15.csv"} {
		if _, err := os.Stat(filepath.Join(folder, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestStatusAndHeartbeatNotAudited(t *testing.T) {
	folder := t.TempDir()
	svc, err := NewFilesDB(folder)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for _, et := range []model.EventType{model.EventStatus, model.EventHeartbeat} {
		if err := svc.Deliver(context.Background(), model.DispatchEvent{Type: et, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("audit folder has %d files, want none", len(entries))
	}
}
