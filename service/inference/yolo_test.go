package inference

import (
	"testing"

	"github.com/JSNN15/PPE-Detection-System/model"
)

func testYolo() *yoloService {
	return &yoloService{
		labels:  []string{"safety_glasses", "safety_shoes"},
		minConf: 0.5,
	}
}

func TestParseRowDecodesDetection(t *testing.T) {
	svc := testYolo()

	// Centered box at input scale 640, class 1 winning.
	data := []float32{320, 320, 64, 64, 0.9, 0.1, 0.8}
	d, ok := svc.parseRow(data, 640, 480)
	if !ok {
		t.Fatal("valid row rejected")
	}
	if d.Class != "safety_shoes" {
		t.Errorf("class = %q, want safety_shoes", d.Class)
	}
	if got := float64(float32(0.9) * float32(0.8)); d.Confidence != got {
		t.Errorf("confidence = %v, want %v", d.Confidence, got)
	}
	want := model.BoundingBox{X1: 288, Y1: 216, X2: 352, Y2: 264}
	if d.Box != want {
		t.Errorf("box = %+v, want %+v", d.Box, want)
	}
}

func TestParseRowRejectsTruncatedRow(t *testing.T) {
	svc := testYolo()

	for _, data := range [][]float32{nil, {320}, {320, 320, 64, 64}} {
		if _, ok := svc.parseRow(data, 640, 480); ok {
			t.Errorf("truncated row %v accepted", data)
		}
	}
}

func TestParseRowRejectsLowConfidence(t *testing.T) {
	svc := testYolo()

	// Object confidence below the floor.
	if _, ok := svc.parseRow([]float32{320, 320, 64, 64, 0.3, 0.9, 0.9}, 640, 480); ok {
		t.Error("low object confidence accepted")
	}
	// Best class score below the floor.
	if _, ok := svc.parseRow([]float32{320, 320, 64, 64, 0.9, 0.2, 0.1}, 640, 480); ok {
		t.Error("low class score accepted")
	}
	// No class scores at all.
	if _, ok := svc.parseRow([]float32{320, 320, 64, 64, 0.9}, 640, 480); ok {
		t.Error("row without class scores accepted")
	}
}

func TestParseRowClampsBoxToFrame(t *testing.T) {
	svc := testYolo()

	// Box hanging off the top-left corner.
	d, ok := svc.parseRow([]float32{10, 10, 200, 200, 0.9, 0.9, 0.1}, 640, 480)
	if !ok {
		t.Fatal("valid row rejected")
	}
	if d.Box.X1 != 0 || d.Box.Y1 != 0 {
		t.Errorf("box not clamped: %+v", d.Box)
	}
}
