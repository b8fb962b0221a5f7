package pipeline

import (
	"testing"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
	"github.com/JSNN15/PPE-Detection-System/service/rules"
)

func newTestRules(t *testing.T) rules.IService {
	t.Helper()

	svc, err := rules.NewEngine(config.PPEConfig{
		Mandatory: []config.PPEClass{
			{Name: "safety_glasses", MinConfidence: 0.55},
			{Name: "safety_shoes"},
			{Name: "protective_suit"},
		},
		Conditional: []config.PPEClass{
			{Name: "face_mask", Enabled: true, MinConfidence: 0.6},
			{Name: "gloves", Enabled: false},
		},
		Zones: []config.ZoneConfig{
			{
				ZoneID:           "welding",
				MandatoryPPE:     []string{"safety_glasses", "safety_shoes", "protective_suit"},
				ConditionalPPE:   []string{"face_mask"},
				SeverityOverride: "high",
			},
			{
				ZoneID:       "warehouse",
				MandatoryPPE: []string{"safety_shoes"},
			},
		},
	}, 0.5)
	if err != nil {
		t.Fatalf("building rule engine: %v", err)
	}
	return svc
}

func frame(seq uint64, ts time.Time, classes ...string) model.FrameResult {
	res := model.FrameResult{
		CameraID:  "cam-1",
		Timestamp: ts,
		Sequence:  seq,
	}
	for _, c := range classes {
		res.Detections = append(res.Detections, model.Detection{Class: c, Confidence: 0.9})
	}
	return res
}

func TestTrackerPresenceThresholdBoundary(t *testing.T) {
	rulesSvc := newTestRules(t)
	base := time.Now()

	// W=5, K=3: a class seen in 2 of 5 frames is absent, in 3 of 5 present.
	tr := NewComplianceTracker(rulesSvc, 5, 3, 10*time.Second)
	for i := uint64(1); i <= 5; i++ {
		classes := []string{"safety_shoes"}
		if i <= 2 {
			classes = append(classes, "safety_glasses")
		}
		if !tr.Observe(frame(i, base.Add(time.Duration(i)*time.Second), classes...)) {
			t.Fatalf("frame %d rejected", i)
		}
	}

	present, ok := tr.Present()
	if !ok {
		t.Fatal("window full but tracker not stable")
	}
	if present["safety_glasses"] {
		t.Error("safety_glasses seen in 2/5 frames should not count as present")
	}
	if !present["safety_shoes"] {
		t.Error("safety_shoes seen in 5/5 frames should count as present")
	}

	// One more sighting tips safety_glasses over the threshold.
	if !tr.Observe(frame(6, base.Add(6*time.Second), "safety_shoes", "safety_glasses")) {
		t.Fatal("frame 6 rejected")
	}
	present, _ = tr.Present()
	if !present["safety_glasses"] {
		t.Error("safety_glasses seen in 3/5 frames should count as present")
	}
}

func TestTrackerUnfilledWindowIsUnknown(t *testing.T) {
	rulesSvc := newTestRules(t)
	tr := NewComplianceTracker(rulesSvc, 5, 3, 10*time.Second)
	base := time.Now()

	for i := uint64(1); i <= 4; i++ {
		tr.Observe(frame(i, base.Add(time.Duration(i)*time.Second), "safety_shoes"))
	}

	if st := tr.State(); st != TrackerAccumulating {
		t.Fatalf("state = %v, want accumulating", st)
	}
	if _, ok := tr.Present(); ok {
		t.Error("unfilled window must not produce a presence set")
	}
}

func TestTrackerRejectsStaleSequences(t *testing.T) {
	rulesSvc := newTestRules(t)
	tr := NewComplianceTracker(rulesSvc, 5, 3, 10*time.Second)
	base := time.Now()

	if !tr.Observe(frame(5, base)) {
		t.Fatal("initial frame rejected")
	}
	if tr.Observe(frame(5, base.Add(time.Second))) {
		t.Error("duplicate sequence accepted")
	}
	if tr.Observe(frame(3, base.Add(2*time.Second))) {
		t.Error("out-of-order sequence accepted")
	}
	if !tr.Observe(frame(6, base.Add(3*time.Second))) {
		t.Error("next sequence rejected")
	}
}

func TestTrackerStaleSequenceRejectedAfterReset(t *testing.T) {
	rulesSvc := newTestRules(t)
	tr := NewComplianceTracker(rulesSvc, 5, 3, 10*time.Second)
	base := time.Now()

	tr.Observe(frame(10, base))
	tr.Reset()

	// Sequence tracking must survive the reset or a reconnecting source
	// could replay old frames into a fresh window.
	if tr.Observe(frame(7, base.Add(time.Second))) {
		t.Error("pre-reset sequence accepted after reset")
	}
	if !tr.Observe(frame(11, base.Add(2*time.Second))) {
		t.Error("post-reset fresh sequence rejected")
	}
}

func TestTrackerSilenceGapResetsWindow(t *testing.T) {
	rulesSvc := newTestRules(t)
	tr := NewComplianceTracker(rulesSvc, 5, 3, 10*time.Second)
	base := time.Now()

	for i := uint64(1); i <= 5; i++ {
		tr.Observe(frame(i, base.Add(time.Duration(i)*time.Second), "safety_shoes"))
	}
	if _, ok := tr.Present(); !ok {
		t.Fatal("window should be stable before the gap")
	}

	// 12s of silence exceeds the 10s budget; the window restarts with the
	// frame that broke the silence.
	tr.Observe(frame(6, base.Add(17*time.Second), "safety_shoes"))

	if st := tr.State(); st != TrackerAccumulating {
		t.Fatalf("state after gap = %v, want accumulating", st)
	}
	if _, ok := tr.Present(); ok {
		t.Error("window must not be stable right after a silence gap")
	}
}

func TestTrackerConfidenceFloorPerClass(t *testing.T) {
	rulesSvc := newTestRules(t)
	tr := NewComplianceTracker(rulesSvc, 3, 2, 10*time.Second)
	base := time.Now()

	for i := uint64(1); i <= 3; i++ {
		tr.Observe(model.FrameResult{
			CameraID:  "cam-1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Sequence:  i,
			Detections: []model.Detection{
				{Class: "safety_glasses", Confidence: 0.50}, // floor is 0.55
				{Class: "safety_shoes", Confidence: 0.51},   // default floor 0.5
			},
		})
	}

	present, ok := tr.Present()
	if !ok {
		t.Fatal("window not stable")
	}
	if present["safety_glasses"] {
		t.Error("detections below the class confidence floor must not count")
	}
	if !present["safety_shoes"] {
		t.Error("detections above the default floor must count")
	}
}
