package pipeline

import (
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/rules"
)

type TrackerState int

const (
	TrackerEmpty TrackerState = iota
	TrackerAccumulating
	TrackerStable
)

// ComplianceTracker debounces noisy per-frame detections into a stable
// presence judgment. It keeps a ring buffer of the last W accepted frames;
// a class counts as present once it appears in at least K of them. One
// tracker exists per camera and is touched only by that camera's worker,
// so it needs no locking.
type ComplianceTracker struct {
	windowSize int
	threshold  int
	maxSilence time.Duration

	rulesSvc rules.IService

	// ring of per-frame presence sets
	slots []map[string]bool
	next  int
	count int

	lastSeq     uint64
	lastFrameAt time.Time
}

func NewComplianceTracker(rulesSvc rules.IService, windowSize, threshold int, maxSilence time.Duration) *ComplianceTracker {
	if windowSize < 1 {
		windowSize = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	if threshold > windowSize {
		threshold = windowSize
	}

	return &ComplianceTracker{
		windowSize: windowSize,
		threshold:  threshold,
		maxSilence: maxSilence,
		rulesSvc:   rulesSvc,
		slots:      make([]map[string]bool, windowSize),
	}
}

// Observe pushes one frame result into the window. It returns false when
// the frame is rejected: a sequence number at or below the last accepted
// one means out-of-order delivery from a reconnecting source.
func (t *ComplianceTracker) Observe(res model.FrameResult) bool {
	if res.Sequence <= t.lastSeq {
		return false
	}

	// A long silent gap means the scene changed; stale frames must not be
	// averaged with fresh ones.
	if !t.lastFrameAt.IsZero() && t.maxSilence > 0 && res.Timestamp.Sub(t.lastFrameAt) > t.maxSilence {
		t.Reset()
	}

	present := map[string]bool{}
	for _, d := range res.Detections {
		if d.Confidence < t.rulesSvc.MinConfidence(d.Class) {
			continue
		}
		present[d.Class] = true
	}

	t.slots[t.next] = present
	t.next = (t.next + 1) % t.windowSize
	if t.count < t.windowSize {
		t.count++
	}

	t.lastSeq = res.Sequence
	t.lastFrameAt = res.Timestamp
	return true
}

// Reset empties the window. Sequence tracking survives a reset so frames
// from before a reconnect can still be rejected.
func (t *ComplianceTracker) Reset() {
	for i := range t.slots {
		t.slots[i] = nil
	}
	t.next = 0
	t.count = 0
}

func (t *ComplianceTracker) State() TrackerState {
	switch {
	case t.count == 0:
		return TrackerEmpty
	case t.count < t.windowSize:
		return TrackerAccumulating
	default:
		return TrackerStable
	}
}

// Present returns the debounced presence set. ok is false until the window
// is full; an unfilled window is "unknown", never surfaced as compliant or
// as a violation.
func (t *ComplianceTracker) Present() (map[string]bool, bool) {
	if t.State() != TrackerStable {
		return nil, false
	}

	counts := map[string]int{}
	for _, slot := range t.slots {
		for class := range slot {
			counts[class]++
		}
	}

	present := map[string]bool{}
	for _, class := range t.rulesSvc.TrackedClasses() {
		present[class] = counts[class] >= t.threshold
	}
	return present, true
}
