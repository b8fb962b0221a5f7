package rules

import (
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
)

// IService evaluates debounced presence sets against the deployment's PPE
// rules. Implementations hold no mutable state and are safe to call
// concurrently across camera workers.
type IService interface {
	// TrackedClasses returns every class the pipeline should count.
	TrackedClasses() []string

	// MinConfidence returns the confidence floor for a class; detections
	// below it are discarded before presence counting.
	MinConfidence(class string) float64

	// Verdict derives the compliance verdict for a camera's zone from the
	// set of classes present in the compliance window.
	Verdict(cameraID, zone string, present map[string]bool, ts time.Time) model.ComplianceVerdict

	// Evaluate turns a verdict into zero or more violations.
	Evaluate(verdict model.ComplianceVerdict, zone string) []model.Violation

	// HasZone reports whether a zone profile exists for the given zone.
	HasZone(zone string) bool
}
