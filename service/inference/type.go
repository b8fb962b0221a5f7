package inference

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/JSNN15/PPE-Detection-System/model"
)

// IService is the opaque detector boundary: one frame in, raw detections
// out. The pipeline never depends on a concrete model backend.
type IService interface {
	Detect(ctx context.Context, img gocv.Mat) ([]model.Detection, error)
	CanSkipFrame(frames int) bool
	Close() error
}
