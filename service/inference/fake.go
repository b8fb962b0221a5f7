package inference

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/JSNN15/PPE-Detection-System/model"
)

type fakeService struct {
	script [][]model.Detection
	calls  int
	everyN int
}

// NewFake returns a scripted detector. Each Detect call pops the next
// detection set; once the script runs out, the last set repeats.
func NewFake(script [][]model.Detection, everyNth int) IService {
	return &fakeService{script: script, everyN: everyNth}
}

func (svc *fakeService) Detect(_ context.Context, _ gocv.Mat) ([]model.Detection, error) {
	if len(svc.script) == 0 {
		return nil, nil
	}

	idx := svc.calls
	if idx >= len(svc.script) {
		idx = len(svc.script) - 1
	}
	svc.calls++
	return svc.script[idx], nil
}

func (svc *fakeService) CanSkipFrame(frames int) bool {
	if svc.everyN <= 1 {
		return false
	}
	return frames%svc.everyN != 0
}

func (svc *fakeService) Close() error {
	return nil
}
