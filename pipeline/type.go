package pipeline

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
	"github.com/JSNN15/PPE-Detection-System/service/dispatch"
	"github.com/JSNN15/PPE-Detection-System/service/inference"
	"github.com/JSNN15/PPE-Detection-System/service/metrics"
	"github.com/JSNN15/PPE-Detection-System/service/roster"
	"github.com/JSNN15/PPE-Detection-System/service/rules"
)

// FrameData is one captured frame in flight between a framer and its
// camera worker. The receiver owns the Mat and must close it.
type FrameData struct {
	Mat       gocv.Mat
	Timestamp time.Time
	Sequence  uint64
	Width     int
	Height    int
}

type ServicesFactory struct {
	CfgSvc      config.IService
	RulesSvc    rules.IService
	DispatchSvc dispatch.IService
	RosterSvc   roster.IService
	Mets        *metrics.Collectors

	// DetectorFactory builds one detector instance per camera worker;
	// model backends are not safe for concurrent invocation.
	DetectorFactory func() (inference.IService, error)
}
