package inference

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
)

const yoloInputSize = 640

type yoloService struct {
	net      gocv.Net
	labels   []string
	minConf  float32
	everyNth int
}

// NewYolo loads an ONNX YOLO network through the gocv DNN module. The model
// is treated as opaque: any network producing the standard YOLO output
// layout with the configured class names will do.
func NewYolo(cfgSvc config.IService) (IService, error) {
	labels, err := loadLabels(cfgSvc.GetClassNamesPath())
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(cfgSvc.GetModelPath(), "")
	if net.Empty() {
		return nil, xerrors.New(fmt.Sprintf("reading model %s", cfgSvc.GetModelPath()))
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return nil, err
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		return nil, err
	}

	return &yoloService{
		net:      net,
		labels:   labels,
		minConf:  float32(cfgSvc.GetDefaultConfidenceThreshold()),
		everyNth: cfgSvc.GetProcessEveryNthFrame(),
	}, nil
}

func (svc *yoloService) Detect(ctx context.Context, img gocv.Mat) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(yoloInputSize, yoloInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	svc.net.SetInput(blob, "")
	output := svc.net.Forward("")
	defer output.Close()

	// Standard YOLO ONNX output is [1, N, 5+classes]; flatten it to a 2-dim
	// Mat before row iteration.
	dims := output.Size()
	if len(dims) != 3 {
		return nil, xerrors.New(fmt.Sprintf("unexpected DNN output dims %v", dims))
	}
	reshaped := output.Reshape(1, dims[1])
	defer reshaped.Close()
	if reshaped.Empty() || reshaped.Rows() == 0 || reshaped.Cols() < 5 {
		return nil, xerrors.New(fmt.Sprintf("DNN output reshape failed, dims %v", dims))
	}

	cols := img.Cols()
	rows := img.Rows()

	var detections []model.Detection
	for i := 0; i < reshaped.Rows(); i++ {
		row := reshaped.RowRange(i, i+1)
		data, err := row.DataPtrFloat32()
		if err == nil {
			// data is backed by row's memory; parse before closing it.
			if d, ok := svc.parseRow(data, cols, rows); ok {
				detections = append(detections, d)
			}
		}
		row.Close()
	}

	return detections, nil
}

// parseRow decodes one prediction row [cx, cy, w, h, obj, class scores...]
// into a detection, scaling the box back to the source frame. Rows that are
// truncated or below the confidence floor are discarded.
func (svc *yoloService) parseRow(data []float32, cols, rows int) (model.Detection, bool) {
	if len(data) < 5 {
		return model.Detection{}, false
	}

	objConf := data[4]
	if objConf < svc.minConf {
		return model.Detection{}, false
	}

	classScores := data[5:]
	classID := 0
	maxScore := float32(0.0)
	for j, score := range classScores {
		if score > maxScore {
			maxScore = score
			classID = j
		}
	}
	if maxScore < svc.minConf || classID >= len(svc.labels) {
		return model.Detection{}, false
	}

	cx := data[0] * float32(cols) / yoloInputSize
	cy := data[1] * float32(rows) / yoloInputSize
	w := data[2] * float32(cols) / yoloInputSize
	h := data[3] * float32(rows) / yoloInputSize

	return model.Detection{
		Class:      svc.labels[classID],
		Confidence: float64(objConf * maxScore),
		Box: model.BoundingBox{
			X1: clamp(int(cx-w/2), 0, cols),
			Y1: clamp(int(cy-h/2), 0, rows),
			X2: clamp(int(cx+w/2), 0, cols),
			Y2: clamp(int(cy+h/2), 0, rows),
		},
	}, true
}

func (svc *yoloService) CanSkipFrame(frames int) bool {
	if svc.everyNth <= 1 {
		return false
	}
	return frames%svc.everyNth != 0
}

func (svc *yoloService) Close() error {
	return svc.net.Close()
}

func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.New(fmt.Sprintf("reading class names %s: %v", path, err))
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n"), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
