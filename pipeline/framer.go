package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectBaseMs   = 1000
	reconnectDelayCap        = 30 * time.Second
	maxConsecutiveReadErrors = 10
	snapshotInterval         = 200 * time.Millisecond
)

// grabber is one concrete way to pull frames off a camera. open resolves
// the connection spec fresh each time so rotated credentials and DNS
// changes are picked up on reconnect.
type grabber interface {
	open() error
	grab() (gocv.Mat, bool)
	close()
}

// framer owns the connection to one camera: it captures frames, numbers
// them, pushes them into the worker's bounded channel (dropping when the
// worker is busy), and walks the Connected -> Reconnecting ->
// Connected/Failed state machine with exponential backoff. It closes the
// frame channel when the source is Failed or the context ends.
func framer(canxCtx context.Context, camera model.Camera,
	errorStream chan interface{}, statsStream chan interface{},
	statusStream chan model.CameraStatusEvent, frames chan FrameData) {
	captureLoop(canxCtx, camera, newGrabber(camera), errorStream, statsStream, statusStream, frames)
}

func captureLoop(canxCtx context.Context, camera model.Camera, g grabber,
	errorStream chan interface{}, statsStream chan interface{},
	statusStream chan model.CameraStatusEvent, frames chan FrameData) {

	defer close(frames)

	var startTime = time.Now().Unix()
	var captured = 0
	var skipped = 0
	var errors = 0
	var reconnects = 0
	var seq uint64

	defer func() {
		uptime := time.Now().Unix() - startTime
		fps := 0
		if uptime > 0 {
			fps = int(float64(captured) / float64(uptime))
		}
		statsStream <- model.SourceStats{
			Name:       camera.FramerType,
			Camera:     camera.Name,
			Frames:     captured,
			Skipped:    skipped,
			Errors:     errors,
			Reconnects: reconnects,
			Uptime:     uptime,
			FPS:        fps,
			Timestamp:  time.Now().Unix(),
		}
	}()

	maxAttempts := camera.ReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultReconnectAttempts
	}
	baseDelay := time.Duration(camera.ReconnectBaseDelayMs) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = defaultReconnectBaseMs * time.Millisecond
	}

	attempt := 0
	everConnected := false

	for {
		if canxCtx.Err() != nil {
			return
		}

		if err := g.open(); err != nil {
			attempt++
			errors++

			if attempt >= maxAttempts {
				lgr.Logger.Error(
					"camera source failed, giving up until reset",
					slog.String("camera", camera.ID),
					slog.Int("attempts", attempt),
				)
				emitStatus(canxCtx, statusStream, model.CameraStatusEvent{
					CameraID:  camera.ID,
					Status:    model.CameraFailed,
					Attempt:   attempt,
					Timestamp: time.Now(),
				})
				return
			}

			emitStatus(canxCtx, statusStream, model.CameraStatusEvent{
				CameraID:  camera.ID,
				Status:    model.CameraReconnecting,
				Attempt:   attempt,
				Timestamp: time.Now(),
			})

			if !sleepCtx(canxCtx, backoff(baseDelay, attempt)) {
				return
			}
			continue
		}

		reconnected := everConnected || attempt > 0
		everConnected = true
		attemptAtConnect := attempt
		attempt = 0
		if reconnected {
			reconnects++
		}
		emitStatus(canxCtx, statusStream, model.CameraStatusEvent{
			CameraID:  camera.ID,
			Status:    model.CameraConnected,
			Attempt:   attemptAtConnect,
			Timestamp: time.Now(),
		})

		// Read until the connection goes bad or we are cancelled.
		consecutive := 0
		for {
			if canxCtx.Err() != nil {
				g.close()
				return
			}

			img, ok := g.grab()
			if !ok {
				consecutive++
				errors++
				if consecutive >= maxConsecutiveReadErrors {
					break
				}
				continue
			}

			consecutive = 0
			captured++
			seq++

			fd := FrameData{
				Mat:       img,
				Timestamp: time.Now(),
				Sequence:  seq,
				Width:     img.Cols(),
				Height:    img.Rows(),
			}

			// Drop-when-busy: a slow worker sheds frames here instead of
			// stalling capture.
			select {
			case frames <- fd:
			default:
				skipped++
				img.Close()
			}
		}

		g.close()
		errorStream <- model.GenError("framer",
			nil,
			map[string]interface{}{"camera": camera.ID},
			"camera %s connection lost, reconnecting", camera.ID)

		// The loss itself opens the reconnect cycle: observers must see
		// Reconnecting between the two Connected states even when the
		// first reopen succeeds.
		attempt++
		emitStatus(canxCtx, statusStream, model.CameraStatusEvent{
			CameraID:  camera.ID,
			Status:    model.CameraReconnecting,
			Attempt:   attempt,
			Timestamp: time.Now(),
		})
	}
}

func emitStatus(canxCtx context.Context, statusStream chan model.CameraStatusEvent, ev model.CameraStatusEvent) {
	select {
	case <-canxCtx.Done():
	case statusStream <- ev:
	}
}

func sleepCtx(canxCtx context.Context, d time.Duration) bool {
	select {
	case <-canxCtx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= reconnectDelayCap {
			return reconnectDelayCap
		}
	}
	if d > reconnectDelayCap {
		d = reconnectDelayCap
	}
	return d
}

func newGrabber(camera model.Camera) grabber {
	switch camera.FramerType {
	case "http":
		return &httpGrabber{camera: camera}
	case "synthetic":
		return &syntheticGrabber{}
	default:
		return &rtspGrabber{camera: camera}
	}
}

// connectionURL resolves the camera address, pulling the password out of
// the configured env var so credentials never live in the yaml file.
func connectionURL(camera model.Camera) string {
	password := ""
	if camera.PasswordEnv != "" {
		password = os.Getenv(camera.PasswordEnv)
	}

	auth := ""
	if camera.Username != "" && password != "" {
		auth = fmt.Sprintf("%s:%s@", camera.Username, password)
	}

	return fmt.Sprintf("%s://%s%s:%d%s", camera.Protocol, auth, camera.Host, camera.Port, camera.Path)
}

type rtspGrabber struct {
	camera model.Camera
	webcam *gocv.VideoCapture
}

func (g *rtspGrabber) open() error {
	webcam, err := gocv.OpenVideoCapture(connectionURL(g.camera))
	if err != nil {
		return err
	}
	g.webcam = webcam
	return nil
}

func (g *rtspGrabber) grab() (gocv.Mat, bool) {
	img := gocv.NewMat()
	if ok := g.webcam.Read(&img); !ok || img.Empty() {
		img.Close()
		return gocv.Mat{}, false
	}
	return img, true
}

func (g *rtspGrabber) close() {
	if g.webcam != nil {
		g.webcam.Close()
		g.webcam = nil
	}
}

// httpGrabber polls a snapshot endpoint; some cheap cameras only speak
// single-image HTTP pull.
type httpGrabber struct {
	camera model.Camera
	client *http.Client
	url    string
}

func (g *httpGrabber) open() error {
	g.url = connectionURL(g.camera)
	g.client = &http.Client{Timeout: 10 * time.Second}

	// Probe once so open fails fast on a dead endpoint.
	resp, err := g.client.Get(g.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (g *httpGrabber) grab() (gocv.Mat, bool) {
	time.Sleep(snapshotInterval)

	resp, err := g.client.Get(g.url)
	if err != nil {
		return gocv.Mat{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return gocv.Mat{}, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gocv.Mat{}, false
	}

	img, err := gocv.IMDecode(body, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, false
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, false
	}
	return img, true
}

func (g *httpGrabber) close() {
	if g.client != nil {
		g.client.CloseIdleConnections()
	}
}

// syntheticGrabber generates blank frames for local development without a
// camera on the network.
type syntheticGrabber struct{}

func (g *syntheticGrabber) open() error {
	return nil
}

func (g *syntheticGrabber) grab() (gocv.Mat, bool) {
	time.Sleep(snapshotInterval)
	return gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3), true
}

func (g *syntheticGrabber) close() {}
