package roster

import (
	"context"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
)

type channelService struct {
	canxCtx       context.Context
	subsCtx       context.Context
	subsCancel    context.CancelFunc
	cameraChannel chan []model.Camera
	pending       chan []model.Camera
	startup       []model.Camera
}

// NewChannel builds the roster from the configured camera set. Disabled
// cameras never enter the roster.
func NewChannel(canxCtx context.Context, cfgSvc config.IService) (IService, error) {
	cameras, err := cfgSvc.RetrieveCameras()
	if err != nil {
		return nil, err
	}

	var enabled []model.Camera
	for _, camera := range cameras {
		if camera.Enabled {
			enabled = append(enabled, camera)
		}
	}

	return &channelService{
		canxCtx: canxCtx,
		startup: enabled,
		pending: make(chan []model.Camera, 16),
	}, nil
}

func (svc *channelService) Publish(cameras []model.Camera) error {
	if len(cameras) == 0 {
		return nil
	}

	select {
	case svc.pending <- cameras:
		return nil
	case <-svc.canxCtx.Done():
		return svc.canxCtx.Err()
	}
}

func (svc *channelService) Subscribe() (<-chan []model.Camera, error) {
	if svc.subsCtx != nil {
		return nil, xerrors.New("roster: already subscribed. Unsubscribe first")
	}

	// One channel for the lifetime of the service, regardless of how many
	// subscribe/unsubscribe cycles happen.
	if svc.cameraChannel == nil {
		svc.cameraChannel = make(chan []model.Camera)
	}

	subsCtx, subsCancel := context.WithCancel(svc.canxCtx)
	svc.subsCtx = subsCtx
	svc.subsCancel = subsCancel

	startup := svc.startup
	svc.startup = nil

	go func() {
		defer svc.cleanup()

		if len(startup) > 0 {
			select {
			case <-subsCtx.Done():
				return
			case svc.cameraChannel <- startup:
			}
		}

		for {
			select {
			case <-subsCtx.Done():
				lgr.Logger.Info("roster subscription cancelled")
				return
			case cameras := <-svc.pending:
				select {
				case <-subsCtx.Done():
					return
				case svc.cameraChannel <- cameras:
					lgr.Logger.Info(
						"roster delivered cameras",
						slog.Int("count", len(cameras)),
					)
				}
			}
		}
	}()

	return svc.cameraChannel, nil
}

func (svc *channelService) Unsubscribe() error {
	if svc.subsCtx == nil {
		return xerrors.New("roster: not subscribed yet. Subscribe first")
	}

	svc.cleanup()
	return nil
}

func (svc *channelService) cleanup() {
	if svc.subsCancel != nil {
		svc.subsCancel()
		svc.subsCtx = nil
		svc.subsCancel = nil
	}
}
