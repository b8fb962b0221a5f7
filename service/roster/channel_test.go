package roster

import (
	"context"
	"testing"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
)

type rosterCfg struct {
	config.IService
	cameras []model.Camera
}

func (c rosterCfg) RetrieveCameras() ([]model.Camera, error) {
	return c.cameras, nil
}

func receive(t *testing.T, ch <-chan []model.Camera) []model.Camera {
	t.Helper()
	select {
	case cameras := <-ch:
		return cameras
	case <-time.After(2 * time.Second):
		t.Fatal("no roster delivery within deadline")
		return nil
	}
}

func TestSubscribeDeliversEnabledCameras(t *testing.T) {
	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()

	svc, err := NewChannel(canxCtx, rosterCfg{cameras: []model.Camera{
		{ID: "cam-1", Enabled: true},
		{ID: "cam-2", Enabled: false},
		{ID: "cam-3", Enabled: true},
	}})
	if err != nil {
		t.Fatal(err)
	}

	ch, err := svc.Subscribe()
	if err != nil {
		t.Fatal(err)
	}

	cameras := receive(t, ch)
	if len(cameras) != 2 {
		t.Fatalf("startup cameras = %d, want 2", len(cameras))
	}
	for _, c := range cameras {
		if !c.Enabled {
			t.Errorf("disabled camera %s delivered", c.ID)
		}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()

	svc, err := NewChannel(canxCtx, rosterCfg{})
	if err != nil {
		t.Fatal(err)
	}

	ch, err := svc.Subscribe()
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Publish([]model.Camera{{ID: "cam-1", Enabled: true}}); err != nil {
		t.Fatal(err)
	}

	cameras := receive(t, ch)
	if len(cameras) != 1 || cameras[0].ID != "cam-1" {
		t.Errorf("delivered = %+v", cameras)
	}
}

func TestDoubleSubscribeRejected(t *testing.T) {
	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()

	svc, err := NewChannel(canxCtx, rosterCfg{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Subscribe(); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(); err == nil {
		t.Error("second subscribe should fail while the first is active")
	}

	if err := svc.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(); err != nil {
		t.Errorf("resubscribe after unsubscribe: %v", err)
	}
}

func TestPublishEmptySetIsNoop(t *testing.T) {
	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()

	svc, err := NewChannel(canxCtx, rosterCfg{})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Publish(nil); err != nil {
		t.Errorf("publishing no cameras: %v", err)
	}
}
