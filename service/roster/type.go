package roster

import "github.com/JSNN15/PPE-Detection-System/model"

// IService hands out cameras that need a worker: every enabled camera at
// startup, then any camera an operator resets after it was marked Failed.
type IService interface {
	Publish(cameras []model.Camera) error
	Subscribe() (<-chan []model.Camera, error)
	Unsubscribe() error
}
