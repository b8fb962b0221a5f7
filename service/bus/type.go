package bus

import (
	"context"

	"github.com/JSNN15/PPE-Detection-System/model"
)

// IService publishes pipeline events to the telemetry bus. It satisfies the
// dispatcher's Sink contract.
type IService interface {
	Name() string
	Deliver(ctx context.Context, event model.DispatchEvent) error
	Close() error
}
