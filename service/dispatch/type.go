package dispatch

import (
	"context"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
)

// Sink is a single delivery target. Deliver must respect ctx and return an
// error for any failed delivery (timeout, refusal, non-2xx); the dispatcher
// owns retries and accounting.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event model.DispatchEvent) error
	Close() error
}

// SinkConfig pairs a sink with its delivery policy.
type SinkConfig struct {
	Sink       Sink
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// IService fans events out to every configured sink. Publish never blocks
// the caller and never returns a delivery error; failures are retried per
// sink policy, then dropped and counted.
type IService interface {
	Publish(event model.DispatchEvent)
	Stats() []model.DispatchStats
	Close()
}
