package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/lgr"
	"github.com/JSNN15/PPE-Detection-System/service/metrics"
)

type sinkWorker struct {
	cfg   SinkConfig
	depth int

	mu     sync.Mutex
	queue  []model.DispatchEvent
	notify chan struct{}

	delivered atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
	failures  atomic.Int64
}

type dispatcherService struct {
	canxCtx context.Context
	workers []*sinkWorker
	mets    *metrics.Collectors
	wg      sync.WaitGroup
}

// New starts one delivery goroutine per sink. Each sink owns a bounded
// queue; a full queue sheds the oldest non-alert event first so violation
// alerts survive backpressure.
func New(canxCtx context.Context, queueDepth int, mets *metrics.Collectors, sinks ...SinkConfig) IService {
	svc := &dispatcherService{
		canxCtx: canxCtx,
		mets:    mets,
	}

	for _, cfg := range sinks {
		w := &sinkWorker{
			cfg:    cfg,
			depth:  queueDepth,
			notify: make(chan struct{}, 1),
		}
		svc.workers = append(svc.workers, w)
		svc.wg.Add(1)
		go svc.run(w)
	}

	return svc
}

func (svc *dispatcherService) Publish(event model.DispatchEvent) {
	for _, w := range svc.workers {
		svc.enqueue(w, event)
	}
}

func (svc *dispatcherService) enqueue(w *sinkWorker, event model.DispatchEvent) {
	w.mu.Lock()
	if len(w.queue) >= w.depth {
		if !w.shedLocked(event.Type == model.EventAlert) {
			// Queue full of alerts and the incoming event is not one.
			w.mu.Unlock()
			w.dropped.Add(1)
			svc.mets.SinkDropped.WithLabelValues(w.cfg.Sink.Name()).Inc()
			return
		}
		w.dropped.Add(1)
		svc.mets.SinkDropped.WithLabelValues(w.cfg.Sink.Name()).Inc()
	}
	w.queue = append(w.queue, event)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// shedLocked removes one event to make room: the oldest non-alert first,
// the oldest alert only when the incoming event is itself an alert.
func (w *sinkWorker) shedLocked(incomingIsAlert bool) bool {
	for i, e := range w.queue {
		if e.Type != model.EventAlert {
			w.queue = append(w.queue[:i], w.queue[i+1:]...)
			return true
		}
	}
	if incomingIsAlert && len(w.queue) > 0 {
		w.queue = w.queue[1:]
		return true
	}
	return false
}

func (svc *dispatcherService) run(w *sinkWorker) {
	defer svc.wg.Done()

	for {
		select {
		case <-svc.canxCtx.Done():
			return
		case <-w.notify:
		}

		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			event := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			svc.deliver(w, event)

			if svc.canxCtx.Err() != nil {
				return
			}
		}
	}
}

func (svc *dispatcherService) deliver(w *sinkWorker, event model.DispatchEvent) {
	name := w.cfg.Sink.Name()

	// Alerts get the full retry budget; routine events one extra attempt.
	retries := w.cfg.MaxRetries
	if event.Type != model.EventAlert && retries > 1 {
		retries = 1
	}

	delay := w.cfg.BaseDelay
	for attempt := 0; ; attempt++ {
		ctx, canxFn := context.WithTimeout(svc.canxCtx, w.cfg.Timeout)
		err := w.cfg.Sink.Deliver(ctx, event)
		canxFn()

		if err == nil {
			w.delivered.Add(1)
			svc.mets.SinkDelivered.WithLabelValues(name).Inc()
			return
		}

		w.failures.Add(1)
		svc.mets.SinkFailures.WithLabelValues(name).Inc()

		if attempt >= retries || svc.canxCtx.Err() != nil {
			w.dropped.Add(1)
			svc.mets.SinkDropped.WithLabelValues(name).Inc()
			lgr.Logger.Warn(
				"sink delivery dropped after retries",
				slog.String("sink", name),
				slog.String("event", string(event.Type)),
				slog.String("camera", event.CameraID),
				slog.Any("error", err),
			)
			return
		}

		w.retried.Add(1)
		select {
		case <-svc.canxCtx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (svc *dispatcherService) Stats() []model.DispatchStats {
	now := time.Now().Unix()
	stats := make([]model.DispatchStats, 0, len(svc.workers))
	for _, w := range svc.workers {
		stats = append(stats, model.DispatchStats{
			Sink:      w.cfg.Sink.Name(),
			Delivered: w.delivered.Load(),
			Retried:   w.retried.Load(),
			Dropped:   w.dropped.Load(),
			Failures:  w.failures.Load(),
			Timestamp: now,
		})
	}
	return stats
}

func (svc *dispatcherService) Close() {
	svc.wg.Wait()
	for _, w := range svc.workers {
		// Workers exit on cancellation; whatever they left queued was
		// never delivered and must show up in the drop count.
		w.mu.Lock()
		remnant := len(w.queue)
		w.queue = nil
		w.mu.Unlock()
		if remnant > 0 {
			w.dropped.Add(int64(remnant))
			svc.mets.SinkDropped.WithLabelValues(w.cfg.Sink.Name()).Add(float64(remnant))
			lgr.Logger.Warn(
				"sink queue discarded at shutdown",
				slog.String("sink", w.cfg.Sink.Name()),
				slog.Int("events", remnant),
			)
		}

		if err := w.cfg.Sink.Close(); err != nil {
			lgr.Logger.Warn(
				"sink close failed",
				slog.String("sink", w.cfg.Sink.Name()),
				slog.Any("error", err),
			)
		}
	}
}
