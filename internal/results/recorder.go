package results

import (
	"context"
	"strconv"
	"time"

	"pairlab/internal/event"
	"pairlab/internal/logging"
	"pairlab/internal/metrics"
)

const defaultWriteTimeout = 5 * time.Second

type RecorderOptions struct {
	Logger       *logging.Logger
	Metrics      *metrics.Registry
	WriteTimeout time.Duration
}

// Recorder drains trial_completed events into a Store. Write failures are
// logged and counted; they never reach the experiment engine.
type Recorder struct {
	store        Store
	logger       *logging.Logger
	metrics      *metrics.Registry
	writeTimeout time.Duration
}

func NewRecorder(store Store, opts RecorderOptions) *Recorder {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Recorder{
		store:        store,
		logger:       opts.Logger.Category("results"),
		metrics:      opts.Metrics,
		writeTimeout: opts.WriteTimeout,
	}
}

// Run consumes events until ctx is done or events is closed.
func (r *Recorder) Run(ctx context.Context, events <-chan event.ExperimentEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.Record(ctx, evt)
		}
	}
}

func (r *Recorder) Record(ctx context.Context, evt event.ExperimentEvent) {
	if evt.EventType != event.TypeTrialCompleted || evt.Trial == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	err := r.store.SaveTrial(writeCtx, *evt.Trial)
	r.metrics.RecordResultWrite(err)
	fields := map[string]string{
		"pair.id": evt.Trial.PairID,
		"trial":   strconv.Itoa(evt.Trial.Index),
	}
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Error("trial result write failed", fields)
		return
	}
	r.logger.Debug("trial result saved", fields)
}
