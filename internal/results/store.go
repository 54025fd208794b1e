package results

import (
	"context"
	"errors"

	"pairlab/internal/event"
)

var (
	ErrUnsupportedDSN = errors.New("unsupported results dsn")
	ErrClosed         = errors.New("results store closed")
)

// Store persists completed trials.
type Store interface {
	SaveTrial(ctx context.Context, record event.TrialRecord) error
	PairTrials(ctx context.Context, pairID string) ([]event.TrialRecord, error)
	RecentTrials(ctx context.Context, limit int) ([]event.TrialRecord, error)
	Close() error
}
