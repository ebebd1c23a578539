package training

import (
	"time"

	"github.com/okian/retention/internal/domain/failure"
)

// Split picks the walk-forward periods from the sorted execution dates:
// every date except the last holdout ones trains, and the single date
// testOffset positions from the end tests. testOffset must not exceed
// holdout so the test month always follows the training window.
func Split(dates []time.Time, holdout, testOffset int) ([]time.Time, time.Time, error) {
	const op = "split execution dates"
	if holdout < 1 || testOffset < 1 || testOffset > holdout {
		return nil, time.Time{}, failure.Newf(op, failure.ErrInsufficientHistory,
			"invalid holdout %d / test offset %d", holdout, testOffset)
	}
	if len(dates) <= holdout {
		return nil, time.Time{}, failure.Newf(op, failure.ErrInsufficientHistory,
			"%d execution dates, need more than %d", len(dates), holdout)
	}
	train := append([]time.Time(nil), dates[:len(dates)-holdout]...)
	return train, dates[len(dates)-testOffset], nil
}
