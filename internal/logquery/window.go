package logquery

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultLookback   = 24 * time.Hour
	EscalatedLookback = 48 * time.Hour
	// MaxWindow caps explicit windows. A window of exactly MaxWindow is valid.
	MaxWindow = 48 * time.Hour
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// Window is a closed time interval for a log query.
type Window struct {
	Start time.Time
	End   time.Time
}

// Last returns the window of length d ending at now.
func Last(d time.Duration, now time.Time) Window {
	return Window{Start: now.Add(-d), End: now}
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are both required", ErrInvalidTimeRange)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidTimeRange,
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	if w.Duration() > MaxWindow {
		return fmt.Errorf("%w: %s exceeds the maximum of %s", ErrInvalidTimeRange, w.Duration(), MaxWindow)
	}
	return nil
}

func (w Window) clause() string {
	return fmt.Sprintf(`timestamp >= "%s" AND timestamp <= "%s"`,
		w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}
