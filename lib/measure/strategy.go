// Package measure takes current-reversal resistance readings. A Strategy
// implements one instrument arrangement; Take runs it and classifies the
// result so the caller can decide what to log.
package measure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"
)

// Strategy is one way of measuring a forward/reverse resistance pair.
type Strategy interface {
	Name() string
	Schema() Schema
	// Setup initialises the instruments once before the first Measure.
	Setup() error
	Measure(ctx context.Context) (Reading, error)
}

// Status classifies the outcome of a measurement.
type Status int

const (
	StatusOK     Status = iota
	StatusFailed        // failed, the next cycle may succeed
	StatusFatal         // the run cannot continue
)

var statusDesc = map[Status]string{
	StatusOK:     "ok",
	StatusFailed: "failed",
	StatusFatal:  "fatal",
}

func (s Status) String() string { return statusDesc[s] }

// Outcome is the result of one Take.
type Outcome struct {
	Reading Reading
	Status  Status
	Err     error
	Took    time.Duration
}

// Take runs one measurement and classifies its error. The Reading of a
// non-OK outcome is the zero Reading.
func Take(ctx context.Context, clk clock.Clock, s Strategy) Outcome {
	start := clk.Now()
	r, err := s.Measure(ctx)
	o := Outcome{Reading: r, Status: Classify(err), Err: err, Took: clk.Since(start)}
	if o.Status != StatusOK {
		o.Reading = Reading{}
	}
	return o
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as ending the run.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err}
}

// Classify maps an error from a Strategy to a Status. Errors marked with
// Fatal, context cancellation and a closed port are fatal; everything else
// (timeouts, unparsable replies, bad readings) is worth another try.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return StatusFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusFatal
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		return StatusFatal
	}
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return StatusFatal
	}
	return StatusFailed
}

// MaxCurrent is the largest source current the 2400 can deliver.
const MaxCurrent = 1.05

// Current is the source current setting: automatic (instrument chooses) or
// a fixed magnitude in amps.
type Current struct {
	Auto bool
	Amps float64
}

// AutoCurrent lets the sourcemeter pick the test current.
func AutoCurrent() Current { return Current{Auto: true} }

// FixedCurrent sources amps.
func FixedCurrent(amps float64) Current { return Current{Amps: amps} }

// ParseCurrent accepts "auto" (or "a") or a positive current in amps.
func ParseCurrent(s string) (Current, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "auto", "a":
		return AutoCurrent(), nil
	}
	a, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Current{}, fmt.Errorf("invalid current %q: %w", s, err)
	}
	c := FixedCurrent(a)
	return c, c.Validate()
}

// Validate checks a fixed current is positive and within the source range.
func (c Current) Validate() error {
	if c.Auto {
		return nil
	}
	if !(c.Amps > 0) || c.Amps > MaxCurrent {
		return fmt.Errorf("current %g A out of range (0, %g]", c.Amps, MaxCurrent)
	}
	return nil
}

func (c Current) String() string {
	if c.Auto {
		return "auto"
	}
	return strconv.FormatFloat(c.Amps, 'g', -1, 64) + " A"
}

// sleep waits d on clk or until ctx is done.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
