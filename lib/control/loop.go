// Package control runs the measurement cycle: measure, log a row, then wait
// for the next cycle while answering operator signals.
package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/gotmc/fourprobe/lib/measure"
)

// State of a Loop.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// FailurePolicy decides what a failed (but not fatal) measurement leaves in
// the data file.
type FailurePolicy int

const (
	// ZeroFill writes a row whose measurement fields are all zero. Zero rows
	// cannot be told apart from a genuine zero reading; the run summary
	// counts them.
	ZeroFill FailurePolicy = iota
	// Skip writes nothing for the cycle.
	Skip
	// Abort ends the run.
	Abort
)

var policyNames = map[FailurePolicy]string{
	ZeroFill: "zero",
	Skip:     "skip",
	Abort:    "abort",
}

func (p FailurePolicy) String() string { return policyNames[p] }

// ParseFailurePolicy accepts "zero", "skip" or "abort".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown failure policy %q (want zero, skip or abort)", s)
}

// Appender stores one sample.
type Appender interface {
	Append(measure.Sample) error
}

// Summary counts what a run did.
type Summary struct {
	Cycles     int
	Rows       int
	ZeroFilled int
	Skipped    int
	Plots      int
	PlotErrors int
}

// Loop measures every Wait until it receives Stop.
type Loop struct {
	Strategy measure.Strategy
	Data     Appender
	Plot     func() error // called on Plot signals; may be nil
	Wait     time.Duration
	Policy   FailurePolicy
	Clock    clock.Clock
	Log      zerolog.Logger

	state State
}

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

func (l *Loop) clock() clock.Clock {
	if l.Clock == nil {
		l.Clock = clock.New()
	}
	return l.Clock
}

// Run measures until a Stop signal, a fatal measurement error, a data file
// error or ctx cancellation. Cycle starts are at least Wait apart; Plot
// signals are served while waiting without moving the next cycle.
func (l *Loop) Run(ctx context.Context, signals <-chan Signal) (Summary, error) {
	clk := l.clock()
	var sum Summary
	start := clk.Now()
	l.state = Running
	l.Log.Info().
		Str("strategy", l.Strategy.Name()).
		Dur("wait", l.Wait).
		Stringer("on_failure", l.Policy).
		Msg("run started")

	for l.state == Running {
		cycleStart := clk.Now()
		o := measure.Take(ctx, clk, l.Strategy)
		sum.Cycles++

		write := true
		switch o.Status {
		case measure.StatusFatal:
			l.state = Stopped
			return sum, fmt.Errorf("cycle %d: %w", sum.Cycles, o.Err)
		case measure.StatusFailed:
			switch l.Policy {
			case Abort:
				l.state = Stopped
				return sum, fmt.Errorf("cycle %d: %w", sum.Cycles, o.Err)
			case Skip:
				l.Log.Warn().Err(o.Err).Int("cycle", sum.Cycles).Msg("measurement failed, skipping row")
				sum.Skipped++
				write = false
			default:
				l.Log.Warn().Err(o.Err).Int("cycle", sum.Cycles).Msg("measurement failed, logging zeros")
				sum.ZeroFilled++
			}
		}

		if write {
			now := clk.Now()
			s := measure.Sample{Reading: o.Reading, Elapsed: now.Sub(start), Time: now}
			if err := l.Data.Append(s); err != nil {
				l.state = Stopped
				return sum, fmt.Errorf("cycle %d: %w", sum.Cycles, err)
			}
			sum.Rows++
			l.Log.Info().
				Int("cycle", sum.Cycles).
				Float64("temp_k", s.TempForward).
				Float64("r_avg_ohm", s.Average()).
				Dur("took", o.Took).
				Msg("sample")
		}

		if err := l.wait(ctx, signals, cycleStart.Add(l.Wait), &sum); err != nil {
			l.state = Stopped
			return sum, err
		}
	}
	return sum, nil
}

// wait blocks until deadline, a Stop signal or ctx is done. When the
// deadline has already passed it still serves signals that are pending.
func (l *Loop) wait(ctx context.Context, signals <-chan Signal, deadline time.Time, sum *Summary) error {
	clk := l.clock()
	for l.state == Running {
		d := deadline.Sub(clk.Now())
		if d <= 0 {
			select {
			case sig, ok := <-signals:
				if !ok {
					signals = nil
				} else {
					l.handle(sig, sum)
				}
				continue
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		}
		t := clk.Timer(d)
		select {
		case <-t.C:
			return nil
		case sig, ok := <-signals:
			t.Stop()
			if !ok {
				signals = nil
				continue
			}
			l.handle(sig, sum)
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return nil
}

func (l *Loop) handle(sig Signal, sum *Summary) {
	switch sig {
	case Stop:
		l.Log.Info().Msg("stop requested")
		l.state = Stopped
	case Plot:
		if l.Plot == nil {
			return
		}
		if err := l.Plot(); err != nil {
			l.Log.Error().Err(err).Msg("plot failed")
			sum.PlotErrors++
			return
		}
		sum.Plots++
	}
}
