package measure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/gotmc/fourprobe/lib/instrument"
)

// DefaultPolarityDelay separates the forward and backward halves of a
// source-current measurement.
const DefaultPolarityDelay = time.Second

// ErrNoCurrent is returned when the sourcemeter reads back zero current,
// which would make V/I meaningless.
var ErrNoCurrent = errors.New("source current read back as zero")

// SourceCurrent drives a fixed current with the 2400 and reads the sample
// voltage with a 2182 nanovoltmeter, taking a temperature after each half.
type SourceCurrent struct {
	SMU           *instrument.K2400
	NVM           *instrument.K2182
	Therm         *instrument.Thermometer
	Current       Current
	Channel       int
	Settle        time.Duration
	PolarityDelay time.Duration
	Clock         clock.Clock
}

func (s *SourceCurrent) Name() string   { return "source-current" }
func (s *SourceCurrent) Schema() Schema { return SourceCurrentSchema }

// Setup resets both instruments and configures current sourcing and
// voltage sensing.
func (s *SourceCurrent) Setup() error {
	if s.Current.Auto {
		return fmt.Errorf("%s: a fixed current is required", s.Name())
	}
	if err := s.Current.Validate(); err != nil {
		return err
	}
	ch := s.Channel
	if ch == 0 {
		ch = 1
	}
	for _, step := range []func() error{
		s.SMU.Reset,
		s.NVM.Reset,
		s.SMU.ConfigureCurrentSource,
		func() error { return s.NVM.ConfigureVoltage(ch) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

type half struct{ t, v, i, r float64 }

func (s *SourceCurrent) Measure(ctx context.Context) (Reading, error) {
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	fwd, err := s.half(ctx, clk, s.Current.Amps)
	if err != nil {
		return Reading{}, err
	}
	if err := sleep(ctx, clk, s.PolarityDelay); err != nil {
		return Reading{}, err
	}
	bwd, err := s.half(ctx, clk, -s.Current.Amps)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		TempForward:  fwd.t,
		TempBackward: bwd.t,
		VForward:     fwd.v,
		IForward:     fwd.i,
		RForward:     fwd.r,
		VBackward:    bwd.v,
		IBackward:    bwd.i,
		RBackward:    bwd.r,
	}, nil
}

func (s *SourceCurrent) half(ctx context.Context, clk clock.Clock, amps float64) (h half, err error) {
	if err := s.SMU.SetCurrent(amps); err != nil {
		return h, err
	}
	if err := s.SMU.Output(true); err != nil {
		return h, err
	}
	defer func() {
		if err != nil {
			multierr.AppendInto(&err, s.SMU.Output(false))
		}
	}()
	if h.i, err = s.SMU.Current(); err != nil {
		return h, err
	}
	if h.i == 0 {
		return h, ErrNoCurrent
	}
	if err = sleep(ctx, clk, s.Settle); err != nil {
		return h, err
	}
	if h.v, err = s.NVM.Voltage(); err != nil {
		return h, err
	}
	if err = s.SMU.Output(false); err != nil {
		return h, err
	}
	if h.t, err = s.Therm.Kelvin(); err != nil {
		return h, err
	}
	h.r = h.v / h.i
	return h, nil
}
