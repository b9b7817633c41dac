package measure

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/gotmc/fourprobe/lib/instrument"
)

// DefaultSettle is the wait before each resistance read.
const DefaultSettle = 100 * time.Millisecond

// FourWire measures resistance directly with the 2400 in four-wire ohms
// mode and reads the thermometer after the pair.
type FourWire struct {
	SMU     *instrument.K2400
	Therm   *instrument.Thermometer
	Current Current
	Settle  time.Duration
	Clock   clock.Clock
}

func (f *FourWire) Name() string   { return "four-wire" }
func (f *FourWire) Schema() Schema { return FourWireSchema }

// Setup has nothing to do: every Measure starts from a reset.
func (f *FourWire) Setup() error { return nil }

func (f *FourWire) Measure(ctx context.Context) (r Reading, err error) {
	clk := f.Clock
	if clk == nil {
		clk = clock.New()
	}
	if err := f.SMU.Reset(); err != nil {
		return r, err
	}
	amps := 0.0
	if !f.Current.Auto {
		amps = f.Current.Amps
	}
	if err := f.SMU.ConfigureFourWire(amps); err != nil {
		return r, err
	}
	if err := sleep(ctx, clk, f.Settle); err != nil {
		return r, err
	}
	if err := f.SMU.ReportResistance(); err != nil {
		return r, err
	}
	if err := f.SMU.Output(true); err != nil {
		return r, err
	}
	defer func() {
		if err != nil {
			multierr.AppendInto(&err, f.SMU.Output(false))
		}
	}()

	rf, err := f.SMU.Resistance()
	if err != nil {
		return r, err
	}
	// In auto ohms the level is only known after the reading.
	iF, err := f.SMU.Current()
	if err != nil {
		return r, err
	}

	if err := f.SMU.ManualOhms(); err != nil {
		return r, err
	}
	if err := f.SMU.SetCurrent(-iF); err != nil {
		return r, err
	}
	iB, err := f.SMU.Current()
	if err != nil {
		return r, err
	}
	if err := sleep(ctx, clk, f.Settle); err != nil {
		return r, err
	}
	rb, err := f.SMU.Resistance()
	if err != nil {
		return r, err
	}
	if err := f.SMU.Output(false); err != nil {
		return r, err
	}

	t, err := f.Therm.Kelvin()
	if err != nil {
		return r, Fatal(err)
	}
	return Reading{
		TempForward:  t,
		TempBackward: t,
		VForward:     rf * iF,
		IForward:     iF,
		RForward:     rf,
		VBackward:    rb * iB,
		IBackward:    iB,
		RBackward:    rb,
	}, nil
}
