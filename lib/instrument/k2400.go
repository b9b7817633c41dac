package instrument

import (
	"github.com/pkg/errors"
)

// K2400 drives a Keithley 2400 SourceMeter.
// https://download.tek.com/manual/2400S-900-01_K-Sep2011_User.pdf
type K2400 struct{ c Conn }

// NewK2400 returns a sourcemeter on c.
func NewK2400(c Conn) *K2400 { return &K2400{c: c} }

// Reset returns the sourcemeter to its default settings.
func (k *K2400) Reset() error {
	return errors.Wrap(reset(k.c), "reset sourcemeter")
}

// ConfigureFourWire selects resistance measurement with remote (four-wire)
// sensing. When amps is zero the instrument picks the test current itself
// (auto ohms); otherwise the current is fixed at amps.
func (k *K2400) ConfigureFourWire(amps float64) error {
	errContext := "four-wire resistance init fail"
	cmds := []string{
		`Func "RES"`,   // Resistance measurement.
		"RES:MODE MAN", // Manual ohms, so a source level can be set.
	}
	for _, cmd := range cmds {
		if err := k.c.Command(cmd); err != nil {
			return errors.Wrap(err, errContext)
		}
	}
	if amps == 0 {
		if err := k.c.Command("RES:MODE AUTO"); err != nil {
			return errors.Wrap(err, errContext)
		}
	} else if err := k.SetCurrent(amps); err != nil {
		return errors.Wrap(err, errContext)
	}
	if err := k.c.Command(":SYST:RSEN ON"); err != nil {
		return errors.Wrap(err, errContext)
	}
	return nil
}

// ManualOhms switches resistance mode back to manual so the source level
// can be changed, for example to reverse the current.
func (k *K2400) ManualOhms() error {
	return errors.Wrap(k.c.Command("RES:MODE MAN"), "manual ohms")
}

// ConfigureCurrentSource sets the sourcemeter up as a fixed current source
// for an external voltmeter.
func (k *K2400) ConfigureCurrentSource() error {
	errContext := "current source init fail"
	for _, cmd := range []string{
		"SOUR:FUNC CURR",       // Source current.
		"SOUR:CURR:MODE FIXED", // Fixed (non-sweeping) level.
	} {
		if err := k.c.Command(cmd); err != nil {
			return errors.Wrap(err, errContext)
		}
	}
	return nil
}

// SetCurrent sets the source current level in amps.
func (k *K2400) SetCurrent(amps float64) error {
	err := k.c.Command(":SOUR:CURR:LEV " + formatAmps(amps))
	return errors.Wrap(err, "set current")
}

// Current reads back the source current level in amps.
func (k *K2400) Current() (float64, error) {
	a, err := queryFloat(k.c, ":SOUR:CURR:LEV?")
	return a, errors.Wrap(err, "read current")
}

// Output enables or disables the source output.
func (k *K2400) Output(on bool) error {
	cmd := ":OUTP OFF"
	if on {
		cmd = ":OUTP ON"
	}
	return errors.Wrap(k.c.Command(cmd), "set output")
}

// ReportResistance restricts :READ? replies to the resistance element.
func (k *K2400) ReportResistance() error {
	return errors.Wrap(k.c.Command(":FORM:ELEM RES"), "format elements")
}

// Resistance triggers a reading and returns it in ohms. ReportResistance
// must have been called first.
func (k *K2400) Resistance() (float64, error) {
	r, err := queryFloat(k.c, ":READ?")
	return r, errors.Wrap(err, "read resistance")
}
