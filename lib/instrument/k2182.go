package instrument

import (
	"fmt"

	"github.com/pkg/errors"
)

// K2182 drives a Keithley 2182 nanovoltmeter.
type K2182 struct{ c Conn }

// NewK2182 returns a nanovoltmeter on c.
func NewK2182(c Conn) *K2182 { return &K2182{c: c} }

// Reset returns the nanovoltmeter to its default settings.
func (k *K2182) Reset() error {
	return errors.Wrap(reset(k.c), "reset nanovoltmeter")
}

// ConfigureVoltage selects DC voltage on the given input channel (1 or 2).
func (k *K2182) ConfigureVoltage(channel int) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("invalid 2182 channel %d (must be 1 or 2)", channel)
	}
	if err := k.c.Command(":SENS:CHAN %d", channel); err != nil {
		return errors.Wrap(err, "select channel")
	}
	return errors.Wrap(k.c.Command(":SENS:FUNC 'VOLT'"), "select voltage")
}

// Voltage triggers a reading and returns it in volts.
func (k *K2182) Voltage() (float64, error) {
	v, err := queryFloat(k.c, ":READ?")
	return v, errors.Wrap(err, "read voltage")
}
