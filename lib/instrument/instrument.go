// Package instrument holds the command sets of the bench instruments: a
// Keithley 2400 sourcemeter, a Keithley 2182 nanovoltmeter and a SCPI
// thermometer reporting kelvin.
package instrument

import (
	"strconv"

	"github.com/gotmc/query"
	"github.com/pkg/errors"
)

// Conn is a connection to one instrument. Command is fire-and-forget; Query
// blocks until the instrument replies or the bus times out.
type Conn interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

// reset puts an instrument in its power-on state and clears its status
// registers.
func reset(c Conn) error {
	return c.Command("*rst; status:preset; *cls")
}

func queryFloat(c Conn, cmd string) (float64, error) {
	v, err := query.Float64(c, cmd)
	if err != nil {
		return 0, errors.Wrapf(err, "query %s", cmd)
	}
	return v, nil
}

func formatAmps(a float64) string {
	return strconv.FormatFloat(a, 'g', -1, 64)
}

// Thermometer reads the sample temperature.
type Thermometer struct{ c Conn }

// NewThermometer returns a thermometer on c.
func NewThermometer(c Conn) *Thermometer { return &Thermometer{c: c} }

// Kelvin triggers and returns one temperature reading.
func (t *Thermometer) Kelvin() (float64, error) {
	k, err := queryFloat(t.c, ":READ?")
	return k, errors.Wrap(err, "read temperature")
}
