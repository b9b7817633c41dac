package connutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotmc/fourprobe/lib/config"
	"github.com/gotmc/fourprobe/lib/instrument"
)

func simBus() config.Bus {
	return config.Bus{
		GPIBTimeout: 500,
		Simulate:    true,
		Addr:        config.Addresses{Thermometer: 12, Sourcemeter: 24, Nanovoltmeter: 7},
	}
}

func TestSetupSimulated(t *testing.T) {
	conns, cleanup, err := Setup(simBus(), zerolog.Nop())
	require.NoError(t, err)

	k, err := instrument.NewThermometer(conns.Thermometer).Kelvin()
	require.NoError(t, err)
	assert.Equal(t, 295.0, k)

	require.NoError(t, cleanup())
	_, err = conns.Thermometer.Query(":READ?")
	assert.Error(t, err, "port closed by cleanup")
}

func TestSetupTracedLogsEachTransferOnce(t *testing.T) {
	cfg := simBus()
	cfg.Trace = true
	var buf bytes.Buffer
	conns, cleanup, err := Setup(cfg, zerolog.New(&buf).Level(zerolog.DebugLevel))
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, instrument.NewK2400(conns.Sourcemeter).Output(false))
	_, err = instrument.NewThermometer(conns.Thermometer).Kelvin()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "OUTP OFF"))
	assert.Equal(t, 1, strings.Count(buf.String(), "READ?"))
	assert.Contains(t, buf.String(), "++addr 24", "controller commands are traced by the bus")
}

func TestSetupInvalid(t *testing.T) {
	cfg := simBus()
	cfg.Addr.Sourcemeter = 40
	_, cleanup, err := Setup(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.NoError(t, cleanup())
}

func TestPortConfigured(t *testing.T) {
	p, err := Port(config.Bus{Port: "/dev/ttyUSB7"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB7", p)
}
