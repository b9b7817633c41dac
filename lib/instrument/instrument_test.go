package instrument

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records commands and answers queries from a table.
type fakeConn struct {
	sent    []string
	replies map[string]string
	fail    error
}

func (f *fakeConn) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	f.sent = append(f.sent, cmd)
	return f.fail
}

func (f *fakeConn) Query(cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	if f.fail != nil {
		return "", f.fail
	}
	return f.replies[cmd], nil
}

func TestK2400FourWire(t *testing.T) {
	tests := []struct {
		name string
		amps float64
		want []string
	}{
		{"auto", 0, []string{`Func "RES"`, "RES:MODE MAN", "RES:MODE AUTO", ":SYST:RSEN ON"}},
		{"fixed", 1e-5, []string{`Func "RES"`, "RES:MODE MAN", ":SOUR:CURR:LEV 1e-05", ":SYST:RSEN ON"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConn{}
			require.NoError(t, NewK2400(c).ConfigureFourWire(tt.amps))
			assert.Equal(t, tt.want, c.sent)
		})
	}
}

func TestK2400Commands(t *testing.T) {
	c := &fakeConn{replies: map[string]string{
		":READ?":          "+1.000002E+02",
		":SOUR:CURR:LEV?": "-1.000000E-02",
	}}
	k := NewK2400(c)
	require.NoError(t, k.Reset())
	require.NoError(t, k.ReportResistance())
	require.NoError(t, k.Output(true))
	r, err := k.Resistance()
	require.NoError(t, err)
	assert.Equal(t, 100.0002, r)
	i, err := k.Current()
	require.NoError(t, err)
	assert.Equal(t, -0.01, i)
	require.NoError(t, k.ManualOhms())
	require.NoError(t, k.SetCurrent(-0.001))
	require.NoError(t, k.ConfigureCurrentSource())
	require.NoError(t, k.Output(false))
	assert.Equal(t, []string{
		"*rst; status:preset; *cls",
		":FORM:ELEM RES",
		":OUTP ON",
		":READ?",
		":SOUR:CURR:LEV?",
		"RES:MODE MAN",
		":SOUR:CURR:LEV -0.001",
		"SOUR:FUNC CURR",
		"SOUR:CURR:MODE FIXED",
		":OUTP OFF",
	}, c.sent)
}

func TestK2182(t *testing.T) {
	c := &fakeConn{replies: map[string]string{":READ?": "+1.000020000E-01"}}
	k := NewK2182(c)
	require.NoError(t, k.Reset())
	require.NoError(t, k.ConfigureVoltage(2))
	assert.Error(t, k.ConfigureVoltage(3))
	v, err := k.Voltage()
	require.NoError(t, err)
	assert.Equal(t, 0.100002, v)
	assert.Equal(t, []string{
		"*rst; status:preset; *cls",
		":SENS:CHAN 2",
		":SENS:FUNC 'VOLT'",
		":READ?",
	}, c.sent)
}

func TestThermometer(t *testing.T) {
	c := &fakeConn{replies: map[string]string{":READ?": "+2.950000E+02"}}
	k, err := NewThermometer(c).Kelvin()
	require.NoError(t, err)
	assert.Equal(t, 295.0, k)
}

func TestErrorsAreWrapped(t *testing.T) {
	timeout := errors.New("gpib read timeout")
	c := &fakeConn{fail: timeout}
	_, err := NewK2400(c).Resistance()
	assert.ErrorIs(t, err, timeout)
	assert.Contains(t, err.Error(), "read resistance")

	_, err = NewThermometer(c).Kelvin()
	assert.ErrorIs(t, err, timeout)
	assert.ErrorContains(t, NewK2400(c).ConfigureFourWire(0), "four-wire resistance init fail")
}

func TestUnparsableReply(t *testing.T) {
	c := &fakeConn{replies: map[string]string{":READ?": "garbage"}}
	_, err := NewK2182(c).Voltage()
	assert.Error(t, err)
}
