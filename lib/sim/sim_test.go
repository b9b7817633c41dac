package sim

import (
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBench() (*Bench, *Sample) {
	s := NewSample()
	return NewFourProbeBench(Addresses{Thermometer: 12, Sourcemeter: 24, Nanovoltmeter: 7}, s), s
}

// exchange writes lines and returns whatever the bench has queued.
func exchange(t *testing.T, b *Bench, lines ...string) string {
	t.Helper()
	for _, l := range lines {
		_, err := b.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	out, err := io.ReadAll(readerUntilEmpty{b})
	require.NoError(t, err)
	return string(out)
}

type readerUntilEmpty struct{ b *Bench }

func (r readerUntilEmpty) Read(p []byte) (int, error) {
	n, err := r.b.Read(p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func parse(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	require.NoError(t, err, s)
	return v
}

func TestThermometerRamps(t *testing.T) {
	b, _ := newTestBench()
	assert.Equal(t, 295.0, parse(t, exchange(t, b, "++addr 12", ":READ?", "++read eoi")))
	assert.Equal(t, 294.5, parse(t, exchange(t, b, ":READ?", "++read eoi")))
}

func TestReadWithoutQuery(t *testing.T) {
	b, _ := newTestBench()
	assert.Empty(t, exchange(t, b, "++addr 24", "++read eoi"))
	n, err := b.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestSourcemeterAutoOhms(t *testing.T) {
	b, s := newTestBench()
	exchange(t, b, "++addr 24", "*rst; status:preset; *cls", `Func "RES"`, "RES:MODE MAN",
		"RES:MODE AUTO", ":SYST:RSEN ON", ":OUTP ON")
	r := parse(t, exchange(t, b, ":READ?", "++read eoi"))
	assert.InDelta(t, s.R0+s.Offset/10e-3, r, 1e-4)
	assert.Equal(t, 10e-3, parse(t, exchange(t, b, ":SOUR:CURR:LEV?", "++read eoi")))

	// switching to manual keeps the level picked by auto ohms
	exchange(t, b, "RES:MODE MAN", ":SOUR:CURR:LEV -0.01")
	assert.Equal(t, -10e-3, parse(t, exchange(t, b, ":SOUR:CURR:LEV?", "++read eoi")))
	r = parse(t, exchange(t, b, ":READ?", "++read eoi"))
	assert.InDelta(t, s.R0-s.Offset/10e-3, r, 1e-4)
}

func TestNanovoltmeterFollowsSource(t *testing.T) {
	b, s := newTestBench()
	exchange(t, b, "++addr 24", "SOUR:FUNC CURR", ":SOUR:CURR:LEV 0.001")
	v := parse(t, exchange(t, b, "++addr 7", ":READ?", "++read eoi"))
	assert.InDelta(t, s.Offset, v, 1e-12, "output off")

	exchange(t, b, "++addr 24", ":OUTP ON")
	v = parse(t, exchange(t, b, "++addr 7", ":READ?", "++read eoi"))
	assert.InDelta(t, 0.001*s.R0+s.Offset, v, 1e-9)
}

func TestAutoCurrentDecades(t *testing.T) {
	for r, want := range map[float64]float64{
		1: 100e-3, 100: 10e-3, 1e3: 1e-3, 1e4: 100e-6, 1e6: 10e-6,
	} {
		assert.Equal(t, want, autoCurrent(r), r)
	}
}

func TestDropRepliesAndMessages(t *testing.T) {
	b, _ := newTestBench()
	b.DropReplies(12, 1)
	assert.Empty(t, exchange(t, b, "++addr 12", ":READ?", "++read eoi"))
	assert.NotEmpty(t, exchange(t, b, ":READ?", "++read eoi"))
	assert.Equal(t, []string{":READ?", ":READ?"}, b.Messages())
}

func TestClose(t *testing.T) {
	b, _ := newTestBench()
	require.NoError(t, b.Close())
	_, err := b.Write([]byte("++ver\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	_, err = b.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
