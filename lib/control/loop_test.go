package control

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotmc/fourprobe/lib/measure"
)

// fakeStrategy returns a fixed reading, failing on the cycles listed in
// fail. When advance is set it moves the mock clock by that much per
// measurement.
type fakeStrategy struct {
	clk     clock.Clock
	advance time.Duration
	fail    map[int]error
	after   map[int]func()
	cycle   int
	starts  []time.Time
}

func (f *fakeStrategy) Name() string           { return "fake" }
func (f *fakeStrategy) Schema() measure.Schema { return measure.FourWireSchema }
func (f *fakeStrategy) Setup() error           { return nil }

func (f *fakeStrategy) Measure(ctx context.Context) (measure.Reading, error) {
	f.cycle++
	f.starts = append(f.starts, f.clk.Now())
	if m, ok := f.clk.(*clock.Mock); ok && f.advance > 0 {
		m.Add(f.advance)
	} else if f.advance > 0 {
		time.Sleep(f.advance)
	}
	if fn := f.after[f.cycle]; fn != nil {
		fn()
	}
	if err := f.fail[f.cycle]; err != nil {
		return measure.Reading{RForward: 1}, err
	}
	return measure.Reading{TempForward: 290, RForward: 9, RBackward: 11}, nil
}

type memLog struct {
	rows []measure.Sample
	err  error
}

func (m *memLog) Append(s measure.Sample) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, s)
	return nil
}

func newLoop(s measure.Strategy, clk clock.Clock, data Appender) *Loop {
	return &Loop{
		Strategy: s,
		Data:     data,
		Wait:     time.Minute,
		Clock:    clk,
		Log:      zerolog.Nop(),
	}
}

func TestLoopStopsOnSignal(t *testing.T) {
	mock := clock.NewMock()
	data := &memLog{}
	l := newLoop(&fakeStrategy{clk: mock}, mock, data)

	signals := make(chan Signal, 1)
	signals <- Stop
	sum, err := l.Run(context.Background(), signals)
	require.NoError(t, err)
	assert.Equal(t, Stopped, l.State())
	assert.Equal(t, 1, sum.Cycles)
	require.Len(t, data.rows, 1)
	assert.Equal(t, 10.0, data.rows[0].Average())
}

func TestLoopZeroFill(t *testing.T) {
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeStrategy{
		clk:     mock,
		advance: time.Minute,
		fail:    map[int]error{2: errors.New("timeout")},
		after:   map[int]func(){3: cancel},
	}
	data := &memLog{}
	l := newLoop(s, mock, data)

	sum, err := l.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Summary{Cycles: 3, Rows: 3, ZeroFilled: 1}, sum)
	require.Len(t, data.rows, 3)
	assert.Equal(t, measure.Reading{}, data.rows[1].Reading)
	assert.Equal(t, 2*time.Minute, data.rows[1].Elapsed)
	assert.True(t, data.rows[2].Time.After(data.rows[1].Time))
	assert.Equal(t, 10.0, data.rows[2].Average())
}

func TestLoopSkip(t *testing.T) {
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeStrategy{
		clk:     mock,
		advance: time.Minute,
		fail:    map[int]error{1: errors.New("bad reply")},
		after:   map[int]func(){2: cancel},
	}
	data := &memLog{}
	l := newLoop(s, mock, data)
	l.Policy = Skip

	sum, err := l.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Skipped)
	assert.Len(t, data.rows, 1)
}

func TestLoopAbort(t *testing.T) {
	mock := clock.NewMock()
	bad := errors.New("bad reply")
	s := &fakeStrategy{clk: mock, advance: time.Minute, fail: map[int]error{2: bad}}
	data := &memLog{}
	l := newLoop(s, mock, data)
	l.Policy = Abort

	sum, err := l.Run(context.Background(), nil)
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 2, sum.Cycles)
	assert.Len(t, data.rows, 1)
	assert.Equal(t, Stopped, l.State())
}

func TestLoopFatalIgnoresPolicy(t *testing.T) {
	mock := clock.NewMock()
	gone := errors.New("thermometer gone")
	s := &fakeStrategy{clk: mock, advance: time.Minute, fail: map[int]error{1: measure.Fatal(gone)}}
	data := &memLog{}
	l := newLoop(s, mock, data)

	sum, err := l.Run(context.Background(), nil)
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, Summary{Cycles: 1}, sum)
	assert.Empty(t, data.rows)
}

func TestLoopAppendErrorIsFatal(t *testing.T) {
	mock := clock.NewMock()
	full := errors.New("disk full")
	l := newLoop(&fakeStrategy{clk: mock}, mock, &memLog{err: full})
	_, err := l.Run(context.Background(), nil)
	assert.ErrorIs(t, err, full)
}

func TestLoopPlot(t *testing.T) {
	mock := clock.NewMock()
	l := newLoop(&fakeStrategy{clk: mock}, mock, &memLog{})
	calls := 0
	l.Plot = func() error {
		calls++
		if calls == 2 {
			return errors.New("no rows")
		}
		return nil
	}

	signals := make(chan Signal, 3)
	signals <- Plot
	signals <- Plot
	signals <- Stop
	sum, err := l.Run(context.Background(), signals)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sum.Plots)
	assert.Equal(t, 1, sum.PlotErrors)
	assert.Equal(t, 1, sum.Cycles, "plots do not start a cycle")
}

func TestLoopClosedSignals(t *testing.T) {
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeStrategy{clk: mock, advance: time.Minute, after: map[int]func(){3: cancel}}
	l := newLoop(s, mock, &memLog{})

	signals := make(chan Signal)
	close(signals)
	sum, err := l.Run(ctx, signals)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sum.Cycles)
}

func TestLoopCycleSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the wall clock")
	}
	const (
		wait  = 50 * time.Millisecond
		work  = 10 * time.Millisecond
		slack = 40 * time.Millisecond
	)
	clk := clock.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeStrategy{clk: clk, advance: work, after: map[int]func(){4: cancel}}
	l := newLoop(s, clk, &memLog{})
	l.Wait = wait

	_, err := l.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, s.starts, 4)
	for i := 1; i < len(s.starts); i++ {
		d := s.starts[i].Sub(s.starts[i-1])
		assert.GreaterOrEqual(t, d, wait-time.Millisecond)
		assert.Less(t, d, wait+work+slack)
	}
}

func TestLoopSlowMeasurementStartsNextCycleAtOnce(t *testing.T) {
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeStrategy{clk: mock, advance: 2 * time.Minute, after: map[int]func(){2: cancel}}
	l := newLoop(s, mock, &memLog{})

	_, err := l.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, s.starts, 2)
	assert.Equal(t, 2*time.Minute, s.starts[1].Sub(s.starts[0]))
}

func TestParseFailurePolicy(t *testing.T) {
	for _, p := range []FailurePolicy{ZeroFill, Skip, Abort} {
		got, err := ParseFailurePolicy(strings.ToUpper(p.String()))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParseFailurePolicy("retry")
	assert.Error(t, err)
}
