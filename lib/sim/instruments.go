package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Sample is the physical model shared by the simulated instruments: a
// resistor with a linear temperature coefficient and a thermoelectric
// offset voltage in series with the voltage leads.
type Sample struct {
	mu sync.Mutex

	Temperature float64 // K, returned by the next thermometer read
	Ramp        float64 // K added after each thermometer read
	R0          float64 // ohms at T0
	T0          float64 // K
	Alpha       float64 // 1/K
	Offset      float64 // V
}

// NewSample returns a 100 Ω sample at room temperature cooling slowly.
func NewSample() *Sample {
	return &Sample{
		Temperature: 295,
		Ramp:        -0.5,
		R0:          100,
		T0:          295,
		Alpha:       3.9e-3,
		Offset:      2e-6,
	}
}

// Resistance returns the sample's true resistance at the current
// temperature.
func (s *Sample) Resistance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resistance()
}

func (s *Sample) resistance() float64 {
	return s.R0 * (1 + s.Alpha*(s.Temperature-s.T0))
}

// voltage across the sense leads for a given source current
func (s *Sample) voltage(i float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return i*s.resistance() + s.Offset
}

func (s *Sample) read() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.Temperature
	s.Temperature += s.Ramp
	return t
}

// normalize upper-cases a message and collapses its whitespace.
func normalize(msg string) string {
	return strings.Join(strings.Fields(strings.ToUpper(msg)), " ")
}

func sci(v float64) string { return fmt.Sprintf("%+.6E", v) }

// Sourcemeter emulates the subset of a Keithley 2400 used for four-wire
// resistance and fixed current sourcing.
type Sourcemeter struct {
	sample *Sample

	resFunc bool
	resAuto bool
	level   float64
	output  bool
	rsense  bool
}

// NewSourcemeter returns a sourcemeter wired to sample.
func NewSourcemeter(sample *Sample) *Sourcemeter {
	return &Sourcemeter{sample: sample}
}

// Output reports whether the source output is enabled.
func (k *Sourcemeter) Output() bool { return k.output }

// Level returns the programmed source current.
func (k *Sourcemeter) Level() float64 { return k.level }

// current returns the current flowing through the sample.
func (k *Sourcemeter) current() float64 {
	if k.resFunc && k.resAuto {
		return autoCurrent(k.sample.Resistance())
	}
	return k.level
}

// autoCurrent mimics the 2400's auto ohms source selection: one test
// current per decade range.
func autoCurrent(r float64) float64 {
	switch {
	case r < 20:
		return 100e-3
	case r < 200:
		return 10e-3
	case r < 2e3:
		return 1e-3
	case r < 20e3:
		return 100e-6
	default:
		return 10e-6
	}
}

func (k *Sourcemeter) Handle(msg string) (string, bool) {
	m := normalize(msg)
	m = strings.TrimPrefix(m, ":")
	switch {
	case m == "*RST":
		*k = Sourcemeter{sample: k.sample}
	case m == "STATUS:PRESET", m == "*CLS":
	case m == `FUNC "RES"`:
		k.resFunc = true
	case m == "SOUR:FUNC CURR":
		k.resFunc = false
	case m == "RES:MODE AUTO":
		k.resAuto = true
	case m == "RES:MODE MAN":
		if k.resAuto {
			k.level = k.current()
		}
		k.resAuto = false
	case m == "SYST:RSEN ON":
		k.rsense = true
	case m == "SYST:RSEN OFF":
		k.rsense = false
	case m == "OUTP ON":
		k.output = true
	case m == "OUTP OFF":
		k.output = false
	case m == "SOUR:CURR:LEV?":
		return sci(k.current()), true
	case strings.HasPrefix(m, "SOUR:CURR:LEV "):
		v, err := strconv.ParseFloat(strings.TrimPrefix(m, "SOUR:CURR:LEV "), 64)
		if err == nil {
			k.level = v
		}
	case m == "READ?":
		i := k.current()
		if !k.resFunc || i == 0 {
			return sci(math.NaN()), true
		}
		return sci(k.sample.voltage(i) / i), true
	}
	return "", false
}

// Nanovoltmeter emulates a Keithley 2182 reading the sample's sense
// voltage while the sourcemeter drives it.
type Nanovoltmeter struct {
	sample *Sample
	source *Sourcemeter
}

// NewNanovoltmeter returns a nanovoltmeter across sample, driven by source.
func NewNanovoltmeter(sample *Sample, source *Sourcemeter) *Nanovoltmeter {
	return &Nanovoltmeter{sample: sample, source: source}
}

func (n *Nanovoltmeter) Handle(msg string) (string, bool) {
	m := strings.TrimPrefix(normalize(msg), ":")
	if m != "READ?" {
		return "", false
	}
	i := 0.0
	if n.source.Output() {
		i = n.source.Level()
	}
	return fmt.Sprintf("%+.9E", n.sample.voltage(i)), true
}

// Thermometer reports the sample temperature in kelvin.
type Thermometer struct{ sample *Sample }

// NewThermometer returns a thermometer attached to sample.
func NewThermometer(sample *Sample) *Thermometer { return &Thermometer{sample: sample} }

func (t *Thermometer) Handle(msg string) (string, bool) {
	if strings.TrimPrefix(normalize(msg), ":") != "READ?" {
		return "", false
	}
	return sci(t.sample.read()), true
}

// Addresses are the GPIB primary addresses of the simulated instruments.
type Addresses struct {
	Thermometer   int
	Sourcemeter   int
	Nanovoltmeter int
}

// NewFourProbeBench attaches a thermometer, sourcemeter and nanovoltmeter
// sharing sample at the given addresses.
func NewFourProbeBench(a Addresses, sample *Sample) *Bench {
	b := NewBench()
	smu := NewSourcemeter(sample)
	b.Attach(a.Thermometer, NewThermometer(sample))
	b.Attach(a.Sourcemeter, smu)
	b.Attach(a.Nanovoltmeter, NewNanovoltmeter(sample, smu))
	return b
}
