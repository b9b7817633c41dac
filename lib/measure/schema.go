package measure

import "time"

// Reading is one current-reversal pair: the forward (positive current) and
// backward (negative current) halves. Units are K, V, A and Ω.
type Reading struct {
	TempForward  float64
	TempBackward float64
	VForward     float64
	IForward     float64
	RForward     float64
	VBackward    float64
	IBackward    float64
	RBackward    float64
}

// Average is the arithmetic mean of the forward and backward resistance.
// Averaging the two polarities cancels thermoelectric offset voltages.
func (r Reading) Average() float64 {
	return (r.RForward + r.RBackward) / 2
}

// Sample is a Reading stamped with the time it was taken.
type Sample struct {
	Reading
	Elapsed time.Duration // since the run started
	Time    time.Time
}

// Column is one CSV column.
type Column struct {
	Name  string
	Value func(Sample) float64
}

// Schema is the ordered column layout of a run's CSV file. Header and rows
// are both derived from Columns.
type Schema struct {
	Name    string
	Columns []Column

	// Temperature and Resistance name the columns the plotter uses.
	Temperature string
	Resistance  string
}

// Header returns the column names in order.
func (s Schema) Header() []string {
	h := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		h[i] = c.Name
	}
	return h
}

// Values returns the row for smp in column order.
func (s Schema) Values(smp Sample) []float64 {
	v := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		v[i] = c.Value(smp)
	}
	return v
}

func elapsedSeconds(s Sample) float64 { return s.Elapsed.Seconds() }

func epochSeconds(s Sample) float64 {
	return float64(s.Time.UnixNano()) / float64(time.Second)
}

// timeColumns end every schema.
var timeColumns = []Column{
	{"Time_Since_Start(s)", elapsedSeconds},
	{"True_Time(s)", epochSeconds},
}

// FourWireSchema is the 8 column layout written by the four-wire variant.
var FourWireSchema = Schema{
	Name: "four-wire",
	Columns: append([]Column{
		{"Temperature(K)", func(s Sample) float64 { return s.TempForward }},
		{"Average Resistance(Ohms)", func(s Sample) float64 { return s.Average() }},
		{"R_ForwardI(Ohms)", func(s Sample) float64 { return s.RForward }},
		{"ForwardI(Amps)", func(s Sample) float64 { return s.IForward }},
		{"R_Backward(Ohms)", func(s Sample) float64 { return s.RBackward }},
		{"BackwardI(Amps)", func(s Sample) float64 { return s.IBackward }},
	}, timeColumns...),
	Temperature: "Temperature(K)",
	Resistance:  "Average Resistance(Ohms)",
}

// SourceCurrentSchema is the 11 column layout written by the
// source-current variant.
var SourceCurrentSchema = Schema{
	Name: "source-current",
	Columns: append([]Column{
		{"Temperature_Forward(K)", func(s Sample) float64 { return s.TempForward }},
		{"Average_Resistance(Ohms)", func(s Sample) float64 { return s.Average() }},
		{"V_Forward(V)", func(s Sample) float64 { return s.VForward }},
		{"ForwardI(Amps)", func(s Sample) float64 { return s.IForward }},
		{"R_ForwardI(Ohms)", func(s Sample) float64 { return s.RForward }},
		{"Temperature_Backward(K)", func(s Sample) float64 { return s.TempBackward }},
		{"V_Backward(V)", func(s Sample) float64 { return s.VBackward }},
		{"BackwardI(Amps)", func(s Sample) float64 { return s.IBackward }},
		{"R_Backward(Ohms)", func(s Sample) float64 { return s.RBackward }},
	}, timeColumns...),
	Temperature: "Temperature_Forward(K)",
	Resistance:  "Average_Resistance(Ohms)",
}

// Schemas lists the known layouts.
var Schemas = []Schema{FourWireSchema, SourceCurrentSchema}
