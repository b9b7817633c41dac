// Package datalog writes measurement samples to an append-only CSV file.
// The file is opened and closed around every row, so a crash loses at most
// the row being written.
package datalog

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/gotmc/fourprobe/lib/measure"
)

// File is an initialised CSV data file.
type File struct {
	path   string
	schema measure.Schema
	rows   int
}

// Create makes a new data file at path and writes the schema header. It
// refuses to touch an existing file: the error wraps fs.ErrExist.
func Create(path string, schema measure.Schema) (df *File, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}
	defer func() { multierr.AppendInto(&err, f.Close()) }()

	w := csv.NewWriter(f)
	if err := w.Write(schema.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &File{path: path, schema: schema}, nil
}

// Path returns the file name.
func (df *File) Path() string { return df.path }

// Schema returns the column layout.
func (df *File) Schema() measure.Schema { return df.schema }

// Rows returns how many rows this File has appended.
func (df *File) Rows() int { return df.rows }

// Append writes one row for s.
func (df *File) Append(s measure.Sample) (err error) {
	f, err := os.OpenFile(df.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer func() { multierr.AppendInto(&err, f.Close()) }()

	vals := df.schema.Values(s)
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = FormatFloat(v)
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	df.rows++
	return nil
}

// WithExt returns name with its extension replaced by ext (".png").
func WithExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// CSVName appends ".csv" to names that lack it.
func CSVName(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return name
	}
	return name + ".csv"
}

// FormatFloat renders v the way the data files have always been written:
// the shortest representation that round-trips, positional between 1e-4
// and 1e16 with a trailing ".0" on integral values, exponent notation with
// at least two exponent digits otherwise ("1e-05").
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if v == 0 || (abs >= 1e-4 && abs < 1e16) {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
