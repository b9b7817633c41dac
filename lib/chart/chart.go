// Package chart renders average resistance versus temperature from a
// data file.
package chart

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"os"
	"slices"
	"strconv"

	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/gotmc/fourprobe/lib/datalog"
	"github.com/gotmc/fourprobe/lib/measure"
)

// ErrNoData is returned for a data file with a header but no rows.
var ErrNoData = errors.New("no data rows")

// Options control the rendered image.
type Options struct {
	X, Y          string // column names
	Title         string
	XLabel        string
	YLabel        string
	Width, Height vg.Length
	DPI           int
}

// DefaultOptions plots the schema's temperature and resistance columns.
func DefaultOptions(s measure.Schema) Options {
	return Options{
		X:      s.Temperature,
		Y:      s.Resistance,
		Title:  "Sample Avg Resistance vs. Temp",
		XLabel: "Temperature (K)",
		YLabel: "Average Resistance (Ohm)",
		Width:  6.4 * vg.Inch,
		Height: 4.8 * vg.Inch,
		DPI:    300,
	}
}

// Detect returns the known schema whose header matches header exactly.
func Detect(header []string) (measure.Schema, bool) {
	for _, s := range measure.Schemas {
		if slices.Equal(s.Header(), header) {
			return s, true
		}
	}
	return measure.Schema{}, false
}

// Header returns the first record of a data file.
func Header(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return h, nil
}

// ReadXY reads the named columns of a data file.
func ReadXY(path, x, y string) (plotter.XYs, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("read %s: empty file", path)
	}
	xi := slices.Index(recs[0], x)
	if xi < 0 {
		return nil, fmt.Errorf("%s: no column %q", path, x)
	}
	yi := slices.Index(recs[0], y)
	if yi < 0 {
		return nil, fmt.Errorf("%s: no column %q", path, y)
	}
	if len(recs) == 1 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoData)
	}
	xys := make(plotter.XYs, 0, len(recs)-1)
	for n, rec := range recs[1:] {
		xv, err := strconv.ParseFloat(rec[xi], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, n+1, err)
		}
		yv, err := strconv.ParseFloat(rec[yi], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, n+1, err)
		}
		xys = append(xys, plotter.XY{X: xv, Y: yv})
	}
	return xys, nil
}

// Plot renders the data file at path and saves it next to it as a PNG with
// the same base name. It returns the image path.
func Plot(path string, opts Options) (string, error) {
	xys, err := ReadXY(path, opts.X, opts.Y)
	if err != nil {
		return "", err
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel

	line, err := plotter.NewLine(xys)
	if err != nil {
		return "", err
	}
	line.LineStyle.Width = vg.Points(1)
	line.LineStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)

	image := datalog.WithExt(path, ".png")
	if err := save(p, opts, image); err != nil {
		return "", err
	}
	return image, nil
}

func save(p *plot.Plot, opts Options, name string) (err error) {
	c := vgimg.NewWith(vgimg.UseWH(opts.Width, opts.Height), vgimg.UseDPI(opts.DPI))
	p.Draw(draw.New(c))

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() { multierr.AppendInto(&err, f.Close()) }()
	_, err = vgimg.PngCanvas{Canvas: c}.WriteTo(f)
	return err
}
