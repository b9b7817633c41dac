package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/fourprobe/lib/datalog"
	"github.com/gotmc/fourprobe/lib/measure"
)

// HighCurrent is the level above which the operator is warned.
const HighCurrent = 0.01

// Prompter asks the operator for the session values not already set.
type Prompter struct {
	r *bufio.Reader
	w io.Writer
}

// NewPrompter reads answers from r and writes prompts to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{r: bufio.NewReader(r), w: w}
}

// Reader returns the buffered input, for reading after the prompts without
// losing what the prompts already buffered.
func (p *Prompter) Reader() io.Reader { return p.r }

func (p *Prompter) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.w, prompt)
	return p.readLine()
}

// Guide prints the operator instructions.
func (p *Prompter) Guide() {
	fmt.Fprintln(p.w, "User Guide:")
	fmt.Fprintln(p.w, "  To stop data collection: type q and press Enter (or Ctrl-C).")
	fmt.Fprintln(p.w, "  To save a plot: type p and press Enter.")
	fmt.Fprintln(p.w)
}

// Fill prompts for every empty field of s, re-asking until the answer
// parses. It fails only when the input ends.
func (p *Prompter) Fill(s *Session) error {
	for s.File == "" {
		name, err := p.ask("Enter datafile name (name.csv): ")
		if err != nil {
			return err
		}
		if name != "" {
			s.File = datalog.CSVName(name)
		}
	}
	for s.Wait <= 0 {
		a, err := p.ask("Set wait time between measurements in seconds: ")
		if err != nil {
			return err
		}
		secs, perr := strconv.ParseFloat(a, 64)
		if perr != nil || secs <= 0 {
			fmt.Fprintf(p.w, "Error: %q is not a positive number of seconds\n", a)
			continue
		}
		s.Wait = time.Duration(secs * float64(time.Second))
	}
	for s.Current == "" {
		if s.Variant != SourceCurrent {
			mode, err := p.ask("Type A for AutoCurrent mode, or M to Manually set Current: ")
			if err != nil {
				return err
			}
			if strings.EqualFold(mode, "a") {
				s.Current = "auto"
				break
			}
			if !strings.EqualFold(mode, "m") {
				continue
			}
		}
		fmt.Fprintf(p.w, "Do not set a current above %g unless you know what you are doing.\n", HighCurrent)
		a, err := p.ask("Set the applied current in Amps (ex: 0.00001): ")
		if err != nil {
			return err
		}
		c, perr := measure.ParseCurrent(a)
		if perr != nil || c.Auto {
			fmt.Fprintf(p.w, "Error: %q is not a valid current\n", a)
			continue
		}
		s.Current = a
	}
	return nil
}
