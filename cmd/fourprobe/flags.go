// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/gotmc/fourprobe/lib/config"
	"github.com/gotmc/fourprobe/lib/control"
	"github.com/gotmc/fourprobe/lib/measure"
)

func mustBind(key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// busFlags registers the controller flags on fs.
func busFlags(fs *pflag.FlagSet) {
	fs.String("port", "", "serial port of the controller (found automatically when empty)")
	fs.Int("baud", 115200, "serial baud rate")
	fs.Duration("read-timeout", 3*time.Second, "serial port read timeout")
	fs.Int("gpib-timeout", 500, "controller GPIB read timeout in ms (1-3000)")
	fs.Bool("ar488", false, "the controller is an AR488")
	fs.Bool("simulate", false, "use a simulated bench instead of a serial port")
	fs.Bool("trace", false, "log every bus transfer at debug level")
	fs.Int("addr-therm", 12, "thermometer GPIB address")
	fs.Int("addr-smu", 24, "Keithley 2400 GPIB address")
	fs.Int("addr-nvm", 7, "Keithley 2182 GPIB address")

	for key, name := range map[string]string{
		"bus.port":               "port",
		"bus.baud":               "baud",
		"bus.read_timeout":       "read-timeout",
		"bus.gpib_timeout_ms":    "gpib-timeout",
		"bus.ar488":              "ar488",
		"bus.simulate":           "simulate",
		"bus.trace":              "trace",
		"bus.addr.thermometer":   "addr-therm",
		"bus.addr.sourcemeter":   "addr-smu",
		"bus.addr.nanovoltmeter": "addr-nvm",
	} {
		mustBind(key, fs.Lookup(name))
	}
}

// sessionFlags registers the measurement flags on fs.
func sessionFlags(fs *pflag.FlagSet) {
	fs.StringP("file", "f", "", "data file name (.csv is appended when missing)")
	fs.DurationP("wait", "w", 0, "time between measurement starts, e.g. 30s")
	fs.StringP("current", "c", "", `source current in amps, or "auto" (four-wire only)`)
	fs.String("variant", config.FourWire, "instrument arrangement: four-wire or source-current")
	fs.String("on-failure", control.ZeroFill.String(), "failed measurement handling: zero, skip or abort")
	fs.Duration("settle", measure.DefaultSettle, "delay before each reading")
	fs.Duration("polarity-delay", measure.DefaultPolarityDelay, "delay between current polarities (source-current)")
	fs.Int("channel", 1, "nanovoltmeter input channel (source-current)")

	for key, name := range map[string]string{
		"session.file":           "file",
		"session.wait":           "wait",
		"session.current":        "current",
		"session.variant":        "variant",
		"session.on_failure":     "on-failure",
		"session.settle":         "settle",
		"session.polarity_delay": "polarity-delay",
		"session.channel":        "channel",
	} {
		mustBind(key, fs.Lookup(name))
	}
}
