// Package connutil opens the serial port (or the simulated bench), brings
// up the GPIB controller and hands out the instrument connections.
package connutil

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.uber.org/multierr"

	"github.com/gotmc/fourprobe"
	"github.com/gotmc/fourprobe/lib/cmdlog"
	"github.com/gotmc/fourprobe/lib/config"
	"github.com/gotmc/fourprobe/lib/find"
	"github.com/gotmc/fourprobe/lib/instrument"
	"github.com/gotmc/fourprobe/lib/sim"
)

// Conns are the instrument connections of the bench.
type Conns struct {
	Bus           *fourprobe.Bus
	Thermometer   instrument.Conn
	Sourcemeter   instrument.Conn
	Nanovoltmeter instrument.Conn
}

// Port locates the controller's serial port when none is configured.
func Port(cfg config.Bus) (string, error) {
	if cfg.Port != "" {
		return cfg.Port, nil
	}
	filter := find.PrologixFilter
	if cfg.AR488 {
		filter = find.AnyFilter(find.ArduinoFilter, find.PrologixFilter)
	}
	tty, err := find.Find(filter)
	if err != nil {
		return "", fmt.Errorf("locating serial port failed (set --port): %w", err)
	}
	return tty, nil
}

// Open opens the configured port, or a simulated bench when cfg.Simulate
// is set.
func Open(cfg config.Bus, log zerolog.Logger) (io.ReadWriteCloser, error) {
	if cfg.Simulate {
		log.Info().Msg("using simulated bench")
		return sim.NewFourProbeBench(sim.Addresses{
			Thermometer:   cfg.Addr.Thermometer,
			Sourcemeter:   cfg.Addr.Sourcemeter,
			Nanovoltmeter: cfg.Addr.Nanovoltmeter,
		}, sim.NewSample()), nil
	}
	name, err := Port(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("port", name).Msg("opening serial port")
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return nil, multierr.Append(fmt.Errorf("set read timeout: %w", err), port.Close())
	}
	// Discard anything left over from a previous session.
	if err := port.ResetInputBuffer(); err != nil {
		log.Warn().Err(err).Msg("cannot flush serial port")
	}
	return port, nil
}

// Setup is to be called once the configuration is complete. It returns
// the instrument connections and a cleanup function that returns the
// instruments to front panel control and closes the port.
func Setup(cfg config.Bus, log zerolog.Logger) (*Conns, func() error, error) {
	nocleanup := func() error { return nil }
	if err := cfg.Validate(); err != nil {
		return nil, nocleanup, err
	}
	port, err := Open(cfg, log)
	if err != nil {
		return nil, nocleanup, err
	}

	opts := []fourprobe.BusOption{
		fourprobe.WithReadTimeout(cfg.GPIBTimeout),
	}
	if cfg.AR488 {
		opts = append(opts, fourprobe.WithAR488())
	}
	if cfg.Trace {
		opts = append(opts, fourprobe.WithLogger(log))
	}
	bus, err := fourprobe.NewBus(port, opts...)
	if err != nil {
		return nil, nocleanup, multierr.Append(err, port.Close())
	}
	if ver, err := bus.Version(); err != nil {
		log.Warn().Err(err).Msg("controller version query failed")
	} else {
		log.Info().Str("version", ver).Msg("gpib controller")
	}

	addrs := []int{cfg.Addr.Thermometer, cfg.Addr.Sourcemeter, cfg.Addr.Nanovoltmeter}
	names := []string{"therm", "k2400", "k2182"}
	conns := make([]instrument.Conn, len(addrs))
	for i, a := range addrs {
		dev, err := bus.Device(a)
		if err != nil {
			return nil, nocleanup, multierr.Append(err, port.Close())
		}
		conns[i] = dev
		if cfg.Trace {
			conns[i] = cmdlog.Wrap(dev, names[i], log)
		}
		log.Debug().Str("instrument", names[i]).Int("addr", a).Msg("gpib address")
	}

	cleanup := func() error {
		var err error
		for _, a := range addrs {
			// Return local control to the front panel.
			multierr.AppendInto(&err, bus.Local(a))
		}
		multierr.AppendInto(&err, port.Close())
		return err
	}
	return &Conns{
		Bus:           bus,
		Thermometer:   conns[0],
		Sourcemeter:   conns[1],
		Nanovoltmeter: conns[2],
	}, cleanup, nil
}
