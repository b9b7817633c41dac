// Copyright (c) 2020–2024 The prologix developers. All rights reserved.
// Copyright (c) 2026 The fourprobe developers. All rights reserved.
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package fourprobe drives a bench of GPIB instruments through a single
// Prologix GPIB-USB controller (or an AR488 clone) for four-probe
// resistance measurements.
package fourprobe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ErrTimeout is returned when the controller does not deliver a complete
// response before the serial port read timeout expires.
var ErrTimeout = errors.New("gpib read timeout")

// Bus models a GPIB controller-in-charge shared by several instruments.
// Only one instrument is addressed at a time; a Device re-addresses the
// controller before each transfer when needed.
type Bus struct {
	rw        io.ReadWriter
	r         *bufio.Reader
	addr      int
	addressed bool
	eotChar   byte
	usbTerm   byte
	readTmo   int
	ar488     bool
	partial   bool // a reply was cut short by a read timeout
	log       zerolog.Logger
}

// BusOption applies an option to the bus.
type BusOption func(*Bus)

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() BusOption { return func(b *Bus) { b.ar488 = true } }

// WithLogger causes controller (`++`) commands and responses to be logged
// at debug level. Instrument traffic is traced per device by the caller.
func WithLogger(l zerolog.Logger) BusOption { return func(b *Bus) { b.log = l } }

// WithReadTimeout sets the controller's GPIB read timeout in milliseconds
// (1-3000).
func WithReadTimeout(ms int) BusOption { return func(b *Bus) { b.readTmo = ms } }

// NewBus configures the Prologix controller reachable through rw. The
// reader side of rw is expected to return (0, nil) when its own read
// timeout expires, as serial ports do; that is reported as ErrTimeout.
func NewBus(rw io.ReadWriter, opts ...BusOption) (*Bus, error) {
	b := Bus{
		rw:      rw,
		eotChar: '\n',
		usbTerm: '\n',
		readTmo: 500,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.readTmo < 1 || b.readTmo > 3000 {
		return nil, fmt.Errorf("invalid read timeout %d ms (must be 1-3000)", b.readTmo)
	}
	b.r = bufio.NewReader(timeoutReader{rw})

	cmds := []string{}
	if !b.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	readTmoCmd := fmt.Sprintf("read_tmo_ms %d", b.readTmo)
	eotCharCmd := fmt.Sprintf("eot_char %d", b.eotChar)
	cmds = append(cmds,
		"mode 1",       // Switch to controller mode.
		"auto 0",       // Turn off read-after-write.
		"eoi 1",        // Enable EOI assertion with last character.
		"eos 0",        // Append CR+LF to instrument commands.
		readTmoCmd,     // Set the GPIB read timeout.
		eotCharCmd,     // Set the EOT char
		"eot_enable 1", // Append character when EOI detected?
	)
	for _, cmd := range cmds {
		if err := b.CommandController(cmd); err != nil {
			return nil, fmt.Errorf("configure controller: %w", err)
		}
	}
	return &b, nil
}

// Device returns a handle for the instrument at the given primary address.
func (b *Bus) Device(addr int) (*Device, error) {
	if !isPrimaryAddressValid(addr) {
		return nil, fmt.Errorf("invalid primary address %d (must by 0-30)", addr)
	}
	return &Device{bus: b, addr: addr}, nil
}

// Version queries the controller's firmware version string.
func (b *Bus) Version() (string, error) {
	return b.QueryController("ver")
}

// Local returns the instrument at addr to front panel control.
func (b *Bus) Local(addr int) error {
	if err := b.address(addr); err != nil {
		return err
	}
	return b.CommandController("loc")
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
func (b *Bus) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), b.usbTerm)
	b.log.Debug().Str("cmd", strings.TrimSpace(cmd)).Msg("controller")
	_, err := b.rw.Write([]byte(cmd))
	return err
}

// QueryController sends a controller command and returns its response.
func (b *Bus) QueryController(cmd string) (string, error) {
	b.discardPartial()
	if err := b.CommandController(cmd); err != nil {
		return "", err
	}
	s, err := b.readResponse()
	b.log.Debug().Str("cmd", cmd).Str("resp", s).Msg("controller reply")
	return s, err
}

func (b *Bus) address(addr int) error {
	if b.addressed && b.addr == addr {
		return nil
	}
	if err := b.CommandController(fmt.Sprintf("addr %d", addr)); err != nil {
		return err
	}
	b.addr, b.addressed = addr, true
	return nil
}

func (b *Bus) write(addr int, s string) error {
	if err := b.address(addr); err != nil {
		return err
	}
	cmd := fmt.Sprintf("%s%c", strings.TrimSpace(s), b.usbTerm)
	_, err := io.WriteString(b.rw, cmd)
	return err
}

func (b *Bus) query(addr int, s string) (string, error) {
	b.discardPartial()
	if err := b.write(addr, s); err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	// Read-after-write is disabled, so tell the controller to read.
	if err := b.CommandController("read eoi"); err != nil {
		return "", fmt.Errorf("error sending `read eoi` command: %w", err)
	}
	return b.readResponse()
}

func (b *Bus) readResponse() (string, error) {
	s, err := b.r.ReadString(b.eotChar)
	if err == io.EOF && len(s) > 0 {
		err = nil
	}
	if errors.Is(err, ErrTimeout) && len(s) > 0 {
		// The rest of this reply may still arrive and must not be taken
		// as the answer to the next query.
		b.partial = true
	}
	return strings.TrimSpace(s), err
}

// discardPartial drops the tail of a reply cut short by a read timeout. If
// the tail does not arrive either, buffered input is thrown away.
func (b *Bus) discardPartial() {
	if !b.partial {
		return
	}
	b.partial = false
	tail, err := b.r.ReadString(b.eotChar)
	b.log.Debug().Str("tail", strings.TrimSpace(tail)).Err(err).Msg("discarded stale reply")
	if err == nil {
		return
	}
	b.r.Reset(timeoutReader{b.rw})
	if f, ok := b.rw.(interface{ ResetInputBuffer() error }); ok {
		if err := f.ResetInputBuffer(); err != nil {
			b.log.Warn().Err(err).Msg("cannot flush controller input")
		}
	}
}

// Device is one instrument on the bus.
type Device struct {
	bus  *Bus
	addr int
}

// Addr returns the device's primary GPIB address.
func (d *Device) Addr() int { return d.addr }

// Command formats according to a format specifier if provided and sends a
// SCPI/ASCII command to the device. All leading and trailing whitespace is
// removed before appending the USB terminator.
func (d *Device) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	return d.bus.write(d.addr, cmd)
}

// Query sends cmd to the device and blocks until the response terminator
// arrives or the read times out. The response is returned without
// surrounding whitespace.
func (d *Device) Query(cmd string) (string, error) {
	return d.bus.query(d.addr, cmd)
}

// Local returns the device to front panel control.
func (d *Device) Local() error { return d.bus.Local(d.addr) }

// timeoutReader turns the (0, nil) a serial port returns on read timeout
// into ErrTimeout so bufio does not spin.
type timeoutReader struct{ r io.Reader }

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	if addr < 0 || addr > 30 {
		return false
	}
	return true
}
