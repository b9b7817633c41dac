// Package sim emulates a Prologix GPIB-USB controller and the instruments
// of a four-probe bench, so the full stack can run without hardware.
package sim

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Instrument handles the messages addressed to one GPIB device.
type Instrument interface {
	// Handle processes a single SCPI message. Queries return their reply
	// and true.
	Handle(msg string) (reply string, isQuery bool)
}

// Bench is an io.ReadWriteCloser that behaves like a Prologix controller in
// controller mode with read-after-write disabled. Reads with nothing
// pending return (0, nil), the way a serial port reports a read timeout.
type Bench struct {
	mu      sync.Mutex
	line    bytes.Buffer
	out     bytes.Buffer
	addr    int
	insts   map[int]Instrument
	pending map[int]string
	drop    map[int]int
	closed  bool

	// Log records every line received, controller commands included.
	Log []string
}

// NewBench returns a bench with no instruments attached.
func NewBench() *Bench {
	return &Bench{
		insts:   make(map[int]Instrument),
		pending: make(map[int]string),
		drop:    make(map[int]int),
	}
}

// Attach places an instrument at a primary address.
func (b *Bench) Attach(addr int, inst Instrument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insts[addr] = inst
}

// DropReplies makes the instrument at addr swallow its next n query
// replies, so the controller times out.
func (b *Bench) DropReplies(addr, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop[addr] += n
}

// Messages returns the instrument messages (not controller commands) the
// bench has received, in order.
func (b *Bench) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var msgs []string
	for _, l := range b.Log {
		if !strings.HasPrefix(l, "++") {
			msgs = append(msgs, l)
		}
	}
	return msgs
}

func (b *Bench) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.line.Write(p)
	for {
		l, err := b.line.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			b.line.Reset()
			b.line.WriteString(l)
			break
		}
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		b.Log = append(b.Log, l)
		if strings.HasPrefix(l, "++") {
			b.controller(strings.TrimPrefix(l, "++"))
		} else {
			b.instrument(l)
		}
	}
	return len(p), nil
}

func (b *Bench) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if b.out.Len() == 0 {
		return 0, nil
	}
	return b.out.Read(p)
}

// Close makes subsequent reads and writes fail.
func (b *Bench) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Bench) controller(cmd string) {
	f := strings.Fields(cmd)
	if len(f) == 0 {
		return
	}
	switch f[0] {
	case "addr":
		if len(f) > 1 {
			if a, err := strconv.Atoi(f[1]); err == nil {
				b.addr = a
			}
		}
	case "read":
		if r, ok := b.pending[b.addr]; ok {
			b.out.WriteString(r + "\n")
			delete(b.pending, b.addr)
		}
	case "ver":
		b.out.WriteString("Prologix GPIB-USB Controller version 6.107 (simulated)\n")
	}
}

func (b *Bench) instrument(l string) {
	inst, ok := b.insts[b.addr]
	if !ok {
		return
	}
	for _, msg := range strings.Split(l, ";") {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			continue
		}
		reply, isQuery := inst.Handle(msg)
		if !isQuery {
			continue
		}
		if b.drop[b.addr] > 0 {
			b.drop[b.addr]--
			continue
		}
		b.pending[b.addr] = reply
	}
}
