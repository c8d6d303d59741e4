// Package serial provides serial-port devices for the link cable
// registers SB/SC.
package serial

import (
	"log/slog"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/bit"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
)

// transferCycles is the fixed-timing cost of shifting one byte out
// (~4096 CPU cycles at the DMG bit clock).
const transferCycles = 4096

// LogSink is a dummy serial peer that logs outgoing bytes as text.
// Handy for test roms that report results over the link port.
type LogSink struct {
	irq    *irq.Controller
	logger *slog.Logger

	sb, sc         byte
	transferActive bool
	countdown      int

	// settings
	immediate bool
	defaultRX byte // value left in SB when no peer answers

	// line buffer for readable output
	line []byte
}

type LogSinkOption func(*LogSink)

// WithFixedTiming makes transfers complete after the hardware byte
// time instead of immediately.
func WithFixedTiming() LogSinkOption {
	return func(s *LogSink) { s.immediate = false }
}

// NewLogSink creates a logging serial device that raises the serial
// interrupt on transfer completion.
func NewLogSink(ic *irq.Controller, opts ...LogSinkOption) *LogSink {
	s := &LogSink{
		irq:       ic,
		logger:    slog.Default(),
		immediate: true,
		defaultRX: 0xFF,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

func (s *LogSink) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.sb = value
	case addr.SC:
		s.sc = value
		s.maybeStartTransfer()
	default:
		panic("serial.LogSink: invalid write address")
	}
}

func (s *LogSink) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return s.sb
	case addr.SC:
		return s.sc
	default:
		panic("serial.LogSink: invalid read address")
	}
}

func (s *LogSink) Tick(cycles int) {
	if s.immediate || !s.transferActive {
		return
	}
	s.countdown -= cycles
	if s.countdown <= 0 {
		s.completeTransfer()
		s.countdown = 0
	}
}

func (s *LogSink) Reset() {
	s.sb = 0x00
	s.sc = 0x00
	s.transferActive = false
	s.countdown = 0
	s.line = s.line[:0]
}

func (s *LogSink) maybeStartTransfer() {
	if s.transferActive {
		return
	}
	// a transfer starts when both start (bit 7) and internal clock
	// (bit 0) are set; with an external clock there is no peer to
	// drive the shift, so nothing happens.
	if !bit.IsSet(7, s.sc) || !bit.IsSet(0, s.sc) {
		return
	}

	// log the outgoing byte as text; buffer until newline for readability
	b := s.sb
	if b == 0 || b == '\n' || b == '\r' {
		if len(s.line) > 0 {
			s.logger.Info("serial", "line", string(s.line))
			s.line = s.line[:0]
		}
	} else {
		s.line = append(s.line, b)
	}

	if s.immediate {
		s.completeTransfer()
		return
	}

	s.transferActive = true
	s.countdown = transferCycles
}

func (s *LogSink) completeTransfer() {
	s.sb = s.defaultRX
	// clearing the start bit signals completion
	s.sc = bit.Clear(7, s.sc)
	s.transferActive = false
	s.irq.Raise(addr.SerialInterrupt)
}
