package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
)

func TestLogSink_transferCompletes(t *testing.T) {
	ic := irq.New()
	s := NewLogSink(ic)

	s.Write(addr.SB, 'A')
	s.Write(addr.SC, 0x81) // start, internal clock

	// immediate mode: completion is instant
	assert.Equal(t, byte(0x01), s.Read(addr.SC), "start bit cleared")
	assert.Equal(t, byte(0xFF), s.Read(addr.SB), "no peer answers 0xFF")
	assert.Equal(t, byte(0x08), ic.Read(addr.IF)&0x08)
}

func TestLogSink_externalClockNeverStarts(t *testing.T) {
	ic := irq.New()
	s := NewLogSink(ic)

	s.Write(addr.SB, 'A')
	s.Write(addr.SC, 0x80) // start, external clock

	assert.Equal(t, byte(0x80), s.Read(addr.SC))
	assert.Equal(t, byte(0x00), ic.Read(addr.IF)&0x08)
}

func TestLogSink_fixedTiming(t *testing.T) {
	ic := irq.New()
	s := NewLogSink(ic, WithFixedTiming())

	s.Write(addr.SB, 'A')
	s.Write(addr.SC, 0x81)

	s.Tick(transferCycles - 1)
	assert.Equal(t, byte(0x81), s.Read(addr.SC), "transfer still running")

	s.Tick(1)
	assert.Equal(t, byte(0x01), s.Read(addr.SC))
	assert.Equal(t, byte(0x08), ic.Read(addr.IF)&0x08)
}
