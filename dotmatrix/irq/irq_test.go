package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
)

func TestController_raiseAndAcknowledge(t *testing.T) {
	c := New()

	c.Raise(addr.TimerInterrupt)
	assert.Equal(t, byte(0xE4), c.Read(addr.IF))

	c.Acknowledge(addr.TimerInterrupt)
	assert.Equal(t, byte(0xE0), c.Read(addr.IF))
}

func TestController_pendingNeedsBothRegisters(t *testing.T) {
	c := New()

	_, ok := c.Pending()
	assert.False(t, ok)

	c.Raise(addr.VBlankInterrupt)
	_, ok = c.Pending()
	assert.False(t, ok, "raised but not enabled")

	c.Write(addr.IE, 0x01)
	kind, ok := c.Pending()
	assert.True(t, ok)
	assert.Equal(t, addr.VBlankInterrupt, kind)
}

func TestController_priorityIsLowestBit(t *testing.T) {
	c := New()
	c.Write(addr.IE, 0x1F)

	c.Raise(addr.JoypadInterrupt)
	c.Raise(addr.TimerInterrupt)

	kind, ok := c.Pending()
	assert.True(t, ok)
	assert.Equal(t, addr.TimerInterrupt, kind)

	c.Acknowledge(addr.TimerInterrupt)
	kind, _ = c.Pending()
	assert.Equal(t, addr.JoypadInterrupt, kind)
}

func TestController_maskedByIE(t *testing.T) {
	c := New()
	c.Write(addr.IE, 0x1F^0x01)

	c.Raise(addr.VBlankInterrupt)
	c.Raise(addr.TimerInterrupt)

	kind, ok := c.Pending()
	assert.True(t, ok)
	assert.Equal(t, addr.TimerInterrupt, kind)
}

func TestController_ifWriteMasked(t *testing.T) {
	c := New()

	c.Write(addr.IF, 0xFF)
	assert.Equal(t, byte(0xFF), c.Read(addr.IF))
	assert.Equal(t, byte(0x1F), c.iflags)
}

func TestInterruptVectors(t *testing.T) {
	assert.Equal(t, uint16(0x40), addr.VBlankInterrupt.Vector())
	assert.Equal(t, uint16(0x48), addr.LCDSTATInterrupt.Vector())
	assert.Equal(t, uint16(0x50), addr.TimerInterrupt.Vector())
	assert.Equal(t, uint16(0x58), addr.SerialInterrupt.Vector())
	assert.Equal(t, uint16(0x60), addr.JoypadInterrupt.Vector())
}
