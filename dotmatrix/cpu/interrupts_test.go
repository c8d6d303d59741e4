package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
)

func TestInterrupt_dispatch(t *testing.T) {
	cpu, bus := newTestCPU()

	cpu.interruptsEnabled = true
	cpu.sp = 0x1000
	bus.mem[addr.IE] = 0x1F
	bus.mem[addr.IF] = 0x01 // vblank

	cycles := cpu.Step(1)

	assert.Equal(t, uint16(0x0040), cpu.pc)
	assert.Equal(t, uint8(0x00), bus.mem[addr.IF])
	assert.False(t, cpu.interruptsEnabled)
	assert.Equal(t, 20, cycles)

	// PC 0x0100 pushed high byte first
	assert.Equal(t, uint16(0x0FFE), cpu.sp)
	assert.Equal(t, uint8(0x01), bus.mem[0x0FFF])
	assert.Equal(t, uint8(0x00), bus.mem[0x0FFE])
}

func TestInterrupt_priority(t *testing.T) {
	cpu, bus := newTestCPU()

	cpu.interruptsEnabled = true
	cpu.sp = 0x1000
	bus.mem[addr.IE] = 0x1F ^ 0x01 // vblank masked
	bus.mem[addr.IF] = 0x05        // timer | vblank

	cpu.Step(1)

	// timer served, vblank left pending
	assert.Equal(t, uint16(0x0050), cpu.pc)
	assert.Equal(t, uint8(0x01), bus.mem[addr.IF])
}

func TestInterrupt_vectors(t *testing.T) {
	vectors := []struct {
		bit    uint8
		target uint16
	}{
		{bit: 0, target: 0x0040},
		{bit: 1, target: 0x0048},
		{bit: 2, target: 0x0050},
		{bit: 3, target: 0x0058},
		{bit: 4, target: 0x0060},
	}
	for _, v := range vectors {
		cpu, bus := newTestCPU()
		cpu.interruptsEnabled = true
		cpu.sp = 0x1000
		bus.mem[addr.IE] = 1 << v.bit
		bus.mem[addr.IF] = 1 << v.bit

		cpu.Step(1)

		assert.Equal(t, v.target, cpu.pc)
	}
}

func TestInterrupt_masterDisableBlocksDispatch(t *testing.T) {
	cpu, bus := newTestCPU()

	cpu.interruptsEnabled = false
	bus.mem[addr.IE] = 0x01
	bus.mem[addr.IF] = 0x01
	bus.load(0x00)

	cpu.Step(1)

	// the NOP executes instead of the dispatch
	assert.Equal(t, uint16(0x0101), cpu.pc)
	assert.Equal(t, uint8(0x01), bus.mem[addr.IF])
}

func TestHalt_wakesWithoutIME(t *testing.T) {
	cpu, bus := newTestCPU()

	cpu.interruptsEnabled = false
	bus.load(0x76, 0x00) // HALT; NOP

	cpu.Step(1)
	assert.True(t, cpu.halted)

	// halted with nothing pending: cycles burn, PC stays
	cpu.Step(1)
	assert.True(t, cpu.halted)
	assert.Equal(t, uint16(0x0101), cpu.pc)

	// any bit in IE & IF wakes the core even with IME off
	bus.mem[addr.IE] = 0x04
	bus.mem[addr.IF] = 0x04
	cpu.Step(1)
	assert.False(t, cpu.halted)
	assert.Equal(t, uint16(0x0102), cpu.pc) // the NOP ran
}

func TestHalt_bugSkipsPCIncrement(t *testing.T) {
	cpu, bus := newTestCPU()

	// IME off with an interrupt already pending triggers the halt bug
	cpu.interruptsEnabled = false
	bus.mem[addr.IE] = 0x01
	bus.mem[addr.IF] = 0x01
	bus.load(0x76, 0x3C) // HALT; INC A

	cpu.Step(1)
	assert.False(t, cpu.halted)
	assert.True(t, cpu.haltBug)

	// the INC A byte is executed twice: opcode fetch does not advance PC
	cpu.a = 0
	cpu.Step(2)
	assert.Equal(t, uint8(2), cpu.a)
	assert.Equal(t, uint16(0x0102), cpu.pc)
}

func TestEI_delaysOneInstruction(t *testing.T) {
	cpu, bus := newTestCPU()

	cpu.interruptsEnabled = false
	cpu.sp = 0x1000
	bus.mem[addr.IE] = 0x01
	bus.mem[addr.IF] = 0x01
	bus.load(0xFB, 0x00, 0x00) // EI; NOP; NOP

	cpu.Step(1) // EI
	assert.False(t, cpu.interruptsEnabled)

	cpu.Step(1) // the following instruction still runs
	assert.Equal(t, uint16(0x0102), cpu.pc)
	assert.True(t, cpu.interruptsEnabled)

	cpu.Step(1) // now the interrupt is serviced
	assert.Equal(t, uint16(0x0040), cpu.pc)
}

func TestDI_cancelsPendingEnable(t *testing.T) {
	cpu, bus := newTestCPU()

	bus.load(0xFB, 0xF3, 0x00) // EI; DI; NOP
	cpu.Step(3)

	assert.False(t, cpu.interruptsEnabled)
}

func TestRETI_enablesInterrupts(t *testing.T) {
	cpu, bus := newTestCPU()

	cpu.sp = 0x0FFE
	bus.mem[0x0FFE] = 0x34
	bus.mem[0x0FFF] = 0x12
	bus.load(0xD9)

	cpu.Step(1)

	assert.Equal(t, uint16(0x1234), cpu.pc)
	assert.True(t, cpu.interruptsEnabled)
}
