package cpu

import (
	"fmt"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/bit"
)

// Bus is the CPU's view of the rest of the machine: memory dispatch,
// cycle fan-out and the STOP notification for the CGB speed switch.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Tick(cycles int)
	NotifyStop() bool
}

// Flag is one of the 4 flags in the flag register (low byte of AF).
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

const baseInterruptAddress uint16 = 0x40

// interruptDispatchCycles is the cost of servicing an interrupt
// (5 M-cycles).
const interruptDispatchCycles = 20

// CPU is the SM83 core state.
type CPU struct {
	// registers
	a  uint8
	f  uint8
	b  uint8
	c  uint8
	d  uint8
	e  uint8
	h  uint8
	l  uint8
	sp uint16
	pc uint16

	// metadata
	interruptsEnabled bool
	eiPending         bool // EI delay: interrupts enable after the next instruction
	currentOpcode     uint16
	stopped           bool
	halted            bool
	cycles            uint64

	// haltBug indicates the next instruction should execute with the
	// HALT bug semantics (skip first opcode-byte increment; operands
	// still advance PC). Set by HALT, cleared after the affected
	// instruction.
	haltBug bool

	bus Bus
	brk func(msg string)
}

// initializeMemory writes the documented post-boot register values
// through the bus. NR52 goes first so the APU accepts the rest.
func initializeMemory(bus Bus) {
	bus.Write(addr.NR52, 0xF1)

	bus.Write(addr.P1, 0xCF)
	bus.Write(addr.TIMA, 0x00)
	bus.Write(addr.TMA, 0x00)
	bus.Write(addr.TAC, 0x00)
	bus.Write(addr.LCDC, 0x91)
	bus.Write(addr.SCY, 0x00)
	bus.Write(addr.SCX, 0x00)
	bus.Write(addr.LYC, 0x00)
	bus.Write(addr.BGP, 0xFC)
	bus.Write(addr.OBP0, 0xFF)
	bus.Write(addr.OBP1, 0xFF)
	bus.Write(addr.WY, 0x00)
	bus.Write(addr.WX, 0x00)
	bus.Write(addr.IE, 0x00)

	bus.Write(addr.NR10, 0x80)
	bus.Write(addr.NR11, 0xBF)
	bus.Write(addr.NR12, 0xF3)
	bus.Write(addr.NR14, 0xBF)
	bus.Write(addr.NR21, 0x3F)
	bus.Write(addr.NR22, 0x00)
	bus.Write(addr.NR24, 0xBF)
	bus.Write(addr.NR50, 0x77)
	bus.Write(addr.NR51, 0xF3)
}

// New returns an initialized CPU instance.
func New(bus Bus) *CPU {
	cpu := &CPU{
		bus: bus,
		brk: func(msg string) { panic(msg) },
	}
	cpu.Reset()
	return cpu
}

// SetBreakFunc installs the host break sink for invalid opcodes.
func (c *CPU) SetBreakFunc(brk func(msg string)) {
	c.brk = brk
}

// Reset restores the documented post-boot CPU state and rewrites the
// memory-mapped register defaults.
func (c *CPU) Reset() {
	initializeMemory(c.bus)

	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100

	c.interruptsEnabled = false
	c.eiPending = false
	c.currentOpcode = 0
	c.stopped = false
	c.halted = false
	c.haltBug = false
	c.cycles = 0
}

// Step executes n instructions (or interrupt dispatches), ticking the
// bus after each one. Returns the cycles consumed.
func (c *CPU) Step(n int) int {
	total := 0
	for i := 0; i < n; i++ {
		cycles := c.execOne()
		c.cycles += uint64(cycles)
		c.bus.Tick(cycles)
		total += cycles
	}
	return total
}

// execOne services a pending interrupt or executes a single
// instruction, returning the cycle cost.
func (c *CPU) execOne() int {
	requested := c.bus.Read(addr.IE) & c.bus.Read(addr.IF) & 0x1F

	if c.halted || c.stopped {
		if requested == 0 {
			// still suspended, burn a cycle
			return 4
		}
		// any enabled request wakes the core, regardless of IME
		c.halted = false
		c.stopped = false
	}

	if c.interruptsEnabled && requested != 0 {
		return c.serviceInterrupt(requested)
	}

	instruction := Decode(c)

	// Previous instruction triggered the halt bug: skip the first PC
	// increment, then clear the flag once this instruction ran.
	skipFirstPCInc := c.haltBug
	if !skipFirstPCInc {
		c.pc++
	}
	if bit.High(c.currentOpcode) == 0xCB {
		c.pc++
	}

	eiWasPending := c.eiPending
	cycles := instruction(c)

	if skipFirstPCInc {
		c.haltBug = false
	}

	// commit the EI delay: the enable lands only after the instruction
	// following EI has executed
	if eiWasPending && c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	return cycles
}

// serviceInterrupt dispatches the highest-priority requested interrupt
// (bit 0 first): IME off, IF bit acknowledged, PC pushed high byte
// first, jump to the fixed vector.
func (c *CPU) serviceInterrupt(requested uint8) int {
	for i := uint8(0); i < 5; i++ {
		if !bit.IsSet(i, requested) {
			continue
		}
		c.interruptsEnabled = false
		c.eiPending = false
		c.bus.Write(addr.IF, bit.Clear(i, c.bus.Read(addr.IF)))
		c.pushStack(c.pc)
		c.pc = baseInterruptAddress + uint16(i)*8
		return interruptDispatchCycles
	}
	return 0
}

// peekImmediate returns the byte at the memory address pointed by the PC.
// This value is known as immediate ('n' in mnemonics).
func (c *CPU) peekImmediate() uint8 {
	return c.bus.Read(c.pc)
}

// peekImmediateWord returns the two bytes at PC and PC+1 ('nn').
func (c *CPU) peekImmediateWord() uint16 {
	low := c.bus.Read(c.pc)
	high := c.bus.Read(c.pc + 1)
	return bit.Combine(high, low)
}

// readImmediate reads 'n' and advances the PC past it.
func (c *CPU) readImmediate() uint8 {
	var n uint8
	if c.haltBug {
		// the first operand byte re-reads the opcode byte, but the
		// PC still advances
		n = c.bus.Read(c.pc)
		c.pc++
	} else {
		n = c.peekImmediate()
		c.pc++
	}
	return n
}

// readImmediateWord reads 'nn' and advances the PC past it.
func (c *CPU) readImmediateWord() uint16 {
	nn := c.peekImmediateWord()
	c.pc += 2
	return nn
}

// readSignedImmediate reads a signed 'n' and advances the PC past it.
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &= uint8(flag ^ 0xFF)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

// flagToBit will return 1 if the passed flag is set, 0 otherwise.
func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) setBC(value uint16) {
	c.b = bit.High(value)
	c.c = bit.Low(value)
}

func (c *CPU) getBC() uint16 {
	return bit.Combine(c.b, c.c)
}

func (c *CPU) setDE(value uint16) {
	c.d = bit.High(value)
	c.e = bit.Low(value)
}

func (c *CPU) getDE() uint16 {
	return bit.Combine(c.d, c.e)
}

func (c *CPU) setHL(value uint16) {
	c.h = bit.High(value)
	c.l = bit.Low(value)
}

func (c *CPU) getHL() uint16 {
	return bit.Combine(c.h, c.l)
}

func (c *CPU) setAF(value uint16) {
	c.a = bit.High(value)
	// F register lower 4 bits must be 0
	c.f = bit.Low(value) & 0xF0
}

func (c *CPU) getAF() uint16 {
	return bit.Combine(c.a, c.f)
}

// Register access for tests, the debugger and the facade. Direct
// access to the register file is part of the contract.

func (c *CPU) GetA() uint8       { return c.a }
func (c *CPU) GetF() uint8       { return c.f }
func (c *CPU) GetB() uint8       { return c.b }
func (c *CPU) GetC() uint8       { return c.c }
func (c *CPU) GetD() uint8       { return c.d }
func (c *CPU) GetE() uint8       { return c.e }
func (c *CPU) GetH() uint8       { return c.h }
func (c *CPU) GetL() uint8       { return c.l }
func (c *CPU) GetAF() uint16     { return c.getAF() }
func (c *CPU) GetBC() uint16     { return c.getBC() }
func (c *CPU) GetDE() uint16     { return c.getDE() }
func (c *CPU) GetHL() uint16     { return c.getHL() }
func (c *CPU) GetSP() uint16     { return c.sp }
func (c *CPU) GetPC() uint16     { return c.pc }
func (c *CPU) GetCycles() uint64 { return c.cycles }

func (c *CPU) SetA(v uint8)   { c.a = v }
func (c *CPU) SetF(v uint8)   { c.f = v & 0xF0 }
func (c *CPU) SetB(v uint8)   { c.b = v }
func (c *CPU) SetC(v uint8)   { c.c = v }
func (c *CPU) SetD(v uint8)   { c.d = v }
func (c *CPU) SetE(v uint8)   { c.e = v }
func (c *CPU) SetH(v uint8)   { c.h = v }
func (c *CPU) SetL(v uint8)   { c.l = v }
func (c *CPU) SetAF(v uint16) { c.setAF(v) }
func (c *CPU) SetBC(v uint16) { c.setBC(v) }
func (c *CPU) SetDE(v uint16) { c.setDE(v) }
func (c *CPU) SetHL(v uint16) { c.setHL(v) }
func (c *CPU) SetSP(v uint16) { c.sp = v }
func (c *CPU) SetPC(v uint16) { c.pc = v }

// SetIME overrides the interrupt master enable, for tests.
func (c *CPU) SetIME(enabled bool) { c.interruptsEnabled = enabled }

// GetIME returns the interrupt master enable state.
func (c *CPU) GetIME() bool { return c.interruptsEnabled }

// IsHalted reports whether the core is suspended by HALT.
func (c *CPU) IsHalted() bool { return c.halted }

// IsStopped reports whether the core is suspended by STOP.
func (c *CPU) IsStopped() bool { return c.stopped }

// GetFlagString returns a human-readable view of the flag register.
func (c *CPU) GetFlagString() string {
	flags := []byte("----")
	if c.isSetFlag(zeroFlag) {
		flags[0] = 'Z'
	}
	if c.isSetFlag(subFlag) {
		flags[1] = 'N'
	}
	if c.isSetFlag(halfCarryFlag) {
		flags[2] = 'H'
	}
	if c.isSetFlag(carryFlag) {
		flags[3] = 'C'
	}
	return string(flags)
}

func invalidOpcode(cpu *CPU) int {
	cpu.brk(fmt.Sprintf("invalid opcode 0x%02X at PC 0x%04X", bit.Low(cpu.currentOpcode), cpu.pc-1))
	return 4
}
