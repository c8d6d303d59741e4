package cpu

import "github.com/mfava/dotmatrix/dotmatrix/bit"

func (c *CPU) pushStack(value uint16) {
	c.sp--
	c.bus.Write(c.sp, bit.High(value))
	c.sp--
	c.bus.Write(c.sp, bit.Low(value))
}

func (c *CPU) popStack() uint16 {
	low := c.bus.Read(c.sp)
	c.sp++
	high := c.bus.Read(c.sp)
	c.sp++
	return bit.Combine(high, low)
}

func (c *CPU) readHL() uint8 {
	return c.bus.Read(c.getHL())
}

func (c *CPU) writeHL(value uint8) {
	c.bus.Write(c.getHL(), value)
}

// inc increments an 8 bit value, preserving the carry flag.
func (c *CPU) inc(value uint8) uint8 {
	result := value + 1
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, value&0x0F == 0x0F)
	return result
}

// dec decrements an 8 bit value, preserving the carry flag.
func (c *CPU) dec(value uint8) uint8 {
	result := value - 1
	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, value&0x0F == 0x00)
	return result
}

// addToA adds a value to A, setting all relevant flags.
func (c *CPU) addToA(value uint8) {
	a := c.a
	result := a + value

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, (a&0x0F)+(value&0x0F) > 0x0F)
	c.setFlagToCondition(carryFlag, uint16(a)+uint16(value) > 0xFF)

	c.a = result
}

// adcToA adds a value and the incoming carry to A.
func (c *CPU) adcToA(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := a + value + carry

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, (a&0x0F)+(value&0x0F)+carry > 0x0F)
	c.setFlagToCondition(carryFlag, uint16(a)+uint16(value)+uint16(carry) > 0xFF)

	c.a = result
}

// subFromA subtracts a value from A, setting all relevant flags.
func (c *CPU) subFromA(value uint8) {
	a := c.a
	result := a - value

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, a&0x0F < value&0x0F)
	c.setFlagToCondition(carryFlag, a < value)

	c.a = result
}

// sbcFromA subtracts a value and the incoming carry from A.
func (c *CPU) sbcFromA(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := a - value - carry

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, a&0x0F < value&0x0F+carry)
	c.setFlagToCondition(carryFlag, uint16(a) < uint16(value)+uint16(carry))

	c.a = result
}

func (c *CPU) andA(value uint8) {
	c.a &= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

func (c *CPU) orA(value uint8) {
	c.a |= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

func (c *CPU) xorA(value uint8) {
	c.a ^= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

// cpA is subFromA without storing the result.
func (c *CPU) cpA(value uint8) {
	a := c.a
	c.setFlagToCondition(zeroFlag, a == value)
	c.setFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, a&0x0F < value&0x0F)
	c.setFlagToCondition(carryFlag, a < value)
}

// addToHL adds a 16 bit value to HL. Zero flag is preserved.
func (c *CPU) addToHL(value uint16) {
	hl := c.getHL()

	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, hl&0x0FFF+value&0x0FFF > 0x0FFF)
	c.setFlagToCondition(carryFlag, uint32(hl)+uint32(value) > 0xFFFF)

	c.setHL(hl + value)
}

// addSPImmediate computes SP plus the signed immediate, with flags from
// the unsigned low-byte arithmetic. Shared by ADD SP,n and LD HL,SP+n.
func (c *CPU) addSPImmediate() uint16 {
	n := c.readSignedImmediate()
	sp := c.sp

	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, sp&0x0F+uint16(uint8(n))&0x0F > 0x0F)
	c.setFlagToCondition(carryFlag, sp&0xFF+uint16(uint8(n)) > 0xFF)

	return uint16(int32(sp) + int32(n))
}

// daa adjusts A to a valid BCD result after an add or subtract.
func (c *CPU) daa() {
	a := uint16(c.a)

	if c.isSetFlag(subFlag) {
		if c.isSetFlag(halfCarryFlag) {
			a = (a - 0x06) & 0xFF
		}
		if c.isSetFlag(carryFlag) {
			a -= 0x60
		}
	} else {
		if c.isSetFlag(halfCarryFlag) || a&0x0F > 0x09 {
			a += 0x06
		}
		if c.isSetFlag(carryFlag) || a > 0x9F {
			a += 0x60
		}
	}

	if a&0x100 != 0 {
		c.setFlag(carryFlag)
	}
	c.a = uint8(a)
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(halfCarryFlag)
}

// Rotates and shifts set Z from the result; the A-only forms clear it
// again at the call site.

func (c *CPU) rlc(value uint8) uint8 {
	result := value<<1 | value>>7
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value > 0x7F)
	return result
}

func (c *CPU) rrc(value uint8) uint8 {
	result := value>>1 | value<<7
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	return result
}

func (c *CPU) rl(value uint8) uint8 {
	result := value<<1 | c.flagToBit(carryFlag)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value > 0x7F)
	return result
}

func (c *CPU) rr(value uint8) uint8 {
	result := value>>1 | c.flagToBit(carryFlag)<<7
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	return result
}

func (c *CPU) sla(value uint8) uint8 {
	result := value << 1
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value > 0x7F)
	return result
}

func (c *CPU) sra(value uint8) uint8 {
	result := value>>1 | value&0x80
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	return result
}

func (c *CPU) srl(value uint8) uint8 {
	result := value >> 1
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	return result
}

func (c *CPU) swap(value uint8) uint8 {
	result := value<<4 | value>>4
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
	return result
}

// bitTest sets Z from the tested bit; carry is preserved.
func (c *CPU) bitTest(index uint8, value uint8) {
	c.setFlagToCondition(zeroFlag, !bit.IsSet(index, value))
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

// jr performs a relative jump by the signed immediate.
func (c *CPU) jr() {
	n := c.readSignedImmediate()
	c.pc = uint16(int32(c.pc) + int32(n))
}

// jp jumps to the immediate 16 bit address.
func (c *CPU) jp() {
	c.pc = c.readImmediateWord()
}

// call pushes the return address and jumps to the immediate address.
func (c *CPU) call() {
	nn := c.readImmediateWord()
	c.pushStack(c.pc)
	c.pc = nn
}

// ret pops the return address into PC.
func (c *CPU) ret() {
	c.pc = c.popStack()
}

// rst pushes PC and jumps to one of the fixed restart vectors.
func (c *CPU) rst(target uint16) {
	c.pushStack(c.pc)
	c.pc = target
}
