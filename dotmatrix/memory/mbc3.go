package memory

import (
	"encoding/binary"
	"log/slog"
	"time"
)

// Clock is the time source for the MBC3 real-time clock. Injectable so
// RTC behaviour is deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClockFunc func() time.Time

func (s systemClockFunc) Now() time.Time {
	return s()
}

// rtcFields is one snapshot of the RTC register file: seconds, minutes,
// hours, a 9-bit day counter, the halt bit and the sticky day-overflow
// carry.
type rtcFields struct {
	seconds uint8
	minutes uint8
	hours   uint8
	days    uint16
	halted  bool
	carry   bool
}

const rtcDayMask = 0x1FF

// totalSeconds flattens the counters into seconds, ignoring halt/carry.
func (f rtcFields) totalSeconds() int64 {
	return int64(f.seconds) +
		60*int64(f.minutes) +
		3600*int64(f.hours) +
		86400*int64(f.days)
}

// rtcRegister selectors mapped at 0x4000-0x5FFF writes.
const (
	rtcSeconds = 0x08
	rtcMinutes = 0x09
	rtcHours   = 0x0A
	rtcDaysLow = 0x0B
	rtcControl = 0x0C // bit 0: day bit 8, bit 6: halt, bit 7: carry
)

// MBC3 supports up to 2MB ROM, 32KB RAM and an optional battery-backed
// real-time clock. The running clock is anchored to a reference unix
// timestamp and materialised on demand; the latch protocol copies the
// running clock into a separate register file readable at 0xA000.
type MBC3 struct {
	rom []uint8
	ram []uint8

	romBank    int
	selector   uint8 // 0x00-0x03 selects a RAM bank, 0x08-0x0C an RTC register
	ramEnabled bool

	hasRTC     bool
	hasBattery bool

	clock     Clock
	reference int64 // unix seconds anchoring the running clock
	running   rtcFields
	latched   rtcFields
	lastLatch uint8
}

// NewMBC3 creates an MBC3 controller. A nil clock falls back to the
// system clock when the cartridge has an RTC.
func NewMBC3(rom []uint8, ramBankCount int, hasRTC, hasBattery bool, clock Clock) *MBC3 {
	if clock == nil {
		clock = systemClockFunc(time.Now)
	}
	m := &MBC3{
		rom:        rom,
		ram:        make([]uint8, ramBankCount*ramBankSize),
		romBank:    1,
		hasRTC:     hasRTC,
		hasBattery: hasBattery,
		clock:      clock,
	}
	m.reference = m.clock.Now().Unix()
	return m
}

func (m *MBC3) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr <= 0x7FFF:
		return m.rom[romOffset(m.rom, m.romBank, addr)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.selector <= 0x03 {
			if len(m.ram) == 0 {
				return 0xFF
			}
			return m.ram[ramOffset(m.ram, int(m.selector), addr)]
		}
		if m.hasRTC && m.selector >= rtcSeconds && m.selector <= rtcControl {
			return m.readRTC(m.selector)
		}
		return 0xFF
	}
	return 0xFF
}

func (m *MBC3) Write(addr uint16, value uint8) {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = value&0x0F == 0x0A
	case addr <= 0x3FFF:
		bank := int(value & 0x7F)
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank % (len(m.rom) / romBankSize)
		if m.romBank == 0 {
			m.romBank = 1
		}
	case addr <= 0x5FFF:
		m.selector = value
	case addr <= 0x7FFF:
		// latch on a 0 -> 1 transition of the written value
		if m.lastLatch == 0x00 && value == 0x01 {
			m.latched = m.materialise(m.now())
		}
		m.lastLatch = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.selector <= 0x03 {
			if len(m.ram) == 0 {
				return
			}
			m.ram[ramOffset(m.ram, int(m.selector), addr)] = value
			return
		}
		if m.hasRTC && m.selector >= rtcSeconds && m.selector <= rtcControl {
			m.writeRTC(m.selector, value)
		}
	}
}

func (m *MBC3) now() int64 {
	return m.clock.Now().Unix()
}

// materialise computes the running clock at the given instant. A halted
// clock stays frozen at its rebased fields.
func (m *MBC3) materialise(now int64) rtcFields {
	f := m.running
	if f.halted {
		return f
	}
	total := f.totalSeconds() + (now - m.reference)
	f.seconds = uint8(total % 60)
	f.minutes = uint8(total / 60 % 60)
	f.hours = uint8(total / 3600 % 24)
	days := total / 86400
	if days > rtcDayMask {
		f.carry = true
	}
	f.days = uint16(days) & rtcDayMask
	return f
}

// rebase materialises the running clock and re-anchors the reference at
// now, so a subsequent field write takes effect going forward.
func (m *MBC3) rebase(now int64) {
	m.running = m.materialise(now)
	m.reference = now
}

func (m *MBC3) readRTC(selector uint8) uint8 {
	f := m.latched
	switch selector {
	case rtcSeconds:
		return f.seconds
	case rtcMinutes:
		return f.minutes
	case rtcHours:
		return f.hours
	case rtcDaysLow:
		return uint8(f.days)
	case rtcControl:
		v := uint8(f.days>>8) & 0x01
		if f.halted {
			v |= 0x40
		}
		if f.carry {
			v |= 0x80
		}
		return v
	}
	return 0xFF
}

// writeRTC replaces one field of the running clock. The clock is
// rebased first so only the written field changes; the latched register
// file is updated as well so an immediate read-back observes the write.
func (m *MBC3) writeRTC(selector uint8, value uint8) {
	m.rebase(m.now())
	switch selector {
	case rtcSeconds:
		m.running.seconds = value & 0x3F
	case rtcMinutes:
		m.running.minutes = value & 0x3F
	case rtcHours:
		m.running.hours = value & 0x1F
	case rtcDaysLow:
		m.running.days = (m.running.days & 0x100) | uint16(value)
	case rtcControl:
		m.running.days = (m.running.days & 0xFF) | uint16(value&0x01)<<8
		m.running.halted = value&0x40 != 0
		m.running.carry = value&0x80 != 0
	}
	m.latched = m.running
}

// SaveRAM serialises RAM followed by the little-endian 32-bit reference
// timestamp. Cartridges without a battery return nil.
func (m *MBC3) SaveRAM() []byte {
	if !m.hasBattery {
		return nil
	}
	out := make([]byte, len(m.ram)+4)
	copy(out, m.ram)
	binary.LittleEndian.PutUint32(out[len(m.ram):], uint32(m.reference))
	return out
}

// LoadRAM restores RAM and the RTC reference. A save of the wrong
// length is ignored and RAM left zeroed.
func (m *MBC3) LoadRAM(data []byte) {
	if len(data) != len(m.ram)+4 {
		if len(data) > 0 {
			slog.Warn("ignoring save of unexpected size",
				"got", len(data), "want", len(m.ram)+4)
		}
		return
	}
	copy(m.ram, data[:len(m.ram)])
	m.reference = int64(binary.LittleEndian.Uint32(data[len(m.ram):]))
	m.latched = m.materialise(m.now())
}
