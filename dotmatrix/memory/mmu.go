package memory

import (
	"fmt"
	"log/slog"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionIO
)

// VideoUnit is the PPU as seen from the bus: it owns VRAM, OAM and the
// LCD register file, and gates CPU access by mode.
type VideoUnit interface {
	ReadVRAM(address uint16) byte
	WriteVRAM(address uint16, value byte)
	ReadOAM(address uint16) byte
	WriteOAM(address uint16, value byte)
	ReadRegister(address uint16) byte
	WriteRegister(address uint16, value byte)
}

// AudioUnit is the APU register file as seen from the bus.
type AudioUnit interface {
	ReadRegister(address uint16) byte
	WriteRegister(address uint16, value byte)
}

// SerialPort is the minimal interface for a serial device connected to
// SB/SC. Implementations MUST only accept reads/writes to addr.SB and
// addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// SpeedSwitch serves the CGB KEY1 register. Absent on DMG.
type SpeedSwitch interface {
	ReadKEY1() byte
	WriteKEY1(value byte)
}

// MMU is the memory bus: a 16-bit address space dispatched per region
// to the owning component. A single lock excludes all non-PPU access
// during OAM DMA, except high RAM which stays live.
type MMU struct {
	cart *Cartridge
	mbc  MBC

	memory    []byte // WRAM, echo backing, HRAM and uncommitted IO
	regionMap [256]memRegion

	Joypad *Joypad
	Timer  *Timer
	IRQ    *irq.Controller

	serial SerialPort
	video  VideoUnit
	audio  AudioUnit
	speed  SpeedSwitch

	locked bool
	brk    func(msg string)
}

// New creates a memory unit with no cartridge loaded, the equivalent of
// powering on with an empty slot.
func New(ic *irq.Controller) *MMU {
	m := &MMU{
		memory: make([]byte, 0x10000),
		cart:   NewCartridge(),
		IRQ:    ic,
		brk:    func(msg string) { panic(msg) },
	}
	m.Joypad = NewJoypad(ic)
	m.Timer = NewTimer(ic)
	m.mbc = newFlatMBC()
	initRegionMap(m)
	return m
}

// flatMBC backs the whole cartridge address space with plain RAM. It is
// installed when no cartridge is inserted, so code (and tests) can
// place bytes at arbitrary addresses.
type flatMBC struct {
	data []byte
}

func newFlatMBC() *flatMBC {
	return &flatMBC{data: make([]byte, 0x10000)}
}

func (f *flatMBC) Read(addr uint16) uint8 {
	return f.data[addr]
}

func (f *flatMBC) Write(addr uint16, value uint8) {
	f.data[addr] = value
}

func initRegionMap(m *MMU) {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	m.regionMap[0xFE] = regionOAM
	m.regionMap[0xFF] = regionIO
}

// SetVideo attaches the PPU.
func (m *MMU) SetVideo(v VideoUnit) { m.video = v }

// SetAudio attaches the APU.
func (m *MMU) SetAudio(a AudioUnit) { m.audio = a }

// SetSerial attaches the serial device.
func (m *MMU) SetSerial(s SerialPort) { m.serial = s }

// SetSpeedSwitch attaches the KEY1 handler (CGB only).
func (m *MMU) SetSpeedSwitch(s SpeedSwitch) { m.speed = s }

// SetBreakFunc installs the host break sink for fatal bus conditions.
func (m *MMU) SetBreakFunc(brk func(msg string)) { m.brk = brk }

// LoadCartridge attaches a parsed cartridge and builds its controller.
func (m *MMU) LoadCartridge(cart *Cartridge, rtcClock Clock) error {
	switch cart.mbcType {
	case NoMBCType:
		m.mbc = NewNoMBC(cart.data)
	case MBC1Type:
		m.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC3Type:
		m.mbc = NewMBC3(cart.data, cart.ramBankCount, cart.hasRTC, cart.hasBattery, rtcClock)
	case MBC5Type:
		m.mbc = NewMBC5(cart.data, cart.hasBattery, cart.ramBankCount)
	default:
		return fmt.Errorf("mmu: unsupported MBC type %d", cart.mbcType)
	}
	m.cart = cart
	return nil
}

// Cartridge returns the currently loaded cartridge.
func (m *MMU) Cartridge() *Cartridge { return m.cart }

// Controller returns the active bank controller.
func (m *MMU) Controller() MBC { return m.mbc }

// Reset clears the RAM backing store and resets the bus-owned I/O.
func (m *MMU) Reset() {
	for i := range m.memory {
		m.memory[i] = 0
	}
	m.locked = false
	m.Joypad.Reset()
	m.Timer.Reset()
	if m.serial != nil {
		m.serial.Reset()
	}
}

// Lock excludes all non-PPU bus access until Unlock. Called by the PPU
// for the duration of an OAM DMA transfer.
func (m *MMU) Lock() { m.locked = true }

// Unlock re-opens the bus after OAM DMA.
func (m *MMU) Unlock() { m.locked = false }

func inHRAM(address uint16) bool {
	return address >= 0xFF80 && address <= 0xFFFE
}

func (m *MMU) Read(address uint16) byte {
	if m.locked && !inHRAM(address) {
		return 0xFF
	}
	return m.dispatchRead(address)
}

// Read16 reads a little-endian word, wrapping at the top of the
// address space.
func (m *MMU) Read16(address uint16) uint16 {
	low := m.Read(address)
	high := m.Read(address + 1)
	return uint16(high)<<8 | uint16(low)
}

func (m *MMU) Write(address uint16, value byte) {
	if m.locked && !inHRAM(address) {
		return
	}
	m.dispatchWrite(address, value)
}

// DMARead bypasses the bus lock; only the PPU uses it, to fetch the
// OAM DMA source bytes while the bus is closed to the CPU.
func (m *MMU) DMARead(address uint16) byte {
	return m.dispatchRead(address)
}

func (m *MMU) dispatchRead(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("read from cartridge space with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		if m.video == nil {
			return m.memory[address]
		}
		return m.video.ReadVRAM(address)
	case regionWRAM:
		return m.memory[address]
	case regionEcho:
		return m.memory[address-0x2000]
	case regionOAM:
		if address <= addr.OAMEnd {
			if m.video == nil {
				return m.memory[address]
			}
			return m.video.ReadOAM(address)
		}
		// unused region 0xFEA0-0xFEFF
		return 0xFF
	case regionIO:
		return m.readIO(address)
	default:
		m.brk(fmt.Sprintf("read at unmapped address 0x%04X", address))
		return 0
	}
}

func (m *MMU) dispatchWrite(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("write to cartridge space with no cartridge",
				"addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		if m.video == nil {
			m.memory[address] = value
			return
		}
		m.video.WriteVRAM(address, value)
	case regionWRAM:
		m.memory[address] = value
	case regionEcho:
		m.memory[address-0x2000] = value
	case regionOAM:
		if address <= addr.OAMEnd {
			if m.video == nil {
				m.memory[address] = value
				return
			}
			m.video.WriteOAM(address, value)
		}
	case regionIO:
		m.writeIO(address, value)
	default:
		m.brk(fmt.Sprintf("write at unmapped address 0x%04X", address))
	}
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.P1:
		return m.Joypad.Read()
	case address == addr.SB || address == addr.SC:
		if m.serial == nil {
			return 0xFF
		}
		return m.serial.Read(address)
	case address >= addr.DIV && address <= addr.TAC:
		return m.Timer.Read(address)
	case address == addr.IF || address == addr.IE:
		return m.IRQ.Read(address)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		if m.audio == nil {
			return 0xFF
		}
		return m.audio.ReadRegister(address)
	case address >= addr.LCDC && address <= addr.WX:
		if m.video == nil {
			return m.memory[address]
		}
		return m.video.ReadRegister(address)
	case address == addr.KEY1:
		if m.speed == nil {
			return 0xFF
		}
		return m.speed.ReadKEY1()
	default:
		return m.memory[address]
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.Joypad.Write(value)
	case address == addr.SB || address == addr.SC:
		if m.serial != nil {
			m.serial.Write(address, value)
		}
	case address >= addr.DIV && address <= addr.TAC:
		m.Timer.Write(address, value)
	case address == addr.IF || address == addr.IE:
		m.IRQ.Write(address, value)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		if m.audio != nil {
			m.audio.WriteRegister(address, value)
		}
	case address >= addr.LCDC && address <= addr.WX:
		if m.video == nil {
			m.memory[address] = value
			return
		}
		m.video.WriteRegister(address, value)
	case address == addr.KEY1:
		if m.speed != nil {
			m.speed.WriteKEY1(value)
		}
	default:
		m.memory[address] = value
	}
}
