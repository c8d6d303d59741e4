// Package dotmatrix is the emulator facade: it wires the CPU, bus,
// clock, PPU, APU, timer, serial port and cartridge together and
// exposes the host-facing surface.
package dotmatrix

import (
	"fmt"
	"log/slog"

	"github.com/mfava/dotmatrix/dotmatrix/audio"
	"github.com/mfava/dotmatrix/dotmatrix/cpu"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
	"github.com/mfava/dotmatrix/dotmatrix/memory"
	"github.com/mfava/dotmatrix/dotmatrix/serial"
	"github.com/mfava/dotmatrix/dotmatrix/timing"
	"github.com/mfava/dotmatrix/dotmatrix/video"
)

// Model selects the emulated hardware revision.
type Model int

const (
	// DMG is the original monochrome unit.
	DMG Model = iota
	// CGB is the color unit, adding the KEY1 double-speed switch.
	CGB
)

// Buttons is the full joypad state as a bitmask; set bits are pressed.
type Buttons uint8

const (
	ButtonRight Buttons = 1 << iota
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonSelect
	ButtonStart
)

// BreakFunc receives fatal diagnostics (invalid opcodes, unmapped bus
// access). The host is expected to halt the run; the core never
// recovers from a break.
type BreakFunc func(msg string)

// Option configures a Machine.
type Option func(*Machine)

// WithModel selects the hardware revision (default DMG).
func WithModel(model Model) Option {
	return func(m *Machine) { m.model = model }
}

// WithBreakFunc installs the host break sink (default: panic).
func WithBreakFunc(brk BreakFunc) Option {
	return func(m *Machine) { m.brk = brk }
}

// WithTimeSource injects the RTC time source, for deterministic tests.
func WithTimeSource(clock memory.Clock) Option {
	return func(m *Machine) { m.rtcClock = clock }
}

// WithSampleRate sets the audio output rate (default 44100 Hz).
func WithSampleRate(rate int) Option {
	return func(m *Machine) { m.sampleRate = rate }
}

// Machine is one emulator instance. All state is owned here and driven
// single-threaded: Step runs the CPU, which synchronously fans cycles
// out to every other component through the clock.
type Machine struct {
	model      Model
	brk        BreakFunc
	rtcClock   memory.Clock
	sampleRate int

	irq    *irq.Controller
	mmu    *memory.MMU
	gpu    *video.GPU
	apu    *audio.APU
	serial *serial.LogSink
	clock  *timing.Clock
	cpu    *cpu.CPU
}

// machineBus adapts the machine internals to the CPU's bus interface.
type machineBus struct {
	m *Machine
}

func (b machineBus) Read(address uint16) byte         { return b.m.mmu.Read(address) }
func (b machineBus) Write(address uint16, value byte) { b.m.mmu.Write(address, value) }
func (b machineBus) Tick(cycles int)                  { b.m.clock.Increment(cycles) }
func (b machineBus) NotifyStop() bool                 { return b.m.clock.NotifyStop() }

// New builds a machine with no cartridge loaded.
func New(opts ...Option) *Machine {
	m := &Machine{
		model:      DMG,
		brk:        func(msg string) { panic(msg) },
		sampleRate: audio.DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.irq = irq.New()
	m.mmu = memory.New(m.irq)
	m.gpu = video.NewGPU(m.irq, m.mmu)
	m.apu = audio.New(m.sampleRate)
	m.serial = serial.NewLogSink(m.irq)
	m.clock = timing.New(m.gpu, m.mmu.Timer, m.serial, m.apu)

	m.mmu.SetVideo(m.gpu)
	m.mmu.SetAudio(m.apu)
	m.mmu.SetSerial(m.serial)
	if m.model == CGB {
		m.mmu.SetSpeedSwitch(m.clock)
	}
	m.mmu.SetBreakFunc(m.brk)

	m.cpu = cpu.New(machineBus{m})
	m.cpu.SetBreakFunc(m.brk)

	return m
}

// LoadCartridge validates and attaches a ROM image, restoring battery
// state when a save is supplied, then resets the machine to its boot
// state.
func (m *Machine) LoadCartridge(image []byte, savedRAM []byte) error {
	cart, err := memory.NewCartridgeWithData(image)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}
	if err := m.mmu.LoadCartridge(cart, m.rtcClock); err != nil {
		return err
	}
	if bb, ok := m.mmu.Controller().(memory.BatteryBacked); ok && len(savedRAM) > 0 {
		bb.LoadRAM(savedRAM)
	}
	slog.Info("cartridge loaded", "title", cart.Title(), "battery", cart.HasBattery())
	m.Reset()
	return nil
}

// Reset restores every component to its documented post-boot state.
// Any in-flight state, including a pending OAM DMA, is discarded.
func (m *Machine) Reset() {
	m.irq.Reset()
	m.mmu.Reset()
	m.gpu.Reset()
	m.apu.Reset()
	m.clock.Reset()
	m.cpu.Reset()
}

// Step runs whole instructions until at least cpuCycles cycles have
// been consumed, and returns the cycles actually spent.
func (m *Machine) Step(cpuCycles int) int {
	start := m.clock.Cycles()
	for m.clock.Cycles()-start < uint64(cpuCycles) {
		m.cpu.Step(1)
	}
	return int(m.clock.Cycles() - start)
}

// frameBudget caps RunFrame so a disabled LCD cannot spin forever.
const frameBudget = 10 * 70224

// RunFrame steps until the PPU presents a new frame (or the cycle
// budget runs out with the LCD disabled).
func (m *Machine) RunFrame() {
	startFrame := m.gpu.FrameIndex()
	startCycles := m.clock.Cycles()
	for m.gpu.FrameIndex() == startFrame &&
		m.clock.Cycles()-startCycles < frameBudget {
		m.cpu.Step(1)
	}
}

// Frame returns the last presented frame. The buffer is valid until
// the next swap.
func (m *Machine) Frame() *video.FrameBuffer {
	return m.gpu.Frame()
}

// FrameIndex returns the monotonically increasing presented-frame
// counter.
func (m *Machine) FrameIndex() uint64 {
	return m.gpu.FrameIndex()
}

// Audio drains up to maxFrames stereo sample frames, interleaved
// left/right.
func (m *Machine) Audio(maxFrames int) []float32 {
	return m.apu.Samples(maxFrames)
}

// SetInput replaces the joypad state; set bits are pressed buttons.
func (m *Machine) SetInput(buttons Buttons) {
	m.mmu.Joypad.SetState(uint8(buttons))
}

// SaveRAM serialises battery-backed cartridge state, nil for
// cartridges without a battery.
func (m *Machine) SaveRAM() []byte {
	if bb, ok := m.mmu.Controller().(memory.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// CPU exposes the processor; register access is part of the contract
// for tests and debuggers.
func (m *Machine) CPU() *cpu.CPU {
	return m.cpu
}

// Bus exposes the memory bus for tests and debuggers.
func (m *Machine) Bus() *memory.MMU {
	return m.mmu
}

// Clock exposes the programmable clock.
func (m *Machine) Clock() *timing.Clock {
	return m.clock
}
