package dotmatrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
)

type fixedClock struct {
	t time.Time
}

func (f *fixedClock) Now() time.Time {
	return f.t
}

func mbc3Image() []byte {
	image := make([]byte, 2*0x4000)
	copy(image[0x134:], "SAVETEST")
	image[0x147] = 0x13 // mbc3+ram+battery
	image[0x148] = 0x00
	image[0x149] = 0x03 // 32KiB RAM
	return image
}

func newTestMachine(opts ...Option) *Machine {
	opts = append(opts, WithTimeSource(&fixedClock{t: time.Unix(1_000_000, 0)}))
	return New(opts...)
}

func TestMachine_stepConsumesBudget(t *testing.T) {
	m := newTestMachine()

	spent := m.Step(1000)
	assert.GreaterOrEqual(t, spent, 1000)
	assert.Equal(t, uint64(spent), m.Clock().Cycles())
}

func TestMachine_resetIsIdempotent(t *testing.T) {
	m := newTestMachine()

	m.Step(5000)
	m.Reset()

	pc, sp, af := m.CPU().GetPC(), m.CPU().GetSP(), m.CPU().GetAF()
	cycles := m.Clock().Cycles()

	m.Reset()

	assert.Equal(t, pc, m.CPU().GetPC())
	assert.Equal(t, sp, m.CPU().GetSP())
	assert.Equal(t, af, m.CPU().GetAF())
	assert.Equal(t, cycles, m.Clock().Cycles())
	assert.Equal(t, uint16(0x0100), pc)
	assert.Equal(t, uint16(0xFFFE), sp)
}

func TestMachine_programScenario(t *testing.T) {
	m := newTestMachine()

	// DEC B at the entry point
	m.Bus().Write(0x0100, 0x05)
	m.CPU().SetB(0x42)
	m.CPU().SetF(0)

	m.CPU().Step(1)

	assert.Equal(t, uint8(0x41), m.CPU().GetB())
	assert.Equal(t, uint8(0x40), m.CPU().GetF())
	assert.Equal(t, uint16(0x0101), m.CPU().GetPC())
}

func TestMachine_runFramePresentsFrames(t *testing.T) {
	m := newTestMachine()

	assert.Equal(t, uint64(0), m.FrameIndex())
	m.RunFrame()
	first := m.FrameIndex()
	assert.GreaterOrEqual(t, first, uint64(1))

	m.RunFrame()
	assert.Equal(t, first+1, m.FrameIndex())

	frame := m.Frame()
	assert.Len(t, frame.ToSlice(), 160*144)
}

func TestMachine_saveRoundTrip(t *testing.T) {
	m := newTestMachine()
	assert.NoError(t, m.LoadCartridge(mbc3Image(), nil))

	// write a byte into battery RAM through the bus
	m.Bus().Write(0x0000, 0x0A)
	m.Bus().Write(0x4000, 0x01)
	m.Bus().Write(0xA123, 0x42)

	saved := m.SaveRAM()
	assert.Len(t, saved, 32*1024+4)

	restored := newTestMachine()
	assert.NoError(t, restored.LoadCartridge(mbc3Image(), saved))

	restored.Bus().Write(0x0000, 0x0A)
	restored.Bus().Write(0x4000, 0x01)
	assert.Equal(t, byte(0x42), restored.Bus().Read(0xA123))

	// a second save of the restored machine is identical
	assert.Equal(t, saved, restored.SaveRAM())
}

func TestMachine_saveWithoutBattery(t *testing.T) {
	m := newTestMachine()
	image := mbc3Image()
	image[0x147] = 0x11 // plain mbc3
	image[0x149] = 0x00
	assert.NoError(t, m.LoadCartridge(image, nil))

	assert.Nil(t, m.SaveRAM())
}

func TestMachine_rejectsMalformedCartridge(t *testing.T) {
	m := newTestMachine()

	err := m.LoadCartridge(make([]byte, 100), nil)
	assert.Error(t, err)
}

func TestMachine_inputRaisesJoypadInterrupt(t *testing.T) {
	m := newTestMachine()

	m.SetInput(ButtonA | ButtonDown)

	assert.Equal(t, byte(0x10), m.Bus().Read(addr.IF)&0x10)

	// select the button group and check A reads low
	m.Bus().Write(addr.P1, 0x10)
	assert.Equal(t, byte(0), m.Bus().Read(addr.P1)&0x01)

	m.SetInput(0)
	m.Bus().Write(addr.P1, 0x10)
	assert.Equal(t, byte(0x01), m.Bus().Read(addr.P1)&0x01)
}

func TestMachine_doubleSpeedSwitch(t *testing.T) {
	m := newTestMachine(WithModel(CGB))

	assert.Equal(t, byte(0x7E), m.Bus().Read(addr.KEY1))

	// arm the switch and execute STOP
	m.Bus().Write(addr.KEY1, 0x01)
	m.Bus().Write(0x0100, 0x10)
	m.Bus().Write(0x0101, 0x00)

	m.CPU().Step(1)

	assert.True(t, m.Clock().IsDoubleSpeed())
	assert.False(t, m.CPU().IsStopped())
	assert.Equal(t, byte(0xFE), m.Bus().Read(addr.KEY1))
	// the fixed stall was consumed by the same step
	assert.GreaterOrEqual(t, m.Clock().Cycles(), uint64(130996))
}

func TestMachine_key1AbsentOnDMG(t *testing.T) {
	m := newTestMachine()

	assert.Equal(t, byte(0xFF), m.Bus().Read(addr.KEY1))

	m.Bus().Write(addr.KEY1, 0x01)
	m.Bus().Write(0x0100, 0x10)
	m.Bus().Write(0x0101, 0x00)
	m.CPU().Step(1)

	assert.False(t, m.Clock().IsDoubleSpeed())
	assert.True(t, m.CPU().IsStopped())
}

func TestMachine_breakSinkReceivesInvalidOpcode(t *testing.T) {
	var msg string
	m := newTestMachine(WithBreakFunc(func(s string) { msg = s }))

	m.Bus().Write(0x0100, 0xD3)
	m.CPU().Step(1)

	assert.Contains(t, msg, "invalid opcode")
}

func TestMachine_dmaLocksBusForCPU(t *testing.T) {
	m := newTestMachine()

	// LCD off so OAM reads are not mode-gated after the transfer
	m.Bus().Write(addr.LCDC, 0x11)
	m.Bus().Write(0xC000, 0x42)
	m.Bus().Write(addr.DMA, 0xC0) // start DMA from 0xC000

	// bus reads outside HRAM return 0xFF while the transfer runs
	assert.Equal(t, byte(0xFF), m.Bus().Read(0xC000))
	m.Bus().Write(0xFF80, 0x24)
	assert.Equal(t, byte(0x24), m.Bus().Read(0xFF80))

	// 640 dots later the transfer completes and OAM holds the data
	m.Clock().Increment(640)
	assert.Equal(t, byte(0x42), m.Bus().Read(0xFE00))
}

func TestMachine_audioProducesSamples(t *testing.T) {
	m := newTestMachine()

	// enable the APU and trigger channel 1
	m.Bus().Write(addr.NR52, 0x80)
	m.Bus().Write(addr.NR12, 0xF0)
	m.Bus().Write(addr.NR14, 0x87)

	m.Step(100_000)

	samples := m.Audio(1024)
	assert.NotEmpty(t, samples)
	assert.Equal(t, 0, len(samples)%2, "samples are interleaved stereo")
}
