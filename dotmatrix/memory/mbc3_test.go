package memory

import (
	"encoding/binary"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_000_000, 0)}
}

func makeROM(banks int) []uint8 {
	rom := make([]uint8, banks*romBankSize)
	for i := range rom {
		rom[i] = uint8(i / romBankSize) // each bank filled with its number
	}
	return rom
}

func TestMBC3_romBanking(t *testing.T) {
	mbc := NewMBC3(makeROM(8), 0, false, false, newFakeClock())

	t.Run("bank 0 fixed", func(t *testing.T) {
		for addr := uint16(0x0000); addr < 0x4000; addr += 0x100 {
			if got := mbc.Read(addr); got != 0 {
				t.Errorf("Read(0x%04X) = %d; want 0", addr, got)
			}
		}
	})

	t.Run("bank select", func(t *testing.T) {
		for bank := uint8(1); bank < 8; bank++ {
			mbc.Write(0x2000, bank)
			if got := mbc.Read(0x4000); got != bank {
				t.Errorf("bank %d: Read(0x4000) = %d", bank, got)
			}
		}
	})

	t.Run("bank 0 maps to 1", func(t *testing.T) {
		mbc.Write(0x2000, 0x00)
		if got := mbc.Read(0x4000); got != 1 {
			t.Errorf("Read(0x4000) = %d; want 1", got)
		}
	})

	t.Run("bank wraps modulo bank count", func(t *testing.T) {
		mbc.Write(0x2000, 11) // 11 % 8 = 3
		if got := mbc.Read(0x4000); got != 3 {
			t.Errorf("Read(0x4000) = %d; want 3", got)
		}
	})
}

func TestMBC3_ramGating(t *testing.T) {
	mbc := NewMBC3(makeROM(2), 4, false, false, newFakeClock())

	if got := mbc.Read(0xA000); got != 0xFF {
		t.Errorf("read from disabled RAM = 0x%02X; want 0xFF", got)
	}

	mbc.Write(0x0000, 0x0A) // enable
	mbc.Write(0x4000, 0x00)
	mbc.Write(0xA000, 0x42)
	if got := mbc.Read(0xA000); got != 0x42 {
		t.Errorf("read after enable = 0x%02X; want 0x42", got)
	}

	// every bank keeps its own bytes
	for bank := uint8(0); bank < 4; bank++ {
		mbc.Write(0x4000, bank)
		mbc.Write(0xA123, 0x10+bank)
	}
	for bank := uint8(0); bank < 4; bank++ {
		mbc.Write(0x4000, bank)
		if got := mbc.Read(0xA123); got != 0x10+bank {
			t.Errorf("bank %d: got 0x%02X; want 0x%02X", bank, got, 0x10+bank)
		}
	}

	mbc.Write(0x0000, 0x00) // anything but 0x0A disables
	if got := mbc.Read(0xA000); got != 0xFF {
		t.Errorf("read after disable = 0x%02X; want 0xFF", got)
	}
}

func latch(mbc *MBC3) {
	mbc.Write(0x6000, 0x00)
	mbc.Write(0x6000, 0x01)
}

func TestMBC3_rtcLatch(t *testing.T) {
	clock := newFakeClock()
	mbc := NewMBC3(makeROM(2), 0, true, true, clock)
	mbc.Write(0x0000, 0x0A)

	readReg := func(sel uint8) uint8 {
		mbc.Write(0x4000, sel)
		return mbc.Read(0xA000)
	}

	clock.advance(90 * time.Second)
	latch(mbc)

	if got := readReg(rtcSeconds); got != 30 {
		t.Errorf("seconds = %d; want 30", got)
	}
	if got := readReg(rtcMinutes); got != 1 {
		t.Errorf("minutes = %d; want 1", got)
	}

	// without a new latch the registers stay frozen
	clock.advance(45 * time.Second)
	if got := readReg(rtcSeconds); got != 30 {
		t.Errorf("unlatched seconds = %d; want 30", got)
	}

	latch(mbc)
	if got := readReg(rtcSeconds); got != 15 {
		t.Errorf("latched seconds = %d; want 15", got)
	}
	if got := readReg(rtcMinutes); got != 2 {
		t.Errorf("latched minutes = %d; want 2", got)
	}
}

func TestMBC3_rtcFieldWriteReadBack(t *testing.T) {
	clock := newFakeClock()
	mbc := NewMBC3(makeROM(2), 0, true, true, clock)
	mbc.Write(0x0000, 0x0A)

	fields := []struct {
		sel   uint8
		value uint8
		want  uint8
	}{
		{rtcSeconds, 59, 59},
		{rtcSeconds, 0x75, 0x35}, // masked to 6 bits
		{rtcMinutes, 30, 30},
		{rtcHours, 23, 23},
		{rtcHours, 0x3A, 0x1A}, // masked to 5 bits
		{rtcDaysLow, 0xAB, 0xAB},
	}
	for _, f := range fields {
		mbc.Write(0x4000, f.sel)
		mbc.Write(0xA000, f.value)
		if got := mbc.Read(0xA000); got != f.want {
			t.Errorf("register 0x%02X: wrote 0x%02X, read 0x%02X; want 0x%02X",
				f.sel, f.value, got, f.want)
		}
	}
}

func TestMBC3_rtcAdvancesFromWrittenValue(t *testing.T) {
	clock := newFakeClock()
	mbc := NewMBC3(makeROM(2), 0, true, true, clock)
	mbc.Write(0x0000, 0x0A)

	mbc.Write(0x4000, rtcSeconds)
	mbc.Write(0xA000, 50)

	clock.advance(20 * time.Second)
	latch(mbc)

	mbc.Write(0x4000, rtcSeconds)
	if got := mbc.Read(0xA000); got != 10 {
		t.Errorf("seconds = %d; want 10", got)
	}
	mbc.Write(0x4000, rtcMinutes)
	if got := mbc.Read(0xA000); got != 1 {
		t.Errorf("minutes = %d; want 1", got)
	}
}

func TestMBC3_rtcHalt(t *testing.T) {
	clock := newFakeClock()
	mbc := NewMBC3(makeROM(2), 0, true, true, clock)
	mbc.Write(0x0000, 0x0A)

	mbc.Write(0x4000, rtcControl)
	mbc.Write(0xA000, 0x40) // halt

	clock.advance(time.Hour)
	latch(mbc)

	mbc.Write(0x4000, rtcSeconds)
	if got := mbc.Read(0xA000); got != 0 {
		t.Errorf("halted seconds = %d; want 0", got)
	}

	mbc.Write(0x4000, rtcControl)
	mbc.Write(0xA000, 0x00) // resume

	clock.advance(5 * time.Second)
	latch(mbc)
	mbc.Write(0x4000, rtcSeconds)
	if got := mbc.Read(0xA000); got != 5 {
		t.Errorf("resumed seconds = %d; want 5", got)
	}
}

func TestMBC3_rtcDayOverflowCarry(t *testing.T) {
	clock := newFakeClock()
	mbc := NewMBC3(makeROM(2), 0, true, true, clock)
	mbc.Write(0x0000, 0x0A)

	// day 511, one day from overflow
	mbc.Write(0x4000, rtcDaysLow)
	mbc.Write(0xA000, 0xFF)
	mbc.Write(0x4000, rtcControl)
	mbc.Write(0xA000, 0x01)

	clock.advance(25 * time.Hour)
	latch(mbc)

	mbc.Write(0x4000, rtcControl)
	control := mbc.Read(0xA000)
	if control&0x80 == 0 {
		t.Error("carry bit not set after day overflow")
	}
	if control&0x01 != 0 {
		t.Errorf("day bit 8 = 1 after wrap; control = 0x%02X", control)
	}
	mbc.Write(0x4000, rtcDaysLow)
	if got := mbc.Read(0xA000); got != 0 {
		t.Errorf("day low = %d; want 0", got)
	}
}

func TestMBC3_saveRoundTrip(t *testing.T) {
	clock := newFakeClock()
	mbc := NewMBC3(makeROM(2), 4, true, true, clock)
	mbc.Write(0x0000, 0x0A)
	mbc.Write(0x4000, 0x02)
	mbc.Write(0xA000, 0x42)

	saved := mbc.SaveRAM()
	if want := 4*ramBankSize + 4; len(saved) != want {
		t.Fatalf("save size = %d; want %d", len(saved), want)
	}
	if got := binary.LittleEndian.Uint32(saved[4*ramBankSize:]); int64(got) != clock.Now().Unix() {
		t.Errorf("saved reference = %d; want %d", got, clock.Now().Unix())
	}

	restored := NewMBC3(makeROM(2), 4, true, true, clock)
	restored.LoadRAM(saved)
	restored.Write(0x0000, 0x0A)
	restored.Write(0x4000, 0x02)
	if got := restored.Read(0xA000); got != 0x42 {
		t.Errorf("restored RAM byte = 0x%02X; want 0x42", got)
	}

	if out := restored.SaveRAM(); len(out) != len(saved) {
		t.Errorf("second save size = %d; want %d", len(out), len(saved))
	}
}

func TestMBC3_loadIgnoresWrongSize(t *testing.T) {
	mbc := NewMBC3(makeROM(2), 4, true, true, newFakeClock())
	mbc.LoadRAM(make([]byte, 17))

	mbc.Write(0x0000, 0x0A)
	mbc.Write(0x4000, 0x00)
	if got := mbc.Read(0xA000); got != 0 {
		t.Errorf("RAM byte after bad load = 0x%02X; want 0x00", got)
	}
}

func TestMBC3_noBatteryNoSave(t *testing.T) {
	mbc := NewMBC3(makeROM(2), 4, false, false, newFakeClock())
	if mbc.SaveRAM() != nil {
		t.Error("cartridge without battery produced save data")
	}
}
