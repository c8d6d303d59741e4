package memory

import (
	"testing"

	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
)

func TestMMU_workRAM(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(0xC123, 0x42)
	if got := mmu.Read(0xC123); got != 0x42 {
		t.Errorf("WRAM read = 0x%02X; want 0x42", got)
	}
}

func TestMMU_echoRAM(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(0xC123, 0x42)
	if got := mmu.Read(0xE123); got != 0x42 {
		t.Errorf("echo read = 0x%02X; want 0x42", got)
	}

	mmu.Write(0xE234, 0x24)
	if got := mmu.Read(0xC234); got != 0x24 {
		t.Errorf("WRAM read after echo write = 0x%02X; want 0x24", got)
	}
}

func TestMMU_read16LittleEndian(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(0xC000, 0x34)
	mmu.Write(0xC001, 0x12)
	if got := mmu.Read16(0xC000); got != 0x1234 {
		t.Errorf("Read16 = 0x%04X; want 0x1234", got)
	}
}

func TestMMU_ifUpperBitsReadAsOne(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(addr.IF, 0x01)
	if got := mmu.Read(addr.IF); got != 0xE1 {
		t.Errorf("IF = 0x%02X; want 0xE1", got)
	}
}

func TestMMU_interruptRegistersRouted(t *testing.T) {
	ic := irq.New()
	mmu := New(ic)

	mmu.Write(addr.IE, 0x15)
	if got := ic.Read(addr.IE); got != 0x15 {
		t.Errorf("IE through controller = 0x%02X; want 0x15", got)
	}

	ic.Raise(addr.TimerInterrupt)
	if got := mmu.Read(addr.IF); got&0x04 == 0 {
		t.Errorf("raised timer bit not visible through bus; IF = 0x%02X", got)
	}
}

func TestMMU_lockGatesEverythingButHRAM(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(0xC000, 0x42)
	mmu.Write(0xFF80, 0x24)

	mmu.Lock()

	if got := mmu.Read(0xC000); got != 0xFF {
		t.Errorf("locked WRAM read = 0x%02X; want 0xFF", got)
	}
	mmu.Write(0xC000, 0x99) // dropped
	if got := mmu.Read(0xFF80); got != 0x24 {
		t.Errorf("locked HRAM read = 0x%02X; want 0x24", got)
	}
	mmu.Write(0xFF81, 0x55)
	if got := mmu.Read(0xFF81); got != 0x55 {
		t.Errorf("locked HRAM write lost; got 0x%02X", got)
	}

	// the PPU-side read bypasses the lock
	if got := mmu.DMARead(0xC000); got != 0x42 {
		t.Errorf("DMARead = 0x%02X; want 0x42", got)
	}

	mmu.Unlock()

	if got := mmu.Read(0xC000); got != 0x42 {
		t.Errorf("unlocked WRAM read = 0x%02X; want 0x42 (locked write must be dropped)", got)
	}
}

func TestMMU_unusedRegionReads(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(0xFEA5, 0x42) // ignored
	if got := mmu.Read(0xFEA5); got != 0xFF {
		t.Errorf("unused region read = 0x%02X; want 0xFF", got)
	}
}

func TestMMU_flatCartridgeSpaceWithoutCartridge(t *testing.T) {
	mmu := New(irq.New())

	mmu.Write(0x0100, 0x05)
	if got := mmu.Read(0x0100); got != 0x05 {
		t.Errorf("scratch ROM read = 0x%02X; want 0x05", got)
	}
}

func TestMMU_loadCartridgeRoutesToController(t *testing.T) {
	mmu := New(irq.New())

	image := make([]byte, 4*romBankSize)
	image[cartridgeTypeAddress] = 0x13 // mbc3+ram+battery
	image[romSizeAddress] = 0x01       // 4 banks
	image[ramSizeAddress] = 0x03       // 32KiB
	image[0x0042] = 0xAB

	cart, err := NewCartridgeWithData(image)
	if err != nil {
		t.Fatal(err)
	}
	if err := mmu.LoadCartridge(cart, newFakeClock()); err != nil {
		t.Fatal(err)
	}

	if _, ok := mmu.Controller().(*MBC3); !ok {
		t.Fatalf("controller is %T; want *MBC3", mmu.Controller())
	}
	if got := mmu.Read(0x0042); got != 0xAB {
		t.Errorf("ROM read through MBC = 0x%02X; want 0xAB", got)
	}

	// RAM round trip through the bus
	mmu.Write(0x0000, 0x0A)
	mmu.Write(0xA010, 0x77)
	if got := mmu.Read(0xA010); got != 0x77 {
		t.Errorf("external RAM read = 0x%02X; want 0x77", got)
	}
}
