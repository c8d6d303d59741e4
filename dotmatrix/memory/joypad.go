package memory

import (
	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/bit"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
)

// Key is one of the eight joypad inputs.
type Key uint8

const (
	KeyRight Key = iota
	KeyLeft
	KeyUp
	KeyDown
	KeyA
	KeyB
	KeySelect
	KeyStart
)

// Joypad implements the P1 register. Bits 4-5 select which button group
// the low nibble reflects; pressed inputs read as 0. Any key going from
// released to pressed raises the joypad interrupt, whichever group is
// selected.
type Joypad struct {
	selection uint8 // writable bits 4-5 of P1
	buttons   uint8 // A/B/Select/Start, low 4 bits, 1 = released
	dpad      uint8 // Right/Left/Up/Down, low 4 bits, 1 = released

	irq *irq.Controller
}

func NewJoypad(ic *irq.Controller) *Joypad {
	return &Joypad{
		selection: 0x30,
		buttons:   0x0F,
		dpad:      0x0F,
		irq:       ic,
	}
}

// Reset releases every input.
func (j *Joypad) Reset() {
	j.selection = 0x30
	j.buttons = 0x0F
	j.dpad = 0x0F
}

// Read assembles P1 from the selection bits and input state. Bits 6-7
// always read as 1; with neither group selected the low nibble floats
// high.
func (j *Joypad) Read() byte {
	result := uint8(0xC0) | j.selection

	selectDpad := !bit.IsSet(4, j.selection)
	selectButtons := !bit.IsSet(5, j.selection)

	switch {
	case selectButtons && !selectDpad:
		result |= j.buttons
	case selectDpad && !selectButtons:
		result |= j.dpad
	case selectButtons && selectDpad:
		result |= j.buttons & j.dpad
	default:
		result |= 0x0F
	}

	return result
}

// Write stores the selection bits; everything else in P1 is read-only.
func (j *Joypad) Write(value byte) {
	j.selection = value & 0x30
}

// Press marks a key down, raising the joypad interrupt on the
// transition.
func (j *Joypad) Press(key Key) {
	before := j.buttons & j.dpad
	j.apply(key, true)
	after := j.buttons & j.dpad
	if before & ^after != 0 {
		j.irq.Raise(addr.JoypadInterrupt)
	}
}

// Release marks a key up.
func (j *Joypad) Release(key Key) {
	j.apply(key, false)
}

// SetState replaces the full input state in one call; set bits are
// pressed keys. New presses raise the joypad interrupt.
func (j *Joypad) SetState(pressed uint8) {
	for key := KeyRight; key <= KeyStart; key++ {
		if pressed&(1<<key) != 0 {
			j.Press(key)
		} else {
			j.Release(key)
		}
	}
}

func (j *Joypad) apply(key Key, down bool) {
	group := &j.buttons
	index := uint8(key) - 4
	if key <= KeyDown {
		group = &j.dpad
		index = uint8(key)
	}
	if down {
		*group = bit.Clear(index, *group)
	} else {
		*group = bit.Set(index, *group)
	}
}
