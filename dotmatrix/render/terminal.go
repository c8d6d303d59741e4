// Package render contains the reference terminal frontend.
package render

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/mfava/dotmatrix/dotmatrix"
	"github.com/mfava/dotmatrix/dotmatrix/video"
)

const (
	scaleX    = 2
	scaleY    = 1
	frameTime = time.Second / 60
)

// darkest to lightest, indexed by pixel luminance bucket
var shadeChars = []rune{'█', '▓', '▒', '░'}

// TerminalRenderer draws each pixel as a shade-block character two
// cells wide and maps the keyboard onto the joypad.
type TerminalRenderer struct {
	screen  tcell.Screen
	machine *dotmatrix.Machine
	buttons dotmatrix.Buttons
	running bool
}

func NewTerminalRenderer(machine *dotmatrix.Machine) (*TerminalRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}

	return &TerminalRenderer{
		screen:  screen,
		machine: machine,
		running: true,
	}, nil
}

// Run drives the machine at 60 fps until interrupted or ESC is
// pressed.
func (t *TerminalRenderer) Run() error {
	defer func() {
		slog.Info("finishing terminal")
		t.screen.Fini()
	}()

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	go t.handleInput()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for t.running {
		select {
		case <-ticker.C:
			t.machine.RunFrame()
			t.render()
			t.screen.Show()
		case <-signals:
			slog.Info("received signal to stop")
			return nil
		}
	}

	return nil
}

func (t *TerminalRenderer) render() {
	frame := t.machine.Frame()
	for y := 0; y < video.FramebufferHeight; y += scaleY {
		for x := 0; x < video.FramebufferWidth; x++ {
			ch := shadeChars[shadeIndex(frame.GetPixel(uint(x), uint(y)))]
			for sx := 0; sx < scaleX; sx++ {
				t.screen.SetContent(x*scaleX+sx, y/scaleY, ch, nil, tcell.StyleDefault)
			}
		}
	}
}

// shadeIndex buckets an ARGB pixel into one of the four DMG shades.
func shadeIndex(pixel uint32) int {
	switch video.GBColor(pixel) {
	case video.BlackColor:
		return 0
	case video.DarkGreyColor:
		return 1
	case video.LightGreyColor:
		return 2
	default:
		return 3
	}
}

func (t *TerminalRenderer) handleInput() {
	for t.running {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
				t.running = false
				return
			}
			if button, ok := keyButton(ev); ok {
				// tcell reports no key-up events; treat each press as
				// a tap
				t.buttons |= button
				t.machine.SetInput(t.buttons)
				go func(b dotmatrix.Buttons) {
					time.Sleep(2 * frameTime)
					t.buttons &^= b
					t.machine.SetInput(t.buttons)
				}(button)
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func keyButton(ev *tcell.EventKey) (dotmatrix.Buttons, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return dotmatrix.ButtonUp, true
	case tcell.KeyDown:
		return dotmatrix.ButtonDown, true
	case tcell.KeyLeft:
		return dotmatrix.ButtonLeft, true
	case tcell.KeyRight:
		return dotmatrix.ButtonRight, true
	case tcell.KeyEnter:
		return dotmatrix.ButtonStart, true
	}
	switch ev.Rune() {
	case 'z', 'Z':
		return dotmatrix.ButtonB, true
	case 'x', 'X':
		return dotmatrix.ButtonA, true
	case ' ':
		return dotmatrix.ButtonSelect, true
	}
	return 0, false
}
