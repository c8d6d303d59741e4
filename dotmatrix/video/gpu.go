package video

import (
	"github.com/mfava/dotmatrix/dotmatrix/addr"
	"github.com/mfava/dotmatrix/dotmatrix/bit"
	"github.com/mfava/dotmatrix/dotmatrix/irq"
)

// Mode is the PPU state machine mode, numbered as in STAT bits 0-1.
type Mode uint8

const (
	ModeHBlank  Mode = 0
	ModeVBlank  Mode = 1
	ModeOAMScan Mode = 2
	ModeDraw    Mode = 3
)

const (
	oamScanDots  = 80
	drawDots     = 172
	hblankDots   = 204
	scanlineDots = oamScanDots + drawDots + hblankDots

	visibleLines = 144
	totalLines   = 154

	// dmaDots is the bus-locked duration of an OAM DMA transfer.
	dmaDots = 640
)

// LCDC bit positions.
const (
	lcdEnable        = 7
	windowMapSelect  = 6
	windowEnable     = 5
	tileDataSelect   = 4
	bgMapSelect      = 3
	spriteSizeSelect = 2
	spriteEnable     = 1
	bgEnable         = 0
)

// Bus is the PPU's view of the memory bus: the DMA exclusion gate and
// the lock-bypassing read used to fetch DMA source bytes.
type Bus interface {
	Lock()
	Unlock()
	DMARead(address uint16) byte
}

var shadeColors = [4]GBColor{WhiteColor, LightGreyColor, DarkGreyColor, BlackColor}

// GPU owns VRAM, OAM, the LCD register file and the two framebuffers,
// and runs the per-scanline mode machine.
type GPU struct {
	vram [0x2000]byte
	oam  [0xA0]byte

	lcdc, stat, scy, scx byte
	ly, lyc              byte
	dmaReg               byte
	bgp, obp0, obp1      byte
	wy, wx               byte

	bgPalette  [4]GBColor
	objPalette [2][4]GBColor

	mode      Mode
	modeClock int
	statLine  bool

	dmaActive bool
	dmaClock  int
	dmaSource uint16

	front      *FrameBuffer
	back       *FrameBuffer
	frameIndex uint64
	skipFrame  bool

	// per-line BG color indices, for sprite background priority
	lineIndices [FramebufferWidth]uint8

	irq *irq.Controller
	bus Bus
}

func NewGPU(ic *irq.Controller, bus Bus) *GPU {
	g := &GPU{
		irq:   ic,
		bus:   bus,
		front: NewFrameBuffer(),
		back:  NewFrameBuffer(),
	}
	g.Reset()
	return g
}

// Reset restores the pre-boot state: LCD off, counters cleared, both
// buffers white. Register post-boot values are written through the bus
// by the CPU reset sequence.
func (g *GPU) Reset() {
	for i := range g.vram {
		g.vram[i] = 0
	}
	for i := range g.oam {
		g.oam[i] = 0
	}
	g.lcdc, g.stat, g.scy, g.scx = 0, 0, 0, 0
	g.ly, g.lyc, g.dmaReg = 0, 0, 0
	g.bgp, g.obp0, g.obp1 = 0, 0, 0
	g.wy, g.wx = 0, 0
	g.recomputePalettes()
	g.mode = ModeOAMScan
	g.modeClock = 0
	g.statLine = false
	g.dmaActive = false
	g.dmaClock = 0
	g.frameIndex = 0
	g.skipFrame = false
	g.front.Clear(WhiteColor)
	g.back.Clear(WhiteColor)
}

// Frame returns the last presented frame. The buffer is owned by the
// PPU and valid until the next swap.
func (g *GPU) Frame() *FrameBuffer {
	return g.front
}

// FrameIndex increments once per presented frame.
func (g *GPU) FrameIndex() uint64 {
	return g.frameIndex
}

// DMAActive reports whether an OAM DMA transfer is in flight.
func (g *GPU) DMAActive() bool {
	return g.dmaActive
}

func (g *GPU) lcdEnabled() bool {
	return bit.IsSet(lcdEnable, g.lcdc)
}

// Tick advances the PPU by the given number of dots. OAM DMA progresses
// regardless of the LCD state and always runs to completion.
func (g *GPU) Tick(dots int) {
	if g.dmaActive {
		g.dmaClock += dots
		if g.dmaClock >= dmaDots {
			g.completeDMA()
		}
	}

	if !g.lcdEnabled() {
		return
	}

	g.modeClock += dots
	for {
		switch g.mode {
		case ModeOAMScan:
			if g.modeClock < oamScanDots {
				return
			}
			g.modeClock -= oamScanDots
			g.setMode(ModeDraw)
		case ModeDraw:
			if g.modeClock < drawDots {
				return
			}
			g.modeClock -= drawDots
			g.renderScanline()
			g.setMode(ModeHBlank)
		case ModeHBlank:
			if g.modeClock < hblankDots {
				return
			}
			g.modeClock -= hblankDots
			g.setLY(g.ly + 1)
			if g.ly == visibleLines {
				g.setMode(ModeVBlank)
				g.irq.Raise(addr.VBlankInterrupt)
			} else {
				g.setMode(ModeOAMScan)
			}
		case ModeVBlank:
			if g.modeClock < scanlineDots {
				return
			}
			g.modeClock -= scanlineDots
			g.setLY(g.ly + 1)
			if g.ly == totalLines {
				g.presentFrame()
				g.setLY(0)
				g.setMode(ModeOAMScan)
			}
		}
	}
}

func (g *GPU) presentFrame() {
	if g.skipFrame {
		g.skipFrame = false
		return
	}
	g.front, g.back = g.back, g.front
	g.frameIndex++
}

// setMode and setLY funnel every state change through the STAT line
// recomputation so the interrupt fires on rising edges only.
func (g *GPU) setMode(mode Mode) {
	g.mode = mode
	g.updateSTATLine()
}

func (g *GPU) setLY(line byte) {
	g.ly = line
	g.updateSTATLine()
}

func (g *GPU) updateSTATLine() {
	line := (g.ly == g.lyc && bit.IsSet(6, g.stat)) ||
		(g.mode == ModeOAMScan && bit.IsSet(5, g.stat)) ||
		(g.mode == ModeVBlank && bit.IsSet(4, g.stat)) ||
		(g.mode == ModeHBlank && bit.IsSet(3, g.stat))

	if line && !g.statLine {
		g.irq.Raise(addr.LCDSTATInterrupt)
	}
	g.statLine = line
}

// startDMA locks the bus and begins the 160-byte OAM transfer; the
// copy itself lands atomically when the transfer window elapses.
func (g *GPU) startDMA(value byte) {
	g.dmaReg = value
	g.dmaSource = uint16(value) << 8
	g.dmaActive = true
	g.dmaClock = 0
	g.bus.Lock()
}

func (g *GPU) completeDMA() {
	for i := uint16(0); i < uint16(len(g.oam)); i++ {
		g.oam[i] = g.bus.DMARead(g.dmaSource + i)
	}
	g.dmaActive = false
	g.dmaClock = 0
	g.bus.Unlock()
}

// ReadVRAM serves CPU-side VRAM reads, blocked while the PPU is
// drawing.
func (g *GPU) ReadVRAM(address uint16) byte {
	if g.lcdEnabled() && g.mode == ModeDraw {
		return 0xFF
	}
	return g.vram[address-0x8000]
}

func (g *GPU) WriteVRAM(address uint16, value byte) {
	g.vram[address-0x8000] = value
}

// ReadOAM serves CPU-side OAM reads, blocked during OAM scan and draw.
func (g *GPU) ReadOAM(address uint16) byte {
	if g.lcdEnabled() && (g.mode == ModeOAMScan || g.mode == ModeDraw) {
		return 0xFF
	}
	return g.oam[address-addr.OAMStart]
}

func (g *GPU) WriteOAM(address uint16, value byte) {
	g.oam[address-addr.OAMStart] = value
}

// ReadRegister serves the LCD register file 0xFF40-0xFF4B.
func (g *GPU) ReadRegister(address uint16) byte {
	switch address {
	case addr.LCDC:
		return g.lcdc
	case addr.STAT:
		// bit 7 unused reads 1; low 3 bits are live mode/coincidence
		v := 0x80 | g.stat&0x78
		if g.ly == g.lyc {
			v |= 0x04
		}
		if g.lcdEnabled() {
			v |= byte(g.mode)
		}
		return v
	case addr.SCY:
		return g.scy
	case addr.SCX:
		return g.scx
	case addr.LY:
		if !g.lcdEnabled() {
			return 0
		}
		return g.ly
	case addr.LYC:
		return g.lyc
	case addr.DMA:
		return g.dmaReg
	case addr.BGP:
		return g.bgp
	case addr.OBP0:
		return g.obp0
	case addr.OBP1:
		return g.obp1
	case addr.WY:
		return g.wy
	case addr.WX:
		return g.wx
	}
	return 0xFF
}

// WriteRegister serves the LCD register file 0xFF40-0xFF4B.
func (g *GPU) WriteRegister(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		wasEnabled := g.lcdEnabled()
		g.lcdc = value
		if wasEnabled && !g.lcdEnabled() {
			// state machine halts; externally LY=0 and mode=HBlank
			g.ly = 0
			g.modeClock = 0
			g.mode = ModeOAMScan
			g.statLine = false
		} else if !wasEnabled && g.lcdEnabled() {
			// restart at OAM scan, blank for one frame
			g.ly = 0
			g.modeClock = 0
			g.mode = ModeOAMScan
			g.skipFrame = true
			g.updateSTATLine()
		}
	case addr.STAT:
		g.stat = value & 0x78
		g.updateSTATLine()
	case addr.SCY:
		g.scy = value
	case addr.SCX:
		g.scx = value
	case addr.LY:
		// read-only
	case addr.LYC:
		g.lyc = value
		g.updateSTATLine()
	case addr.DMA:
		g.startDMA(value)
	case addr.BGP:
		g.bgp = value
		g.recomputePalettes()
	case addr.OBP0:
		g.obp0 = value
		g.recomputePalettes()
	case addr.OBP1:
		g.obp1 = value
		g.recomputePalettes()
	case addr.WY:
		g.wy = value
	case addr.WX:
		g.wx = value
	}
}

func (g *GPU) recomputePalettes() {
	for i := 0; i < 4; i++ {
		g.bgPalette[i] = shadeColors[(g.bgp>>(2*i))&0x03]
		g.objPalette[0][i] = shadeColors[(g.obp0>>(2*i))&0x03]
		g.objPalette[1][i] = shadeColors[(g.obp1>>(2*i))&0x03]
	}
}

// tileRowAt reads the two bitplane bytes of one tile row, resolving the
// tile index through the LCDC-selected data area (unsigned at 0x8000 or
// signed around 0x9000).
func (g *GPU) tileRowAt(tileIndex byte, row uint16) (lo, hi byte) {
	var base uint16
	if bit.IsSet(tileDataSelect, g.lcdc) {
		base = addr.TileData0 + uint16(tileIndex)*16
	} else {
		base = uint16(int(addr.TileData2) + int(int8(tileIndex))*16)
	}
	offset := base - addr.TileData0 + row*2
	return g.vram[offset], g.vram[offset+1]
}

func (g *GPU) renderScanline() {
	for i := range g.lineIndices {
		g.lineIndices[i] = 0
	}
	if bit.IsSet(bgEnable, g.lcdc) {
		g.renderBackground()
		if bit.IsSet(windowEnable, g.lcdc) {
			g.renderWindow()
		}
	}
	if bit.IsSet(spriteEnable, g.lcdc) {
		g.renderSprites()
	}
}

func (g *GPU) renderBackground() {
	mapBase := addr.TileMap0
	if bit.IsSet(bgMapSelect, g.lcdc) {
		mapBase = addr.TileMap1
	}

	y := g.ly + g.scy // 8-bit wrap
	tileRow := uint16(y) / 8

	for x := 0; x < FramebufferWidth; x++ {
		xx := byte(x) + g.scx
		tileCol := uint16(xx) / 8

		tileIndex := g.vram[mapBase-0x8000+tileRow*32+tileCol]
		lo, hi := g.tileRowAt(tileIndex, uint16(y)%8)

		bitPos := 7 - xx%8
		colorIndex := (hi>>bitPos&1)<<1 | lo>>bitPos&1
		g.lineIndices[x] = colorIndex
		g.back.SetPixel(uint(x), uint(g.ly), g.bgPalette[colorIndex])
	}
}

func (g *GPU) renderWindow() {
	if g.ly < g.wy || g.wx > 166 {
		return
	}
	mapBase := addr.TileMap0
	if bit.IsSet(windowMapSelect, g.lcdc) {
		mapBase = addr.TileMap1
	}

	y := uint16(g.ly - g.wy)
	tileRow := y / 8
	startX := int(g.wx) - 7

	for x := max(startX, 0); x < FramebufferWidth; x++ {
		wxOff := uint16(x - startX)
		tileIndex := g.vram[mapBase-0x8000+tileRow*32+wxOff/8]
		lo, hi := g.tileRowAt(tileIndex, y%8)

		bitPos := 7 - byte(wxOff%8)
		colorIndex := (hi>>bitPos&1)<<1 | lo>>bitPos&1
		g.lineIndices[x] = colorIndex
		g.back.SetPixel(uint(x), uint(g.ly), g.bgPalette[colorIndex])
	}
}

func (g *GPU) renderSprites() {
	height := 8
	if bit.IsSet(spriteSizeSelect, g.lcdc) {
		height = 16
	}

	var drawn [FramebufferWidth]bool
	count := 0

	for i := 0; i < len(g.oam) && count < 10; i += 4 {
		spriteY := int(g.oam[i]) - 16
		line := int(g.ly) - spriteY
		if line < 0 || line >= height {
			continue
		}
		count++

		spriteX := int(g.oam[i+1]) - 8
		tileIndex := g.oam[i+2]
		attrs := g.oam[i+3]

		if bit.IsSet(6, attrs) { // vertical flip
			line = height - 1 - line
		}
		if height == 16 {
			tileIndex &= 0xFE
		}

		rowBase := uint16(tileIndex)*16 + uint16(line)*2
		lo, hi := g.vram[rowBase], g.vram[rowBase+1]

		palette := &g.objPalette[0]
		if bit.IsSet(4, attrs) {
			palette = &g.objPalette[1]
		}
		behindBG := bit.IsSet(7, attrs)

		for px := 0; px < 8; px++ {
			x := spriteX + px
			if x < 0 || x >= FramebufferWidth || drawn[x] {
				continue
			}
			bitPos := byte(7 - px)
			if bit.IsSet(5, attrs) { // horizontal flip
				bitPos = byte(px)
			}
			colorIndex := (hi>>bitPos&1)<<1 | lo>>bitPos&1
			if colorIndex == 0 {
				continue // transparent
			}
			if behindBG && g.lineIndices[x] != 0 {
				continue
			}
			drawn[x] = true
			g.back.SetPixel(uint(x), uint(g.ly), palette[colorIndex])
		}
	}
}
