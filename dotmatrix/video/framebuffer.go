package video

// GBColor is a host-space pixel in 0xAARRGGBB order.
type GBColor uint32

const (
	WhiteColor     GBColor = 0xFFFFFFFF
	LightGreyColor GBColor = 0xFF989898
	DarkGreyColor  GBColor = 0xFF4C4C4C
	BlackColor     GBColor = 0xFF000000
)

const (
	// FramebufferWidth is the visible LCD width in pixels.
	FramebufferWidth = 160
	// FramebufferHeight is the visible LCD height in pixels.
	FramebufferHeight = 144
)

// FrameBuffer is one 160x144 image, row-major from the top-left.
type FrameBuffer struct {
	width  uint
	height uint
	buffer []uint32
}

// NewFrameBuffer creates a cleared LCD-sized frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		width:  FramebufferWidth,
		height: FramebufferHeight,
		buffer: make([]uint32, FramebufferWidth*FramebufferHeight),
	}
}

func (fb *FrameBuffer) GetPixel(x, y uint) uint32 {
	return fb.buffer[y*fb.width+x]
}

func (fb *FrameBuffer) SetPixel(x, y uint, color GBColor) {
	fb.buffer[y*fb.width+x] = uint32(color)
}

// Clear fills the buffer with the given color.
func (fb *FrameBuffer) Clear(color GBColor) {
	for i := range fb.buffer {
		fb.buffer[i] = uint32(color)
	}
}

// ToSlice exposes the raw pixels. The caller must not mutate them.
func (fb *FrameBuffer) ToSlice() []uint32 {
	return fb.buffer
}
