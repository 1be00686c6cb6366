package frame

// Frame is a single decoded 2D image plane from a time-series stack.
// Pix is row-major (Y then X), float32 to match the upstream decode
// pipeline. The zero value is an empty frame.
type Frame struct {
	// Index is the time index of this frame within its stack.
	Index int
	// Width and Height are the pixel dimensions of Pix.
	Width  int
	Height int
	// Pix holds the pixel payload, len == Width*Height.
	Pix []float32
}

// NBytes returns the byte footprint of the pixel payload.
func (f Frame) NBytes() int64 {
	return int64(len(f.Pix)) * 4
}

// At returns the pixel at (x, y). Out-of-range coordinates return 0.
func (f Frame) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	return f.Pix[y*f.Width+x]
}

// BlockReader reads a contiguous block of decoded frames from an image
// source. It returns frames ordered by ascending index covering
// [start, stop), clipped to the stack's actual extent, for the given
// depth/z selection. Implementations are supplied by the image-source
// collaborator and may block on I/O.
type BlockReader func(start, stop, selection int) ([]Frame, error)
