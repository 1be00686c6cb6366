package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func gradient(width, height int) Frame {
	pix := make([]float32, width*height)
	for i := range pix {
		pix[i] = float32(i)
	}
	return Frame{Width: width, Height: height, Pix: pix}
}

func TestNBytes(t *testing.T) {
	f := gradient(200, 200)
	assert.EqualValues(t, 160000, f.NBytes())
	assert.EqualValues(t, 0, Frame{}.NBytes())
}

func TestAtBounds(t *testing.T) {
	f := gradient(4, 3)
	assert.EqualValues(t, 0, f.At(0, 0))
	assert.EqualValues(t, 5, f.At(1, 1))
	assert.EqualValues(t, 0, f.At(-1, 0))
	assert.EqualValues(t, 0, f.At(4, 0))
	assert.EqualValues(t, 0, f.At(0, 3))
}

func TestLevelFactor(t *testing.T) {
	assert.Equal(t, 1, LevelFactor(-1))
	assert.Equal(t, 1, LevelFactor(0))
	assert.Equal(t, 2, LevelFactor(1))
	assert.Equal(t, 8, LevelFactor(3))
}

func TestDownsampleMeanPool(t *testing.T) {
	f := Frame{
		Index:  7,
		Width:  4,
		Height: 2,
		Pix:    []float32{0, 2, 4, 6, 8, 10, 12, 14},
	}
	out := DownsampleMeanPool(f, 2)
	assert.Equal(t, 7, out.Index)
	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 1, out.Height)
	// Each output pixel is the mean of a 2x2 block.
	assert.Equal(t, []float32{5, 9}, out.Pix)
}

func TestDownsampleTrimsRaggedEdge(t *testing.T) {
	f := gradient(5, 5)
	out := DownsampleMeanPool(f, 2)
	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 2, out.Height)
}

func TestDownsampleDegenerate(t *testing.T) {
	f := gradient(4, 4)
	// Factor 1 and clamped factors return the input unchanged.
	assert.Equal(t, f, DownsampleMeanPool(f, 1))
	assert.Equal(t, f, DownsampleMeanPool(f, 0))
	// Factor larger than the frame leaves it untouched.
	tiny := gradient(2, 2)
	assert.Equal(t, tiny, DownsampleMeanPool(tiny, 4))
}
