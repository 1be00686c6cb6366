package frame

// LevelFactor returns the integer downsample factor for a pyramid level.
// Level 0 (or below) is the full-resolution base.
func LevelFactor(level int) int {
	if level <= 0 {
		return 1
	}
	return 1 << level
}

// DownsampleMeanPool downsamples a frame by an integer factor using mean
// pooling. Mean pooling preserves intensity statistics better than naive
// subsampling, which matters when the result feeds thresholding or
// measurement downstream. A ragged edge that does not divide evenly by
// the factor is trimmed. Factors below 1 are clamped to 1, and factor 1
// returns the input unchanged.
func DownsampleMeanPool(f Frame, factor int) Frame {
	if factor < 1 {
		factor = 1
	}
	if factor == 1 {
		return f
	}
	h := (f.Height / factor) * factor
	w := (f.Width / factor) * factor
	if h == 0 || w == 0 {
		return f
	}
	outW := w / factor
	outH := h / factor
	out := make([]float32, outW*outH)
	norm := float32(factor * factor)
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			var sum float32
			for dy := 0; dy < factor; dy++ {
				row := (oy*factor + dy) * f.Width
				for dx := 0; dx < factor; dx++ {
					sum += f.Pix[row+ox*factor+dx]
				}
			}
			out[oy*outW+ox] = sum / norm
		}
	}
	return Frame{Index: f.Index, Width: outW, Height: outH, Pix: out}
}
