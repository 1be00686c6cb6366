package cache

import "fmt"

// Rect is a crop rectangle in image coordinates.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// PrimaryKey identifies a cached base projection. Equality is
// structural; keys are used directly as map keys.
type PrimaryKey struct {
	// ImageID identifies the owning image stack.
	ImageID int64
	// Kind is the projection kind, e.g. "mean" or "std".
	Kind string
	// Crop is the rectangle the projection was computed over.
	Crop Rect
	// TimeIndex and DepthIndex are the T/Z selection the projection
	// belongs to.
	TimeIndex  int
	DepthIndex int
}

// String returns a stable textual form of the key, used by Store.
func (k PrimaryKey) String() string {
	return fmt.Sprintf("%d/%s/%g,%g,%g,%g/t%d/z%d",
		k.ImageID, k.Kind, k.Crop.X, k.Crop.Y, k.Crop.W, k.Crop.H, k.TimeIndex, k.DepthIndex)
}

// PyramidKey identifies a cached pyramid level of a projection.
type PyramidKey struct {
	ImageID int64
	Kind    string
	// Level is the pyramid level, Factor its integer downsample factor.
	Level  int
	Factor int
	Crop   Rect
	// Selection is the T or Z index the level was derived from.
	Selection int
}
