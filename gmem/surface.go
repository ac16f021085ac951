// Package gmem computes the geometry of the off-chip surfaces used to shadow
// on-chip tile memory (GMEM).
package gmem

import (
	"log"

	"github.com/sarchlab/ctxswitch/pm4"
)

// MinDimension is the smallest width or height of a shadow surface. Tiled
// textures need both to be multiples of 32.
const MinDimension = 64

// BytesPerPixel is the size of a pixel of the fixed shadow format.
const BytesPerPixel = 4

// MaxCapacity is the largest GMEM capacity whose shadow surface size fits in
// 32 bits.
const MaxCapacity = 1 << 31

// Surface describes a shadow surface able to hold the whole GMEM.
// A 256 KB GMEM is stored as 4 bytes-per-pixel x 256 pixels/row x 256 rows.
type Surface struct {
	Format    uint32 // always pm4.ColorX8888
	Width     uint32
	Height    uint32
	Pitch     uint32
	GMEMPitch uint32
	Size      uint32 // bytes
}

// Calc returns the smallest squarish power-of-two surface that holds
// capacity bytes of GMEM. Capacities above MaxCapacity are a programming
// error.
func Calc(capacity uint32) Surface {
	if capacity > MaxCapacity {
		log.Panicf("gmem capacity %d exceeds %d bytes", capacity, MaxCapacity)
	}

	w, h := uint32(MinDimension), uint32(MinDimension)

	words := (uint64(capacity) + 3) / 4

	for uint64(w)*uint64(h) < words {
		if w < h {
			w *= 2
		} else {
			h *= 2
		}
	}

	return Surface{
		Format:    pm4.ColorX8888,
		Width:     w,
		Height:    h,
		Pitch:     w,
		GMEMPitch: w,
		Size:      w * h * BytesPerPixel,
	}
}

// Pixels returns the number of pixels of the surface.
func (s Surface) Pixels() uint32 {
	return s.Pitch * s.Height
}
