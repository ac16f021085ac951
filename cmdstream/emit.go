package cmdstream

import (
	"log"
	"math"

	"github.com/sarchlab/ctxswitch/gmem"
	"github.com/sarchlab/ctxswitch/gpumem"
	"github.com/sarchlab/ctxswitch/pm4"
)

// IndirectBufferLen is the number of words of an indirect buffer call.
const IndirectBufferLen = 3

// RegRangeLen is the number of words of a register range descriptor.
const RegRangeLen = 2

// EmitIndirectBuffer writes a call to the sequence span of src: the
// prefetch-disabled indirect buffer header, the device address of the first
// word and the word count.
func EmitIndirectBuffer(w *Writer, src *gpumem.Descriptor, span Span) error {
	if span.Start < 0 || span.End < span.Start || span.End > src.Len() {
		log.Panicf("indirect buffer [%d, %d) outside of %d-word buffer",
			span.Start, span.End, src.Len())
	}

	return w.Emit(
		pm4.HdrIndirectBufferPFD,
		gpumem.Translate(src, span.Start),
		uint32(span.Len()),
	)
}

// EmitRegRange writes the descriptor of the inclusive register range
// [start, end].
func EmitRegRange(w *Writer, start, end uint32) error {
	if end < start {
		log.Panicf("register range [0x%04x, 0x%04x] is reversed", start, end)
	}

	return w.Emit(pm4.Reg(start), end-start+1)
}

// Uint2Float returns the IEEE-754 single precision bits of u.
func Uint2Float(u uint32) uint32 {
	return math.Float32bits(float32(u))
}

// Quad vertex and texcoord buffer sizes in words.
const (
	QuadLen     = 12
	TexCoordLen = 8
)

var oneFloat = math.Float32bits(1)

// texCoords maps the quad corners to the whole texture.
var texCoords = [TexCoordLen]uint32{
	0, oneFloat,
	oneFloat, oneFloat,
	0, 0,
	oneFloat, 0,
}

// Quad is the geometry of a screen-filling rectangle.
type Quad struct {
	// Vertices holds four (x, y, z) positions.
	Vertices *gpumem.Descriptor

	// TexCoords holds four (s, t) texture coordinates.
	TexCoords *gpumem.Descriptor
}

// BuildQuad places the vertex and texture coordinate buffers of a quad that
// covers the surface at the cursor, fills them and advances past them.
func BuildQuad(w *Writer, s gmem.Surface) (Quad, error) {
	vtx, err := w.Reserve(QuadLen)
	if err != nil {
		return Quad{}, err
	}

	tex, err := w.Reserve(TexCoordLen)
	if err != nil {
		return Quad{}, err
	}

	q := Quad{
		Vertices:  w.Buffer().Sub(vtx, QuadLen),
		TexCoords: w.Buffer().Sub(tex, TexCoordLen),
	}

	width := Uint2Float(s.Width)
	height := Uint2Float(s.Height)

	copy(q.Vertices.Words, []uint32{
		0, height, oneFloat,
		width, height, oneFloat,
		0, 0, oneFloat,
		width, 0, oneFloat,
	})
	copy(q.TexCoords.Words, texCoords[:])

	return q, nil
}
