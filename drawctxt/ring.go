package drawctxt

import (
	"github.com/sarchlab/ctxswitch/cmdstream"
	"github.com/sarchlab/ctxswitch/gpumem"
)

// Ring is the command stream that switch sequences are issued into. The
// submitter drains it and hands the words to the hardware.
type Ring struct {
	w *cmdstream.Writer
}

func newRing(buf *gpumem.Descriptor) *Ring {
	return &Ring{w: cmdstream.NewWriter(buf)}
}

// Buffer returns the ring buffer.
func (r *Ring) Buffer() *gpumem.Descriptor {
	return r.w.Buffer()
}

// Len returns the number of pending words.
func (r *Ring) Len() int {
	return r.w.Pos()
}

// Remaining returns the number of words that can still be issued.
func (r *Ring) Remaining() int {
	return r.w.Remaining()
}

// Words returns the pending words. The slice aliases the ring and is only
// valid until the next Drain.
func (r *Ring) Words() []uint32 {
	return r.w.Words()
}

// Drain returns a copy of the pending words and empties the ring.
func (r *Ring) Drain() []uint32 {
	words := append([]uint32(nil), r.w.Words()...)
	r.w.Reset()

	return words
}
