// Package cmdstream builds PM4 command streams inside GPU buffers.
//
// A Writer is a bounded cursor over a buffer. The emit helpers compose the
// primitives that the context switch sequences are made of: indirect buffer
// calls, register range descriptors and the screen-filling quad used to blit
// tile memory.
package cmdstream

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/ctxswitch/gpumem"
)

// ErrOverflow is returned when a write would run past the end of the buffer.
var ErrOverflow = errors.New("command buffer overflow")

// Span is a half-open [Start, End) range of word offsets inside a buffer.
type Span struct {
	Start int
	End   int
}

// Len returns the number of words in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Empty returns true if the span holds no words.
func (s Span) Empty() bool {
	return s.End <= s.Start
}

// Writer appends command words to a buffer.
type Writer struct {
	buf *gpumem.Descriptor
	pos int
}

// NewWriter creates a Writer positioned at the start of buf.
func NewWriter(buf *gpumem.Descriptor) *Writer {
	return &Writer{buf: buf}
}

// NewWriterAt creates a Writer positioned at word offset pos of buf.
func NewWriterAt(buf *gpumem.Descriptor, pos int) *Writer {
	w := &Writer{buf: buf}
	w.Seek(pos)

	return w
}

// Buffer returns the buffer being written.
func (w *Writer) Buffer() *gpumem.Descriptor {
	return w.buf
}

// Pos returns the word offset of the cursor.
func (w *Writer) Pos() int {
	return w.pos
}

// Remaining returns the number of words that can still be written.
func (w *Writer) Remaining() int {
	return w.buf.Len() - w.pos
}

// GPUAddr returns the device address of the cursor.
func (w *Writer) GPUAddr() uint32 {
	return gpumem.Translate(w.buf, w.pos)
}

// Seek moves the cursor to word offset pos.
func (w *Writer) Seek(pos int) {
	if pos < 0 || pos > w.buf.Len() {
		log.Panicf("seek to %d outside of %d-word buffer", pos, w.buf.Len())
	}

	w.pos = pos
}

// Reset moves the cursor back to the start of the buffer.
func (w *Writer) Reset() {
	w.pos = 0
}

// Emit appends words. Nothing is written if they do not all fit.
func (w *Writer) Emit(words ...uint32) error {
	if len(words) > w.Remaining() {
		return fmt.Errorf("%w: %d words at offset %d, %d remaining",
			ErrOverflow, len(words), w.pos, w.Remaining())
	}

	copy(w.buf.Words[w.pos:], words)
	w.pos += len(words)

	return nil
}

// Reserve zeroes the next n words, advances past them and returns the offset
// of the first one. Reserved words are filled later with Patch.
func (w *Writer) Reserve(n int) (int, error) {
	if n > w.Remaining() {
		return 0, fmt.Errorf("%w: reserving %d words at offset %d, %d remaining",
			ErrOverflow, n, w.pos, w.Remaining())
	}

	start := w.pos
	clear(w.buf.Words[start : start+n])
	w.pos += n

	return start, nil
}

// Patch overwrites an already written word.
func (w *Writer) Patch(offset int, word uint32) {
	if offset < 0 || offset >= w.pos {
		log.Panicf("patch at %d outside of written range [0, %d)", offset, w.pos)
	}

	w.buf.Words[offset] = word
}

// Since returns the span from start to the cursor.
func (w *Writer) Since(start int) Span {
	return Span{Start: start, End: w.pos}
}

// Words returns the words written so far.
func (w *Writer) Words() []uint32 {
	return w.buf.Words[:w.pos]
}
