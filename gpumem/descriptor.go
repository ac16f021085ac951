// Package gpumem models GPU-addressable, host-mapped memory buffers and the
// translation between a buffer's host view and its device addresses.
package gpumem

import (
	"log"
)

// WordSize is the size of a command word in bytes.
const WordSize = 4

// A Descriptor is a host-mapped buffer that the GPU can address. The host
// view is a slice of 32-bit words; the device view starts at GPUAddr.
type Descriptor struct {
	// Words is the host mapping of the buffer.
	Words []uint32

	// GPUAddr is the device address of Words[0].
	GPUAddr uint32

	// PhysAddr is the physical address backing the buffer.
	PhysAddr uint64

	parent *Descriptor
}

// Size returns the size of the buffer in bytes.
func (d *Descriptor) Size() uint32 {
	return uint32(len(d.Words)) * WordSize
}

// Len returns the size of the buffer in words.
func (d *Descriptor) Len() int {
	return len(d.Words)
}

// Sub returns a descriptor covering n words starting at word offset. The
// returned descriptor shares memory with d.
func (d *Descriptor) Sub(offset, n int) *Descriptor {
	if offset < 0 || n < 0 || offset+n > len(d.Words) {
		log.Panicf("sub-buffer [%d, %d) outside of %d-word buffer",
			offset, offset+n, len(d.Words))
	}

	return &Descriptor{
		Words:    d.Words[offset : offset+n : offset+n],
		GPUAddr:  Translate(d, offset),
		PhysAddr: d.PhysAddr + uint64(offset*WordSize),
		parent:   d,
	}
}

// Parent returns the descriptor this one was carved out of, or nil.
func (d *Descriptor) Parent() *Descriptor {
	return d.parent
}

// Contains returns true if the device address falls inside the buffer.
func (d *Descriptor) Contains(gpuAddr uint32) bool {
	return gpuAddr >= d.GPUAddr && gpuAddr-d.GPUAddr < d.Size()
}

// Translate returns the device address of the word at the given offset of
// the descriptor's host mapping. An offset equal to the buffer length is
// allowed so that the end of a range can be translated. Any other offset
// outside the buffer is a programming error.
func Translate(d *Descriptor, wordOffset int) uint32 {
	if wordOffset < 0 || wordOffset > len(d.Words) {
		log.Panicf("word offset %d outside of %d-word buffer at 0x%08x",
			wordOffset, len(d.Words), d.GPUAddr)
	}

	return d.GPUAddr + uint32(wordOffset*WordSize)
}

// TranslateByte is the byte-granular form of Translate.
func TranslateByte(d *Descriptor, byteOffset uint32) uint32 {
	if byteOffset > d.Size() {
		log.Panicf("byte offset %d outside of %d-byte buffer at 0x%08x",
			byteOffset, d.Size(), d.GPUAddr)
	}

	return d.GPUAddr + byteOffset
}
