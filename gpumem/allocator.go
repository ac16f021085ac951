package gpumem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrOutOfMemory is returned when an allocation cannot be satisfied.
var ErrOutOfMemory = errors.New("out of GPU memory")

// An Allocator hands out GPU-addressable buffers mapped into a page table.
type Allocator interface {
	// Alloc returns a zeroed buffer of at least size bytes mapped into pt.
	Alloc(pt PageTable, size uint32) (*Descriptor, error)

	// Free releases a buffer returned by Alloc.
	Free(d *Descriptor)
}

type region struct {
	start uint32
	size  uint32
}

type allocation struct {
	pt   PageTable
	desc *Descriptor
}

// SimAllocator is an Allocator that carves page-aligned buffers out of a
// fixed device address window. Buffers are host memory; when the page table
// is a *VMPageTable the pages are inserted into it.
type SimAllocator struct {
	mu sync.Mutex

	base     uint32
	size     uint32
	physBase uint64

	free []region
	live map[uint32]allocation
}

// NewSimAllocator creates an allocator managing [base, base+size) of device
// address space. physBase is the physical address of base.
func NewSimAllocator(base, size uint32, physBase uint64) *SimAllocator {
	return &SimAllocator{
		base:     base,
		size:     size,
		physBase: physBase,
		free:     []region{{start: base, size: size}},
		live:     make(map[uint32]allocation),
	}
}

func alignToPage(size uint32) uint32 {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// Alloc allocates a buffer with first-fit placement.
func (a *SimAllocator) Alloc(pt PageTable, size uint32) (*Descriptor, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero-sized allocation")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	need := alignToPage(size)

	for i, r := range a.free {
		if r.size < need {
			continue
		}

		a.free[i].start += need
		a.free[i].size -= need
		if a.free[i].size == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}

		d := &Descriptor{
			Words:    make([]uint32, size/WordSize+boolToWord(size%WordSize != 0)),
			GPUAddr:  r.start,
			PhysAddr: a.physBase + uint64(r.start-a.base),
		}

		if vpt, ok := pt.(*VMPageTable); ok {
			vpt.Map(d.GPUAddr, d.PhysAddr, need)
		}

		a.live[d.GPUAddr] = allocation{pt: pt, desc: d}

		return d, nil
	}

	return nil, fmt.Errorf("%w: %d bytes requested", ErrOutOfMemory, size)
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}

// Free returns the buffer's pages to the allocator. Freeing a buffer that
// is not live is ignored.
func (a *SimAllocator) Free(d *Descriptor) {
	if d == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	alloc, ok := a.live[d.GPUAddr]
	if !ok || alloc.desc != d {
		return
	}

	delete(a.live, d.GPUAddr)

	size := alignToPage(d.Size())
	if vpt, ok := alloc.pt.(*VMPageTable); ok {
		vpt.Unmap(d.GPUAddr, size)
	}

	a.free = append(a.free, region{start: d.GPUAddr, size: size})
	a.coalesce()
}

func (a *SimAllocator) coalesce() {
	sort.Slice(a.free, func(i, j int) bool {
		return a.free[i].start < a.free[j].start
	})

	merged := a.free[:1]
	for _, r := range a.free[1:] {
		last := &merged[len(merged)-1]
		if last.start+last.size == r.start {
			last.size += r.size
			continue
		}

		merged = append(merged, r)
	}

	a.free = merged
}

// InUse returns the number of bytes currently allocated, in whole pages.
func (a *SimAllocator) InUse() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total uint32
	for _, r := range a.free {
		total += r.size
	}

	return a.size - total
}

// LiveCount returns the number of live allocations.
func (a *SimAllocator) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.live)
}
