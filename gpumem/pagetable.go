package gpumem

import (
	"github.com/sarchlab/akita/v4/mem/vm"
)

// PageSize is the size of a GPU page.
const PageSize = 1 << Log2PageSize

// Log2PageSize is log2 of PageSize.
const Log2PageSize = 12

// A PageTable is a GPU virtual address space. Page tables are owned outside
// this module; contexts only hold a reference to the one they render into.
type PageTable interface {
	// Base returns the value programmed into the MMU page table base
	// register when this page table becomes active.
	Base() uint32
}

// VMPageTable is a PageTable backed by an akita page table. Each page table
// uses its own PID within the shared akita table.
type VMPageTable struct {
	table vm.PageTable
	pid   vm.PID
	base  uint32
}

// NewVMPageTable creates a page table for pid inside table. base is the
// address of its page directory.
func NewVMPageTable(table vm.PageTable, pid vm.PID, base uint32) *VMPageTable {
	return &VMPageTable{
		table: table,
		pid:   pid,
		base:  base,
	}
}

// Base returns the page directory address.
func (p *VMPageTable) Base() uint32 {
	return p.base
}

// PID returns the process ID of the page table inside the akita table.
func (p *VMPageTable) PID() vm.PID {
	return p.pid
}

// Map inserts pages covering [gpuAddr, gpuAddr+size) mapped to physAddr.
func (p *VMPageTable) Map(gpuAddr uint32, physAddr uint64, size uint32) {
	for off := uint32(0); off < size; off += PageSize {
		p.table.Insert(vm.Page{
			PID:      p.pid,
			VAddr:    uint64(gpuAddr + off),
			PAddr:    physAddr + uint64(off),
			PageSize: PageSize,
			Valid:    true,
		})
	}
}

// Unmap removes the pages covering [gpuAddr, gpuAddr+size).
func (p *VMPageTable) Unmap(gpuAddr uint32, size uint32) {
	for off := uint32(0); off < size; off += PageSize {
		p.table.Remove(p.pid, uint64(gpuAddr+off))
	}
}

// Lookup translates a device address into a physical address.
func (p *VMPageTable) Lookup(gpuAddr uint32) (uint64, bool) {
	page, found := p.table.Find(p.pid, uint64(gpuAddr))
	if !found || !page.Valid {
		return 0, false
	}

	return page.PAddr + (uint64(gpuAddr) - page.VAddr), true
}
