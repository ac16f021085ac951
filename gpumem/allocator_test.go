package gpumem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/mem/vm"

	"github.com/sarchlab/ctxswitch/gpumem"
)

var _ = Describe("SimAllocator", func() {
	var (
		table vm.PageTable
		pt    *gpumem.VMPageTable
		alloc *gpumem.SimAllocator
	)

	BeforeEach(func() {
		table = vm.NewPageTable(gpumem.Log2PageSize)
		pt = gpumem.NewVMPageTable(table, 1, 0x00100000)
		alloc = gpumem.NewSimAllocator(0x66000000, 16*gpumem.PageSize, 0x80000000)
	})

	It("should allocate page-aligned zeroed buffers", func() {
		d, err := alloc.Alloc(pt, 100)

		Expect(err).NotTo(HaveOccurred())
		Expect(d.GPUAddr).To(Equal(uint32(0x66000000)))
		Expect(d.Len()).To(Equal(25))
		Expect(d.Words).To(HaveEach(uint32(0)))
		Expect(alloc.InUse()).To(Equal(uint32(gpumem.PageSize)))
	})

	It("should round odd byte sizes up to whole words", func() {
		d, err := alloc.Alloc(pt, 6)

		Expect(err).NotTo(HaveOccurred())
		Expect(d.Len()).To(Equal(2))
	})

	It("should map allocations into the page table", func() {
		d, err := alloc.Alloc(pt, 2*gpumem.PageSize)
		Expect(err).NotTo(HaveOccurred())

		phys, ok := pt.Lookup(d.GPUAddr + gpumem.PageSize + 8)

		Expect(ok).To(BeTrue())
		Expect(phys).To(Equal(uint64(0x80000000 + gpumem.PageSize + 8)))
	})

	It("should unmap and reuse freed buffers", func() {
		d1, _ := alloc.Alloc(pt, gpumem.PageSize)
		d2, _ := alloc.Alloc(pt, gpumem.PageSize)

		alloc.Free(d1)

		_, ok := pt.Lookup(d1.GPUAddr)
		Expect(ok).To(BeFalse())
		Expect(alloc.LiveCount()).To(Equal(1))

		d3, err := alloc.Alloc(pt, gpumem.PageSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(d3.GPUAddr).To(Equal(d1.GPUAddr))

		alloc.Free(d2)
		alloc.Free(d3)
		Expect(alloc.InUse()).To(Equal(uint32(0)))
	})

	It("should fail when the window is exhausted", func() {
		_, err := alloc.Alloc(pt, 17*gpumem.PageSize)

		Expect(err).To(MatchError(gpumem.ErrOutOfMemory))
	})

	It("should reject zero-sized allocations", func() {
		_, err := alloc.Alloc(pt, 0)

		Expect(err).To(HaveOccurred())
	})

	It("should read and write through device addresses", func() {
		d, _ := alloc.Alloc(pt, 64)

		Expect(alloc.Write(d.GPUAddr+8, []uint32{1, 2})).To(BeTrue())
		Expect(d.Words[2:4]).To(Equal([]uint32{1, 2}))

		words, ok := alloc.Read(d.GPUAddr+8, 2)
		Expect(ok).To(BeTrue())
		Expect(words).To(Equal([]uint32{1, 2}))

		_, ok = alloc.Read(d.GPUAddr+60, 2)
		Expect(ok).To(BeFalse())
	})
})
