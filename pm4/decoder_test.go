package pm4_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ctxswitch/pm4"
)

var _ = Describe("Packets", func() {
	It("should encode the indirect buffer header", func() {
		Expect(pm4.HdrIndirectBufferPFD).To(Equal(uint32(0xC0013700)))
	})

	It("should encode a type-0 register write", func() {
		Expect(pm4.Type0Packet(pm4.RegTP0Chicken, 1)).To(Equal(uint32(0x00000E1E)))
		Expect(pm4.Type0Packet(pm4.RegMHMMUPTBase, 2)).To(Equal(uint32(0x00010042)))
	})

	It("should encode context registers relative to the context block", func() {
		Expect(pm4.Reg(pm4.RegRBSurfaceInfo)).To(Equal(uint32(0x00040000)))
		Expect(pm4.Reg(pm4.RegRBModeControl)).To(Equal(uint32(0x00040208)))
	})

	It("should name opcodes", func() {
		Expect(pm4.OpSetBinBaseOffset.String()).To(Equal("SET_BIN_BASE_OFFSET"))
		Expect(pm4.Opcode(0xEE).String()).To(Equal("UNKNOWN"))
	})
})

var _ = Describe("Decoder", func() {
	var decoder *pm4.Decoder

	BeforeEach(func() {
		decoder = pm4.NewDecoder()
	})

	It("should decode a type-3 packet", func() {
		words := []uint32{pm4.Type3Packet(pm4.OpSetBinBaseOffset, 1), 0x40}

		packets, err := decoder.Decode(words)

		Expect(err).NotTo(HaveOccurred())
		Expect(packets).To(HaveLen(1))
		Expect(packets[0].Type).To(Equal(pm4.PacketType3))
		Expect(packets[0].Opcode).To(Equal(pm4.OpSetBinBaseOffset))
		Expect(packets[0].Payload).To(Equal([]uint32{0x40}))
	})

	It("should decode a mixed stream", func() {
		words := []uint32{
			pm4.Type3Packet(pm4.OpWaitForIdle, 1), 0,
			pm4.Type0Packet(pm4.RegMHMMUPTBase, 1), 0x1000,
			pm4.Type2Packet,
			pm4.Type1Packet(0x10, 0x20), 1, 2,
			pm4.HdrIndirectBufferPFD, 0x8000, 12,
		}

		packets, err := decoder.Decode(words)

		Expect(err).NotTo(HaveOccurred())
		Expect(packets).To(HaveLen(5))
		Expect(packets[1].Type).To(Equal(pm4.PacketType0))
		Expect(packets[1].Reg).To(Equal(pm4.RegMHMMUPTBase))
		Expect(packets[1].Offset).To(Equal(2))
		Expect(packets[2].Type).To(Equal(pm4.PacketType2))
		Expect(packets[3].Reg).To(Equal(uint32(0x10)))
		Expect(packets[3].Reg2).To(Equal(uint32(0x20)))
		Expect(packets[4].IsIndirectBuffer()).To(BeTrue())
		Expect(packets[4].Payload).To(Equal([]uint32{0x8000, 12}))
	})

	It("should report truncated packets", func() {
		words := []uint32{pm4.HdrIndirectBufferPFD, 0x8000}

		_, err := decoder.Decode(words)

		Expect(err).To(MatchError(pm4.ErrTruncated))
	})

	It("should disassemble packets", func() {
		p, err := decoder.DecodeOne([]uint32{pm4.Type3Packet(pm4.OpNOP, 1), 7}, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(p.String()).To(ContainSubstring("NOP"))
		Expect(p.Len()).To(Equal(2))
	})
})
