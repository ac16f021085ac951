package drawctxt_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ctxswitch/config"
	"github.com/sarchlab/ctxswitch/drawctxt"
	"github.com/sarchlab/ctxswitch/pm4"
)

var _ = Describe("Snapshot", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(config.DefaultDeviceConfig())
	})

	It("should copy the state of a context", func() {
		c := env.create(drawctxt.FlagGMEMShadow | drawctxt.FlagGMEMSave)
		env.device.SetBinBaseOffset(c, 0x40)
		c.RegShadow().WriteReg(pm4.RegRBSurfaceInfo, 7)
		env.device.Switch(c, 0)

		s, ok := env.device.Snapshot(c.ID())

		Expect(ok).To(BeTrue())
		Expect(s.ID).To(Equal(c.ID()))
		Expect(s.Flags).To(Equal(c.Flags()))
		Expect(s.Active).To(BeTrue())
		Expect(s.PageTableBase).To(Equal(c.PageTable().Base()))
		Expect(s.BinBaseOffset).To(Equal(uint32(0x40)))
		Expect(s.StateAddr).To(Equal(c.StateBuffer().GPUAddr))
		Expect(s.Shadow).NotTo(BeNil())
		Expect(s.Shadow.Width).To(Equal(c.Shadow().Width))
		Expect(s.ShadowAddr).To(Equal(c.Shadow().Buffer.GPUAddr))
		Expect(s.Regs).To(HaveKeyWithValue(uint32(pm4.RegRBSurfaceInfo), uint32(7)))
		Expect(s.Sequences).To(HaveKey("gmem_save"))
		Expect(s.Sequences["reg_restore"]).To(HaveLen(c.Sequences().RegRestore.Len()))
	})

	It("should not share memory with the context", func() {
		c := env.create(drawctxt.FlagStateShadow)
		span := c.Sequences().RegSave
		first := c.StateBuffer().Words[span.Start]

		s, _ := env.device.Snapshot(c.ID())
		s.Sequences["reg_save"][0] = first + 1

		Expect(c.StateBuffer().Words[span.Start]).To(Equal(first))
	})

	It("should leave out memory a context does not own", func() {
		c := env.create(drawctxt.FlagInUse)

		s, ok := env.device.Snapshot(c.ID())

		Expect(ok).To(BeTrue())
		Expect(s.StateAddr).To(BeZero())
		Expect(s.Shadow).To(BeNil())
		Expect(s.Regs).To(BeNil())
		Expect(s.Sequences).To(BeNil())
	})

	It("should not find destroyed contexts", func() {
		c := env.create(drawctxt.FlagStateShadow)
		Expect(env.device.Destroy(c)).To(Succeed())

		_, ok := env.device.Snapshot(c.ID())

		Expect(ok).To(BeFalse())
	})

	It("should list snapshots in id order", func() {
		a := env.create(drawctxt.FlagStateShadow)
		b := env.create(drawctxt.FlagStateShadow)
		env.device.Switch(b, 0)

		list := env.device.Snapshots()

		Expect(list).To(HaveLen(2))
		Expect(list[0].ID).To(Equal(a.ID()))
		Expect(list[0].Active).To(BeFalse())
		Expect(list[1].ID).To(Equal(b.ID()))
		Expect(list[1].Active).To(BeTrue())
	})

	It("should be safe to take while contexts are switched", func() {
		env = newTestEnv(config.DefaultDeviceConfig(),
			drawctxt.WithPolicy(drawctxt.TrackingPolicy{}))
		a := env.create(drawctxt.FlagGMEMShadow | drawctxt.FlagShaderSave)
		b := env.create(drawctxt.FlagGMEMShadow | drawctxt.FlagShaderSave)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer GinkgoRecover()

			for i := 0; i < 20; i++ {
				env.device.Switch(a, drawctxt.SwitchSaveGMEM)
				env.device.Switch(b, drawctxt.SwitchSaveGMEM)
			}
		}()

		for i := 0; i < 100; i++ {
			for _, s := range env.device.Snapshots() {
				Expect(s.Flags.Has(drawctxt.FlagInUse)).To(BeTrue())
			}
		}

		wg.Wait()

		s, _ := env.device.Snapshot(b.ID())
		Expect(s.Active).To(BeTrue())
	})
})
