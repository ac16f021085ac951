package drawctxt_test

import (
	"bytes"
	"log"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/ctxswitch/config"
	"github.com/sarchlab/ctxswitch/drawctxt"
	"github.com/sarchlab/ctxswitch/pm4"
)

// eventIndex returns the position of label in labels, or -1.
func eventIndex(labels []string, label string) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}

	return -1
}

var _ = Describe("Switch", func() {
	var (
		env   *testEnv
		names map[*drawctxt.Context]string
	)

	const gmemCtx = drawctxt.FlagStateShadow | drawctxt.FlagGMEMShadow

	BeforeEach(func() {
		env = newTestEnv(config.DefaultDeviceConfig())
		names = make(map[*drawctxt.Context]string)
	})

	named := func(name string, flags drawctxt.Flags) *drawctxt.Context {
		c := env.create(flags)
		names[c] = name
		return c
	}

	It("should save the outgoing context before restoring the incoming one", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave)
		b := named("B", gmemCtx|drawctxt.FlagGMEMRestore)

		env.device.Switch(a, 0)
		env.device.Ring().Drain()
		env.device.Switch(b, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{
			"A:reg-save",
			"A:gmem-save",
			"A:chicken",
			"pt",
			"B:gmem-restore",
			"B:chicken",
			"B:reg-restore",
			"bin-base:0",
		}))
		Expect(env.device.Active()).To(BeIdenticalTo(b))
	})

	It("should switch to the incoming context's page table", func() {
		a := named("A", gmemCtx)

		env.device.Switch(a, 0)

		packets, err := pm4.NewDecoder().Decode(env.device.Ring().Words())
		Expect(err).NotTo(HaveOccurred())

		Expect(packets[0].Opcode).To(Equal(pm4.OpWaitForIdle))
		Expect(packets[1].Type).To(Equal(pm4.PacketType0))
		Expect(packets[1].Reg).To(Equal(pm4.RegMHMMUPTBase))
		Expect(packets[1].Payload).To(Equal([]uint32{a.PageTable().Base()}))
		Expect(packets[2].Reg).To(Equal(pm4.RegMHMMUInvalidate))
		Expect(packets[2].Payload).To(Equal(
			[]uint32{pm4.MMUInvalidateVA | pm4.MMUInvalidateTC}))
	})

	It("should emit shaders and gmem in order", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave|drawctxt.FlagShaderSave)
		b := named("B", gmemCtx|drawctxt.FlagGMEMRestore|drawctxt.FlagShaderRestore)

		env.device.Switch(a, 0)
		env.device.Ring().Drain()
		env.device.Switch(b, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{
			"A:reg-save",
			"A:gmem-save",
			"A:chicken",
			"A:shader-save",
			"A:shader-fixup",
			"pt",
			"B:shader-restore",
			"B:gmem-restore",
			"B:chicken",
			"B:reg-restore",
			"bin-base:0",
		}))
	})

	It("should order saves before the page table switch for all flags", func() {
		saveFlags := []drawctxt.Flags{
			drawctxt.FlagGMEMSave, drawctxt.FlagShaderSave,
		}
		restoreFlags := []drawctxt.Flags{
			drawctxt.FlagGMEMRestore, drawctxt.FlagShaderRestore,
		}

		for s := 0; s < 4; s++ {
			for r := 0; r < 4; r++ {
				out := gmemCtx
				in := gmemCtx
				for i := range saveFlags {
					if s&(1<<i) != 0 {
						out |= saveFlags[i]
					}
					if r&(1<<i) != 0 {
						in |= restoreFlags[i]
					}
				}

				a := named("A", out)
				b := named("B", in)
				env.device.Switch(a, 0)
				env.device.Ring().Drain()
				env.device.Switch(b, 0)

				labels := labelRing(env.device, names)
				pt := eventIndex(labels, "pt")
				Expect(pt).To(BeNumerically(">=", 0))

				for i, l := range labels {
					switch {
					case strings.HasPrefix(l, "A:"):
						Expect(i).To(BeNumerically("<", pt), "%v", labels)
					case strings.HasPrefix(l, "B:"):
						Expect(i).To(BeNumerically(">", pt), "%v", labels)
					}
				}

				Expect(eventIndex(labels, "A:gmem-save") >= 0).
					To(Equal(out.Has(drawctxt.FlagGMEMSave)))
				Expect(eventIndex(labels, "A:shader-save") >= 0).
					To(Equal(out.Has(drawctxt.FlagShaderSave)))
				Expect(eventIndex(labels, "B:gmem-restore") >= 0).
					To(Equal(in.Has(drawctxt.FlagGMEMRestore)))
				Expect(eventIndex(labels, "B:shader-restore") >= 0).
					To(Equal(in.Has(drawctxt.FlagShaderRestore)))

				env.device.Switch(nil, 0)
				env.device.Ring().Drain()
				Expect(env.device.Destroy(a)).To(Succeed())
				Expect(env.device.Destroy(b)).To(Succeed())
				delete(names, a)
				delete(names, b)
			}
		}
	})

	It("should exclude a hung outgoing context from saving", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave|drawctxt.FlagShaderSave)
		b := named("B", gmemCtx|drawctxt.FlagGMEMRestore)
		env.device.Switch(a, 0)
		env.device.Ring().Drain()

		env.device.MarkHang(a)
		env.device.Switch(b, 0)

		Expect(a.Hung()).To(BeTrue())
		Expect(labelRing(env.device, names)).To(Equal([]string{
			"pt",
			"B:gmem-restore",
			"B:chicken",
			"B:reg-restore",
			"bin-base:0",
		}))
	})

	It("should exclude a hung incoming context from restoring", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave)
		b := named("B", gmemCtx|drawctxt.FlagGMEMRestore)
		env.device.SetBinBaseOffset(b, 8)
		env.device.Switch(a, 0)
		env.device.Ring().Drain()

		env.device.MarkHang(b)
		env.device.Switch(b, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{
			"A:reg-save",
			"A:gmem-save",
			"A:chicken",
			"pt",
			"bin-base:8",
		}))
	})

	It("should save and restore again after the hang is cleared", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave|drawctxt.FlagGMEMRestore)
		env.device.MarkHang(a)
		env.device.ClearHang(a)

		env.device.Switch(a, 0)

		Expect(a.Hung()).To(BeFalse())
		Expect(labelRing(env.device, names)).To(ContainElement("A:gmem-restore"))
	})

	It("should emit nothing when switching to the active context", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave)
		env.device.Switch(a, 0)
		env.device.Ring().Drain()

		env.device.Switch(a, 0)

		Expect(env.device.Ring().Len()).To(BeZero())
	})

	It("should switch to the default page table without an incoming context", func() {
		a := named("A", gmemCtx|drawctxt.FlagGMEMSave)
		env.device.Switch(a, 0)
		env.device.Ring().Drain()

		env.device.Switch(nil, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{
			"A:reg-save",
			"A:gmem-save",
			"A:chicken",
			"pt",
		}))
		Expect(env.device.Active()).To(BeNil())

		packets, _ := pm4.NewDecoder().Decode(env.device.Ring().Words())
		for _, p := range packets {
			if p.Type == pm4.PacketType0 && p.Reg == pm4.RegMHMMUPTBase {
				Expect(p.Payload[0]).To(Equal(env.cfg.DefaultPTBase))
			}
		}
	})

	It("should only save registers of contexts without gmem shadow", func() {
		a := named("A", drawctxt.FlagStateShadow)
		b := named("B", drawctxt.FlagStateShadow)
		env.device.Switch(a, 0)
		env.device.Ring().Drain()

		env.device.Switch(b, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{
			"A:reg-save",
			"pt",
			"B:reg-restore",
			"bin-base:0",
		}))
	})

	It("should only switch the page table of contexts without state shadow", func() {
		a := named("A", 0)
		b := named("B", 0)
		env.device.Switch(a, 0)
		env.device.Ring().Drain()

		env.device.Switch(b, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{"pt", "bin-base:0"}))
	})

	It("should not set the bin base on an a220", func() {
		cfg := config.DefaultDeviceConfig()
		cfg.Model = config.ModelA220
		env = newTestEnv(cfg)
		a := named("A", gmemCtx|drawctxt.FlagGMEMRestore)
		env.device.SetBinBaseOffset(a, 16)

		env.device.Switch(a, 0)

		Expect(labelRing(env.device, names)).To(Equal([]string{
			"pt",
			"A:gmem-restore",
			"A:chicken",
			"A:reg-restore",
		}))
	})

	It("should panic when switching to an unregistered context", func() {
		a := named("A", drawctxt.FlagStateShadow)
		Expect(env.device.Destroy(a)).To(Succeed())

		Expect(func() { env.device.Switch(a, 0) }).To(Panic())
	})

	It("should panic when the ring is full", func() {
		a := named("A", gmemCtx)
		b := named("B", gmemCtx)

		Expect(func() {
			for {
				env.device.Switch(a, 0)
				env.device.Switch(b, 0)
			}
		}).To(Panic())
	})

	Context("with the tracking policy", func() {
		BeforeEach(func() {
			env = newTestEnv(config.DefaultDeviceConfig(),
				drawctxt.WithPolicy(drawctxt.TrackingPolicy{}))
		})

		It("should only restore gmem after it was saved", func() {
			a := named("A", gmemCtx|drawctxt.FlagShaderSave)
			b := named("B", gmemCtx)

			env.device.Switch(a, drawctxt.SwitchSaveGMEM)
			Expect(a.Flags().Has(drawctxt.FlagGMEMSave)).To(BeTrue())
			Expect(labelRing(env.device, names)).NotTo(ContainElement("A:gmem-restore"))
			env.device.Ring().Drain()

			env.device.Switch(b, 0)
			Expect(a.Flags().Has(drawctxt.FlagGMEMRestore)).To(BeTrue())
			Expect(a.Flags().Has(drawctxt.FlagShaderRestore)).To(BeTrue())
			env.device.Ring().Drain()

			env.device.Switch(a, drawctxt.SwitchSaveGMEM)
			Expect(labelRing(env.device, names)).To(Equal([]string{
				"B:reg-save",
				"pt",
				"A:shader-restore",
				"A:gmem-restore",
				"A:chicken",
				"A:reg-restore",
				"bin-base:0",
			}))
			Expect(a.Flags().Has(drawctxt.FlagGMEMRestore)).To(BeFalse())
		})

		It("should clear gmem save without the switch flag", func() {
			a := named("A", gmemCtx|drawctxt.FlagGMEMSave)

			env.device.Switch(a, 0)

			Expect(a.Flags().Has(drawctxt.FlagGMEMSave)).To(BeFalse())
		})
	})

	Context("with hooks", func() {
		var hook *recordingHook

		BeforeEach(func() {
			hook = &recordingHook{}
			env.device.AcceptHook(hook)
		})

		It("should report every switch", func() {
			a := named("A", gmemCtx|drawctxt.FlagGMEMSave)
			b := named("B", gmemCtx|drawctxt.FlagGMEMRestore)

			env.device.Switch(a, 0)
			env.device.Switch(b, 0)

			Expect(hook.records).To(HaveLen(2))
			rec := hook.records[1]
			Expect(rec.From).To(Equal(a.ID()))
			Expect(rec.To).To(Equal(b.ID()))
			Expect(rec.Saved).To(Equal(drawctxt.FlagGMEMSave))
			Expect(rec.Restored).To(Equal(drawctxt.FlagGMEMRestore))
			Expect(rec.PageTableBase).To(Equal(b.PageTable().Base()))
			Expect(rec.RingStart).To(Equal(hook.records[0].RingEnd))
			Expect(rec.RingEnd).To(Equal(env.device.Ring().Len()))
			Expect(rec.SkippedHung).To(BeFalse())

			Expect(hook.positions).To(Equal([]*sim.HookPos{
				drawctxt.HookPosContextCreated,
				drawctxt.HookPosContextCreated,
				drawctxt.HookPosBeforeSwitch,
				drawctxt.HookPosAfterSwitch,
				drawctxt.HookPosBeforeSwitch,
				drawctxt.HookPosAfterSwitch,
			}))
		})

		It("should report hung contexts", func() {
			a := named("A", gmemCtx)
			env.device.MarkHang(a)

			env.device.Switch(a, 0)

			Expect(hook.records[0].SkippedHung).To(BeTrue())
			Expect(hook.records[0].From).To(BeEmpty())
		})
	})

	It("should log switches", func() {
		var buf bytes.Buffer
		env.device.AcceptHook(drawctxt.NewSwitchLogger(log.New(&buf, "", 0)))

		a := named("A", gmemCtx|drawctxt.FlagGMEMSave)
		env.device.Switch(a, 0)
		env.device.Switch(nil, 0)

		out := buf.String()
		Expect(out).To(ContainSubstring("ContextCreated " + a.ID()))
		Expect(out).To(ContainSubstring("switch <none> -> " + a.ID()))
		Expect(out).To(ContainSubstring("saved none, restored none"))
		Expect(out).To(ContainSubstring("switch " + a.ID() + " -> <none>"))
		Expect(out).To(ContainSubstring("saved GMEM_SAVE"))
	})
})
