package drawctxt

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/ctxswitch/cmdstream"
	"github.com/sarchlab/ctxswitch/gpumem"
	"github.com/sarchlab/ctxswitch/pm4"
)

// Switch makes incoming the context resident on the hardware. A nil
// incoming context switches to no context and the default page table.
//
// The emitted stream saves the outgoing context, switches the page table and
// then restores the incoming context, so that saves resolve against the
// outgoing address space and restores against the incoming one. Hung
// contexts are neither saved nor restored. Switching to the active context
// emits nothing.
func (d *Device) Switch(incoming *Context, flags SwitchFlags) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if incoming != nil {
		if d.contexts[incoming.id] != incoming {
			log.Panicf("switch to unregistered context %s", incoming.id)
		}

		d.policy.Incoming(incoming, flags)
	}

	if d.active == incoming {
		return
	}

	d.doSwitch(incoming)
}

func (d *Device) doSwitch(incoming *Context) {
	outgoing := d.active

	rec := &SwitchRecord{
		From:      idOf(outgoing),
		To:        idOf(incoming),
		RingStart: d.ring.Len(),
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosBeforeSwitch,
		Item:   incoming,
		Detail: rec,
	})

	if outgoing != nil {
		d.save(outgoing, rec)
	}

	pt := d.defaultPT
	if incoming != nil {
		pt = incoming.pagetable
	}
	d.setPageTable(pt)
	rec.PageTableBase = pt.Base()

	d.active = incoming

	if incoming != nil {
		d.restore(incoming, rec)
	}

	rec.RingEnd = d.ring.Len()

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    HookPosAfterSwitch,
		Item:   incoming,
		Detail: rec,
	})
}

func idOf(c *Context) string {
	if c == nil {
		return ""
	}

	return c.id
}

func (d *Device) issue(words ...uint32) {
	if err := d.ring.w.Emit(words...); err != nil {
		log.Panicf("ring not drained: %v", err)
	}
}

func (d *Device) issueSequence(src *gpumem.Descriptor, span cmdstream.Span) {
	if err := cmdstream.EmitIndirectBuffer(d.ring.w, src, span); err != nil {
		log.Panicf("ring not drained: %v", err)
	}
}

// save emits the outgoing context's save sequences: registers, then GMEM
// followed by the TP0_CHICKEN restore, then shaders.
func (d *Device) save(c *Context, rec *SwitchRecord) {
	if c.Hung() {
		rec.SkippedHung = true
		return
	}

	if !c.flags.Has(FlagStateShadow) {
		return
	}

	d.issueSequence(c.gpustate, c.seqs.RegSave)

	if c.flags.Has(FlagGMEMSave|FlagGMEMShadow) && c.shadow != nil {
		d.issueSequence(c.gpustate, c.shadow.Save)
		d.issueSequence(c.gpustate, c.seqs.ChickenRestore)
		rec.Saved |= FlagGMEMSave
	}

	if c.flags.Has(FlagShaderSave) {
		d.issueSequence(c.gpustate, c.seqs.ShaderSave)
		d.issueSequence(c.gpustate, c.seqs.ShaderFixup)
		rec.Saved |= FlagShaderSave
	}

	if rec.Saved != 0 {
		d.policy.Saved(c, rec.Saved)
	}
}

// setPageTable points the MMU at pt once the pipeline is idle.
func (d *Device) setPageTable(pt gpumem.PageTable) {
	d.issue(pm4.Type3Packet(pm4.OpWaitForIdle, 1), 0)
	d.issue(pm4.Type0Packet(pm4.RegMHMMUPTBase, 1), pt.Base())
	d.issue(pm4.Type0Packet(pm4.RegMHMMUInvalidate, 1),
		pm4.MMUInvalidateVA|pm4.MMUInvalidateTC)
}

// restore emits the incoming context's restore sequences: shaders, then
// GMEM followed by the TP0_CHICKEN restore, then registers, and finally the
// bin base offset.
func (d *Device) restore(c *Context, rec *SwitchRecord) {
	if c.Hung() {
		rec.SkippedHung = true
	} else if c.flags.Has(FlagStateShadow) {
		if c.flags.Has(FlagShaderRestore) {
			d.issueSequence(c.gpustate, c.seqs.ShaderRestore)
			rec.Restored |= FlagShaderRestore
		}

		if c.flags.Has(FlagGMEMRestore|FlagGMEMShadow) && c.shadow != nil {
			d.issueSequence(c.gpustate, c.shadow.Restore)
			d.issueSequence(c.gpustate, c.seqs.ChickenRestore)
			rec.Restored |= FlagGMEMRestore
		}

		d.issueSequence(c.gpustate, c.seqs.RegRestore)

		if rec.Restored != 0 {
			d.policy.Restored(c, rec.Restored)
		}
	}

	if d.config.SupportsBinBase() {
		d.issue(pm4.Type3Packet(pm4.OpSetBinBaseOffset, 1), c.binBaseOffset)
	}
}
