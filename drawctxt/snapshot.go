package drawctxt

import (
	"sort"

	"github.com/sarchlab/ctxswitch/cmdstream"
	"github.com/sarchlab/ctxswitch/gmem"
)

// Snapshot is a copy of a context's state taken under the device lock.
type Snapshot struct {
	ID            string
	Flags         Flags
	Active        bool
	PageTableBase uint32
	BinBaseOffset uint32

	// StateAddr is the device address of the state buffer, or 0.
	StateAddr uint32

	// Shadow is nil when the context has no GMEM shadow.
	Shadow     *gmem.Surface
	ShadowAddr uint32

	// Sequences holds the words of each prebuilt command sequence, keyed by
	// sequence name.
	Sequences map[string][]uint32

	// Regs holds the register shadow, keyed by register index.
	Regs map[uint32]uint32
}

// Snapshot returns a copy of the state of the registered context with the
// given ID.
func (d *Device) Snapshot(id string) (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.contexts[id]
	if !ok {
		return Snapshot{}, false
	}

	return d.snapshot(c), true
}

// Snapshots returns copies of all registered contexts, ordered by ID.
func (d *Device) Snapshots() []Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]Snapshot, 0, len(d.contexts))
	for _, c := range d.contexts {
		list = append(list, d.snapshot(c))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	return list
}

func (d *Device) snapshot(c *Context) Snapshot {
	s := Snapshot{
		ID:            c.id,
		Flags:         c.flags,
		Active:        d.active == c,
		PageTableBase: c.pagetable.Base(),
		BinBaseOffset: c.binBaseOffset,
	}

	if c.gpustate == nil {
		return s
	}

	s.StateAddr = c.gpustate.GPUAddr
	s.Regs = c.RegShadow().Dump()

	spans := map[string]cmdstream.Span{
		"reg_save":        c.seqs.RegSave,
		"reg_restore":     c.seqs.RegRestore,
		"shader_save":     c.seqs.ShaderSave,
		"shader_fixup":    c.seqs.ShaderFixup,
		"shader_restore":  c.seqs.ShaderRestore,
		"chicken_restore": c.seqs.ChickenRestore,
	}

	if c.shadow != nil {
		surface := c.shadow.Surface
		s.Shadow = &surface
		s.ShadowAddr = c.shadow.Buffer.GPUAddr
		spans["gmem_save"] = c.shadow.Save
		spans["gmem_restore"] = c.shadow.Restore
	}

	s.Sequences = make(map[string][]uint32, len(spans))
	for name, span := range spans {
		s.Sequences[name] = append([]uint32(nil),
			c.gpustate.Words[span.Start:span.End]...)
	}

	return s
}
