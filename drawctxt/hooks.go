package drawctxt

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"
)

// Hook positions invoked by a Device. Hooks run while the device is locked
// and must not call back into it.
var (
	// HookPosContextCreated is invoked after a context is registered. The
	// item is the *Context.
	HookPosContextCreated = &sim.HookPos{Name: "ContextCreated"}

	// HookPosContextDestroyed is invoked after a context is released. The
	// item is the *Context.
	HookPosContextDestroyed = &sim.HookPos{Name: "ContextDestroyed"}

	// HookPosBeforeSwitch is invoked before anything is emitted for a switch.
	// The item is the incoming *Context (may be nil) and the detail a
	// *SwitchRecord with the ring span not filled yet.
	HookPosBeforeSwitch = &sim.HookPos{Name: "BeforeSwitch"}

	// HookPosAfterSwitch is invoked after a switch was emitted. The detail is
	// the complete *SwitchRecord.
	HookPosAfterSwitch = &sim.HookPos{Name: "AfterSwitch"}
)

// SwitchRecord describes one context switch.
type SwitchRecord struct {
	// From and To are the outgoing and incoming context IDs, empty for no
	// context.
	From string
	To   string

	// Saved holds the save flags whose sequences were emitted for the
	// outgoing context, Restored the restore flags for the incoming one.
	Saved    Flags
	Restored Flags

	// SkippedHung is set when a hung context was excluded from save or
	// restore.
	SkippedHung bool

	// PageTableBase is the page table activated by the switch.
	PageTableBase uint32

	// RingStart and RingEnd delimit the emitted words in the ring.
	RingStart int
	RingEnd   int
}

// Words returns the number of words emitted by the switch.
func (r *SwitchRecord) Words() int {
	return r.RingEnd - r.RingStart
}

// SwitchLogger is a hook that prints every context switch.
type SwitchLogger struct {
	sim.LogHookBase
}

// NewSwitchLogger returns a SwitchLogger writing to logger.
func NewSwitchLogger(logger *log.Logger) *SwitchLogger {
	h := new(SwitchLogger)
	h.Logger = logger
	return h
}

// Func writes the switch information into the logger.
func (h *SwitchLogger) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosAfterSwitch:
		rec, ok := ctx.Detail.(*SwitchRecord)
		if !ok {
			return
		}

		h.Logger.Printf("switch %s -> %s, pt 0x%08x, saved %s, restored %s, %d words",
			nameOrNone(rec.From), nameOrNone(rec.To), rec.PageTableBase,
			flagsOrNone(rec.Saved), flagsOrNone(rec.Restored), rec.Words())

		if rec.SkippedHung {
			h.Logger.Printf("hung context excluded from save/restore")
		}
	case HookPosContextCreated, HookPosContextDestroyed:
		c, ok := ctx.Item.(*Context)
		if !ok {
			return
		}

		h.Logger.Printf("%s %s, flags %s", ctx.Pos.Name, c.ID(), c.Flags())
	}
}

func nameOrNone(id string) string {
	if id == "" {
		return "<none>"
	}

	return id
}

func flagsOrNone(f Flags) string {
	if f == 0 {
		return "none"
	}

	return f.String()
}
