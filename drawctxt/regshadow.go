package drawctxt

import (
	"github.com/sarchlab/ctxswitch/pm4"
)

// RegShadow is the register shadow area of a context's state buffer. The
// register save sequence writes it and the register restore sequence loads
// from it, one word per context register.
type RegShadow struct {
	words []uint32
}

// RegShadow returns the register shadow, or nil if the context has no state
// shadow.
func (c *Context) RegShadow() *RegShadow {
	if c.gpustate == nil {
		return nil
	}

	return &RegShadow{
		words: c.gpustate.Words[RegShadowOffset : RegShadowOffset+RegShadowWords],
	}
}

// IsShadowedReg returns true if reg is part of the saved context register ranges.
func IsShadowedReg(reg uint32) bool {
	for _, r := range pm4.ContextRegisterRanges {
		if reg >= r[0] && reg <= r[1] {
			return true
		}
	}

	return false
}

// ReadReg reads the shadowed value of reg. Registers that are not saved read
// as 0.
func (r *RegShadow) ReadReg(reg uint32) uint32 {
	if !IsShadowedReg(reg) {
		return 0
	}

	return r.words[pm4.SubblockOffset(reg)]
}

// WriteReg writes the shadowed value of reg. Writes to registers that are not
// saved are ignored.
func (r *RegShadow) WriteReg(reg uint32, value uint32) {
	if !IsShadowedReg(reg) {
		return
	}

	r.words[pm4.SubblockOffset(reg)] = value
}

// Dump returns the shadowed value of every saved register, keyed by
// register index.
func (r *RegShadow) Dump() map[uint32]uint32 {
	regs := make(map[uint32]uint32)
	for _, rg := range pm4.ContextRegisterRanges {
		for reg := rg[0]; reg <= rg[1]; reg++ {
			regs[reg] = r.words[pm4.SubblockOffset(reg)]
		}
	}

	return regs
}
