package drawctxt

import (
	"github.com/sarchlab/ctxswitch/cmdstream"
	"github.com/sarchlab/ctxswitch/gmem"
	"github.com/sarchlab/ctxswitch/gpumem"
)

// Layout of a context's state buffer, in words.
const (
	RegShadowOffset = 0
	RegShadowWords  = 1024 // one word per context register

	CmdOffset = RegShadowOffset + RegShadowWords
	CmdWords  = 3072

	ShaderOffset      = CmdOffset + CmdWords
	ShaderShadowWords = 2048 // per shader type: vertex, pixel, shared

	StateWords = ShaderOffset + 3*ShaderShadowWords
	StateSize  = StateWords * gpumem.WordSize
)

// Sequences locates the command sequences built into a state buffer.
type Sequences struct {
	RegSave        cmdstream.Span
	RegRestore     cmdstream.Span
	ShaderSave     cmdstream.Span
	ShaderFixup    cmdstream.Span
	ShaderRestore  cmdstream.Span
	ChickenRestore cmdstream.Span
}

// ShadowSurface is the off-chip copy of a context's GMEM.
type ShadowSurface struct {
	gmem.Surface

	// Buffer holds the surface pixels.
	Buffer *gpumem.Descriptor

	// Save and Restore locate the blit sequences in the state buffer.
	Save    cmdstream.Span
	Restore cmdstream.Span

	// Quad is the geometry drawn by the blits. It lives in the state buffer.
	Quad cmdstream.Quad
}

// Context is the hardware state of one draw context.
type Context struct {
	id            string
	flags         Flags
	pagetable     gpumem.PageTable
	gpustate      *gpumem.Descriptor
	seqs          Sequences
	binBaseOffset uint32
	shadow        *ShadowSurface

	// Words patched by the command processor at run time.
	chickenValue     int
	shaderBasesValue int
}

// ID returns the unique ID of the context.
func (c *Context) ID() string {
	return c.id
}

// Flags returns the current flags.
func (c *Context) Flags() Flags {
	return c.flags
}

// SetFlags sets save and restore flags. Allocation flags cannot be changed
// after creation and save or restore flags without their shadow memory are
// dropped.
func (c *Context) SetFlags(f Flags) {
	c.flags = (c.flags | f&^allocationFlags).sanitize()
}

// ClearFlags clears flags other than the allocation flags.
func (c *Context) ClearFlags(f Flags) {
	c.flags &^= f &^ allocationFlags
}

// PageTable returns the page table the context renders into.
func (c *Context) PageTable() gpumem.PageTable {
	return c.pagetable
}

// StateBuffer returns the state buffer, or nil if the context has no state
// shadow.
func (c *Context) StateBuffer() *gpumem.Descriptor {
	return c.gpustate
}

// Sequences returns the location of the save and restore sequences.
func (c *Context) Sequences() Sequences {
	return c.seqs
}

// Shadow returns the GMEM shadow surface, or nil.
func (c *Context) Shadow() *ShadowSurface {
	return c.shadow
}

// BinBaseOffset returns the bin base offset applied when the context is
// switched in.
func (c *Context) BinBaseOffset() uint32 {
	return c.binBaseOffset
}

// Hung returns true if the context has caused a GPU hang.
func (c *Context) Hung() bool {
	return c.flags.Has(FlagGPUHang)
}
