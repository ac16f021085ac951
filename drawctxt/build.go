package drawctxt

import (
	"github.com/sarchlab/ctxswitch/cmdstream"
	"github.com/sarchlab/ctxswitch/gmem"
	"github.com/sarchlab/ctxswitch/gpumem"
	"github.com/sarchlab/ctxswitch/pm4"
)

// builder writes a context's sequences into the command area of its state
// buffer. The first write error sticks and stops further writes.
type builder struct {
	c        *Context
	gmemBase uint32
	w        *cmdstream.Writer
	err      error
}

func newBuilder(c *Context, gmemBase uint32) *builder {
	return &builder{
		c:        c,
		gmemBase: gmemBase,
		w:        cmdstream.NewWriter(c.gpustate.Sub(CmdOffset, CmdWords)),
	}
}

func (b *builder) emit(words ...uint32) {
	if b.err != nil {
		return
	}

	b.err = b.w.Emit(words...)
}

func (b *builder) regRange(start, end uint32) {
	if b.err != nil {
		return
	}

	b.err = cmdstream.EmitRegRange(b.w, start, end)
}

// pos returns the state buffer offset of the cursor.
func (b *builder) pos() int {
	return CmdOffset + b.w.Pos()
}

func (b *builder) since(start int) cmdstream.Span {
	return cmdstream.Span{Start: start, End: b.pos()}
}

// addr returns the device address of a state buffer word.
func (b *builder) addr(offset int) uint32 {
	return gpumem.Translate(b.c.gpustate, offset)
}

func (b *builder) waitForIdle() {
	b.emit(pm4.Type3Packet(pm4.OpWaitForIdle, 1), 0)
}

func (b *builder) setConstant(reg uint32, values ...uint32) {
	b.emit(pm4.Type3Packet(pm4.OpSetConstant, 1+len(values)), pm4.Reg(reg))
	b.emit(values...)
}

func (b *builder) setFetchConstant(slot uint32, values ...uint32) {
	b.emit(pm4.Type3Packet(pm4.OpSetConstant, 1+len(values)), pm4.FetchConst(slot))
	b.emit(values...)
}

// build writes every sequence of the context. The GMEM sequences are only
// built when surface is not nil.
func (b *builder) build(surface *gmem.Surface, shadow *gpumem.Descriptor) error {
	var quad cmdstream.Quad
	if surface != nil && b.err == nil {
		quad, b.err = cmdstream.BuildQuad(b.w, *surface)
	}

	b.buildRegRestore()
	b.buildRegSave()
	b.buildShaderRestore()
	b.buildShaderSave()
	b.buildShaderFixup()
	b.buildChickenRestore()

	if surface != nil {
		b.c.shadow = &ShadowSurface{
			Surface: *surface,
			Buffer:  shadow,
			Quad:    quad,
		}
		b.buildGMEMSave()
		b.buildGMEMRestore()
	}

	return b.err
}

// shadowAddr returns the address of a register's slot in the register
// shadow.
func (b *builder) shadowAddr(reg uint32) uint32 {
	return b.addr(RegShadowOffset + int(pm4.SubblockOffset(reg)))
}

// buildRegSave copies every context register range into the register
// shadow.
func (b *builder) buildRegSave() {
	start := b.pos()

	b.waitForIdle()
	for _, r := range pm4.ContextRegisterRanges {
		b.emit(pm4.Type3Packet(pm4.OpRegToMem, 3))
		b.regRange(r[0], r[1])
		b.emit(b.shadowAddr(r[0]))
	}

	b.c.seqs.RegSave = b.since(start)
}

// buildRegRestore loads every context register range back from the register
// shadow with a single LOAD_CONSTANT_CONTEXT.
func (b *builder) buildRegRestore() {
	start := b.pos()

	n := len(pm4.ContextRegisterRanges)
	b.emit(pm4.Type3Packet(pm4.OpLoadConstantContext, 1+cmdstream.RegRangeLen*n))
	b.emit(b.addr(RegShadowOffset))
	for _, r := range pm4.ContextRegisterRanges {
		b.regRange(r[0], r[1])
	}

	b.c.seqs.RegRestore = b.since(start)
}

var shaderTypes = []uint32{pm4.ShaderVertex, pm4.ShaderPixel, pm4.ShaderShared}

func (b *builder) shaderShadowAddr(i int) uint32 {
	return b.addr(ShaderOffset + i*ShaderShadowWords)
}

// buildShaderRestore loads the shader instruction memory partitions and
// the partitioning itself. The partitioning value is written by the fixup
// sequence when the shaders are saved.
func (b *builder) buildShaderRestore() {
	start := b.pos()

	for i, t := range shaderTypes {
		b.emit(pm4.Type3Packet(pm4.OpIMLoad, 2), b.shaderShadowAddr(i)|t, ShaderShadowWords)
	}

	b.emit(pm4.Type3Packet(pm4.OpSetShaderBases, 1))
	b.c.shaderBasesValue = b.pos()
	b.emit(0)

	b.c.seqs.ShaderRestore = b.since(start)
}

// buildShaderSave stores the shader instruction memory partitions.
func (b *builder) buildShaderSave() {
	start := b.pos()

	b.waitForIdle()
	for i, t := range shaderTypes {
		b.emit(pm4.Type3Packet(pm4.OpIMStore, 2), b.shaderShadowAddr(i)|t, ShaderShadowWords)
	}

	b.c.seqs.ShaderSave = b.since(start)
}

// buildShaderFixup captures the current shader partitioning into the
// SET_SHADER_BASES packet of the restore sequence.
func (b *builder) buildShaderFixup() {
	start := b.pos()

	b.emit(pm4.Type3Packet(pm4.OpRegToMem, 2),
		pm4.RegSQInstStoreManagment, b.addr(b.c.shaderBasesValue))

	b.c.seqs.ShaderFixup = b.since(start)
}

// buildChickenRestore writes back TP0_CHICKEN, which the GMEM blits
// modify. The value is captured by the blits before they change it.
func (b *builder) buildChickenRestore() {
	start := b.pos()

	b.waitForIdle()
	b.emit(pm4.Type0Packet(pm4.RegTP0Chicken, 1))
	b.c.chickenValue = b.pos()
	b.emit(0)

	b.c.seqs.ChickenRestore = b.since(start)
}

func (b *builder) storeChicken() {
	b.emit(pm4.Type3Packet(pm4.OpRegToMem, 2),
		pm4.RegTP0Chicken, b.addr(b.c.chickenValue))
	b.emit(pm4.Type0Packet(pm4.RegTP0Chicken, 1), 0)
}

func (b *builder) bindSurface(s *ShadowSurface) {
	b.setConstant(pm4.RegRBSurfaceInfo, s.GMEMPitch)
	b.setConstant(pm4.RegRBColorInfo, s.Format|b.gmemBase)
	b.setConstant(pm4.RegPASCWindowScissorTL, 0, s.Height<<16|s.Width)
}

// buildGMEMSave resolves GMEM into the shadow surface by drawing the quad in
// EDRAM copy mode.
func (b *builder) buildGMEMSave() {
	s := b.c.shadow
	start := b.pos()

	b.waitForIdle()
	b.storeChicken()
	b.bindSurface(s)
	b.setConstant(pm4.RegRBModeControl, pm4.EdramModeCopy)
	b.setConstant(pm4.RegRBCopyControl,
		0,
		s.Buffer.GPUAddr&^0xFFF,
		s.Pitch>>5,
		s.Format<<4,
		0,
	)
	b.setFetchConstant(0, s.Quad.Vertices.GPUAddr|3, cmdstream.QuadLen)
	b.emit(pm4.Type3Packet(pm4.OpDrawIndx, 2), 0, pm4.DrawIndxAuto(pm4.PrimRectList, 3))
	b.setConstant(pm4.RegRBModeControl, pm4.EdramModeColorDepth)

	s.Save = b.since(start)
}

// buildGMEMRestore draws the shadow surface back into GMEM as a textured
// quad.
func (b *builder) buildGMEMRestore() {
	s := b.c.shadow
	start := b.pos()

	b.waitForIdle()
	b.storeChicken()
	b.setFetchConstant(0x10,
		(s.Pitch>>5)<<22,
		s.Buffer.GPUAddr|s.Format,
		(s.Height-1)<<13|(s.Width-1),
		0, 0, 0,
	)
	b.setFetchConstant(0, s.Quad.Vertices.GPUAddr|3, cmdstream.QuadLen)
	b.setFetchConstant(2, s.Quad.TexCoords.GPUAddr|3, cmdstream.TexCoordLen)
	b.bindSurface(s)
	b.setConstant(pm4.RegRBModeControl, pm4.EdramModeColorDepth)
	b.emit(pm4.Type3Packet(pm4.OpDrawIndx, 2), 0, pm4.DrawIndxAuto(pm4.PrimRectList, 3))

	s.Restore = b.since(start)
}
