package pm4

// ContextRegisterBase is the first register of the per-context register
// block. Register ranges saved and restored on a switch live above it.
const ContextRegisterBase uint32 = 0x2000

// a2xx register indices (dword addresses).
const (
	RegMHMMUPTBase     uint32 = 0x0042
	RegMHMMUInvalidate uint32 = 0x0045

	RegSQInstStoreManagment uint32 = 0x0D02
	RegTP0Chicken           uint32 = 0x0E1E

	RegRBSurfaceInfo          uint32 = 0x2000
	RegRBColorInfo            uint32 = 0x2001
	RegRBDepthInfo            uint32 = 0x2002
	RegCoherDestBase0         uint32 = 0x2006
	RegPASCScreenScissorBR    uint32 = 0x200F
	RegPASCWindowOffset       uint32 = 0x2080
	RegPASCWindowScissorTL    uint32 = 0x2081
	RegPASCWindowScissorBR    uint32 = 0x2082
	RegVGTMaxVtxIndx          uint32 = 0x2100
	RegRBBlendAlpha           uint32 = 0x2108
	RegPACLVportXScale        uint32 = 0x210F
	RegPACLVportZOffset       uint32 = 0x2114
	RegSQProgramCntl          uint32 = 0x2180
	RegSQWrappingNone         uint32 = 0x2184
	RegRBDepthControl         uint32 = 0x2200
	RegRBColorControl         uint32 = 0x2202
	RegPACLClipCntl           uint32 = 0x2204
	RegPASUSCModeCntl         uint32 = 0x2205
	RegPACLVTECntl            uint32 = 0x2206
	RegRBModeControl          uint32 = 0x2208
	RegPASUPointSize          uint32 = 0x2280
	RegPASULineCntl           uint32 = 0x2282
	RegPASCLineStipple        uint32 = 0x2283
	RegPASCVizQuery           uint32 = 0x2293
	RegVGTVertexReuseBlockCnt uint32 = 0x2316
	RegPASCAAMask             uint32 = 0x2312
	RegRBCopyControl          uint32 = 0x2318
	RegRBCopyDestBase         uint32 = 0x2319
	RegRBCopyDestPitch        uint32 = 0x231A
	RegRBCopyDestInfo         uint32 = 0x231B
	RegRBCopyDestPixelOffset  uint32 = 0x231C
	RegRBDepthClear           uint32 = 0x231D
	RegRBSampleCountCtl       uint32 = 0x2324
	RegRBColorDest            uint32 = 0x2326
)

// ContextRegisterRanges lists the inclusive [start, end] pairs of context
// registers that make up a context's register state.
var ContextRegisterRanges = [][2]uint32{
	{RegRBSurfaceInfo, RegRBDepthInfo},
	{RegCoherDestBase0, RegPASCScreenScissorBR},
	{RegPASCWindowOffset, RegPASCWindowScissorBR},
	{RegVGTMaxVtxIndx, RegPACLVportZOffset},
	{RegSQProgramCntl, RegSQWrappingNone},
	{RegRBDepthControl, RegRBModeControl},
	{RegPASUPointSize, RegPASCLineStipple},
	{RegPASCVizQuery, RegPASCVizQuery},
	{RegPASCAAMask, RegRBColorDest},
}

// MMU invalidate bits.
const (
	MMUInvalidateVA uint32 = 0x1
	MMUInvalidateTC uint32 = 0x2
)

// RB_MODECONTROL edram modes.
const (
	EdramModeColorDepth uint32 = 4
	EdramModeCopy       uint32 = 5
)

// Surface formats (COLORFORMATX).
const (
	ColorX8888 uint32 = 6
)

// IM_LOAD / IM_STORE shader types.
const (
	ShaderVertex uint32 = 0
	ShaderPixel  uint32 = 1
	ShaderShared uint32 = 2
)
