package pm4

// PacketType is the packet class encoded in bits [31:30] of a header.
type PacketType uint8

// Packet types.
const (
	PacketType0 PacketType = 0 // register write, consecutive registers
	PacketType1 PacketType = 1 // two independent register writes
	PacketType2 PacketType = 2 // filler, no payload
	PacketType3 PacketType = 3 // opcode packet
)

const (
	type0Header uint32 = 0 << 30
	type1Header uint32 = 1 << 30
	type2Header uint32 = 2 << 30
	type3Header uint32 = 3 << 30
)

// Opcode is a type-3 packet opcode.
type Opcode uint8

// Type-3 opcodes used by the context switch sequences.
const (
	OpNOP                  Opcode = 0x10
	OpRegRMW               Opcode = 0x21
	OpDrawIndx             Opcode = 0x22
	OpWaitForIdle          Opcode = 0x26
	OpIMLoad               Opcode = 0x27
	OpIMLoadImmediate      Opcode = 0x2b
	OpIMStore              Opcode = 0x2c
	OpSetConstant          Opcode = 0x2d
	OpLoadConstantContext  Opcode = 0x2e
	OpIndirectBufferPFD    Opcode = 0x37
	OpInvalidateState      Opcode = 0x3b
	OpWaitRegMem           Opcode = 0x3c
	OpMemWrite             Opcode = 0x3d
	OpRegToMem             Opcode = 0x3e
	OpIndirectBuffer       Opcode = 0x3f
	OpCondExec             Opcode = 0x44
	OpEventWrite           Opcode = 0x46
	OpMEInit               Opcode = 0x48
	OpSetShaderBases       Opcode = 0x4a
	OpSetBinBaseOffset     Opcode = 0x4b
	OpContextUpdate        Opcode = 0x5e
	OpSetProtectedMode     Opcode = 0x5f
)

var opcodeNames = map[Opcode]string{
	OpNOP:                 "NOP",
	OpRegRMW:              "REG_RMW",
	OpDrawIndx:            "DRAW_INDX",
	OpWaitForIdle:         "WAIT_FOR_IDLE",
	OpIMLoad:              "IM_LOAD",
	OpIMLoadImmediate:     "IM_LOAD_IMMEDIATE",
	OpIMStore:             "IM_STORE",
	OpSetConstant:         "SET_CONSTANT",
	OpLoadConstantContext: "LOAD_CONSTANT_CONTEXT",
	OpIndirectBufferPFD:   "INDIRECT_BUFFER_PFD",
	OpInvalidateState:     "INVALIDATE_STATE",
	OpWaitRegMem:          "WAIT_REG_MEM",
	OpMemWrite:            "MEM_WRITE",
	OpRegToMem:            "REG_TO_MEM",
	OpIndirectBuffer:      "INDIRECT_BUFFER",
	OpCondExec:            "COND_EXEC",
	OpEventWrite:          "EVENT_WRITE",
	OpMEInit:              "ME_INIT",
	OpSetShaderBases:      "SET_SHADER_BASES",
	OpSetBinBaseOffset:    "SET_BIN_BASE_OFFSET",
	OpContextUpdate:       "CONTEXT_UPDATE",
	OpSetProtectedMode:    "SET_PROTECTED_MODE",
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}

	return "UNKNOWN"
}

// Type0Packet builds the header of a type-0 packet that writes count
// consecutive registers starting at reg.
func Type0Packet(reg uint32, count int) uint32 {
	return type0Header | (uint32(count-1)&0x3FFF)<<16 | reg&0x7FFF
}

// Type1Packet builds the header of a type-1 packet writing reg1 and reg2.
func Type1Packet(reg1, reg2 uint32) uint32 {
	return type1Header | (reg2&0x7FF)<<11 | reg1&0x7FF
}

// Type2Packet is the filler packet.
const Type2Packet = type2Header

// Type3Packet builds the header of a type-3 packet carrying count payload
// words.
func Type3Packet(op Opcode, count int) uint32 {
	return type3Header | (uint32(count-1)&0x3FFF)<<16 | (uint32(op)&0xFF)<<8
}

// HdrIndirectBufferPFD is the header of an indirect buffer call with
// prefetch disabled. It is followed by the target address and word count.
var HdrIndirectBufferPFD = Type3Packet(OpIndirectBufferPFD, 2)

// Constant types used by SET_CONSTANT and LOAD_CONSTANT_CONTEXT.
const (
	ConstALU      uint32 = 0x0 << 16
	ConstFetch    uint32 = 0x1 << 16
	ConstBool     uint32 = 0x2 << 16
	ConstLoop     uint32 = 0x3 << 16
	ConstRegister uint32 = 0x4 << 16
)

// SubblockOffset returns the offset of a context register from the start of
// the context register block.
func SubblockOffset(reg uint32) uint32 {
	return reg - ContextRegisterBase
}

// Reg encodes a context register for SET_CONSTANT and
// LOAD_CONSTANT_CONTEXT payloads.
func Reg(reg uint32) uint32 {
	return ConstRegister | SubblockOffset(reg)
}

// FetchConst encodes a fetch constant slot (texture or vertex) offset.
func FetchConst(offset uint32) uint32 {
	return ConstFetch | offset
}

// Primitive types for DRAW_INDX.
const (
	PrimRectList uint32 = 8
)

// Index source selectors for DRAW_INDX.
const (
	SourceAutoIndex uint32 = 2
)

// DrawIndxAuto encodes the DRAW_INDX control word for an auto-indexed draw.
func DrawIndxAuto(prim uint32, numIndices uint32) uint32 {
	return prim | SourceAutoIndex<<6 | numIndices<<24
}
