package pm4

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a packet header announces more payload words
// than the stream holds.
var ErrTruncated = errors.New("truncated packet")

// Packet is a decoded PM4 packet.
type Packet struct {
	Type PacketType

	// Offset is the word offset of the header within the decoded stream.
	Offset int

	// Opcode is set for type-3 packets.
	Opcode Opcode

	// Reg is the first register written by type-0 packets and the first of
	// the two registers of type-1 packets.
	Reg  uint32
	Reg2 uint32

	Payload []uint32
}

// Len returns the number of words the packet occupies, header included.
func (p Packet) Len() int {
	return 1 + len(p.Payload)
}

// String returns a one-line disassembly of the packet.
func (p Packet) String() string {
	switch p.Type {
	case PacketType0:
		return fmt.Sprintf("%04x: TYPE0 reg=0x%04x %08x", p.Offset, p.Reg, p.Payload)
	case PacketType1:
		return fmt.Sprintf("%04x: TYPE1 reg=0x%03x,0x%03x %08x",
			p.Offset, p.Reg, p.Reg2, p.Payload)
	case PacketType2:
		return fmt.Sprintf("%04x: TYPE2", p.Offset)
	default:
		return fmt.Sprintf("%04x: %s %08x", p.Offset, p.Opcode, p.Payload)
	}
}

// Decoder decodes PM4 command words into packets.
type Decoder struct{}

// NewDecoder creates a new PM4 decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeOne decodes the packet whose header is at words[offset].
func (d *Decoder) DecodeOne(words []uint32, offset int) (Packet, error) {
	hdr := words[offset]
	p := Packet{Type: PacketType(hdr >> 30), Offset: offset}

	n := 0
	switch p.Type {
	case PacketType0:
		p.Reg = hdr & 0x7FFF
		n = int((hdr>>16)&0x3FFF) + 1
	case PacketType1:
		p.Reg = hdr & 0x7FF
		p.Reg2 = (hdr >> 11) & 0x7FF
		n = 2
	case PacketType2:
		n = 0
	case PacketType3:
		p.Opcode = Opcode((hdr >> 8) & 0xFF)
		n = int((hdr>>16)&0x3FFF) + 1
	}

	end := offset + 1 + n
	if end > len(words) {
		return p, fmt.Errorf("%w at word %d: need %d words, have %d",
			ErrTruncated, offset, n, len(words)-offset-1)
	}

	p.Payload = words[offset+1 : end]

	return p, nil
}

// Decode decodes a whole command stream.
func (d *Decoder) Decode(words []uint32) ([]Packet, error) {
	var packets []Packet

	for offset := 0; offset < len(words); {
		p, err := d.DecodeOne(words, offset)
		if err != nil {
			return packets, err
		}

		packets = append(packets, p)
		offset += p.Len()
	}

	return packets, nil
}

// IsIndirectBuffer returns true if the packet calls an indirect buffer.
func (p Packet) IsIndirectBuffer() bool {
	return p.Type == PacketType3 &&
		(p.Opcode == OpIndirectBufferPFD || p.Opcode == OpIndirectBuffer)
}
