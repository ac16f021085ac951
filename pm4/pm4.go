// Package pm4 provides the PM4 command-stream packet encoding consumed by the
// command processor of a2xx-class GPUs, and a decoder that turns command words
// back into packets.
//
// The encodings are a fixed binary contract. Everything that builds command
// streams in this module goes through the helpers in this package so that the
// emitted words stay bit-exact.
//
// Usage:
//
//	hdr := pm4.Type3Packet(pm4.OpWaitForIdle, 1)
//	packets, err := pm4.NewDecoder().Decode([]uint32{hdr, 0})
package pm4
