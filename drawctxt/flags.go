// Package drawctxt multiplexes the GPU pipeline between draw contexts.
//
// Each Context owns a state buffer that holds pre-built command sequences to
// save and restore its registers, shaders and tile memory (GMEM). A Device
// creates and destroys contexts and, on every switch, chains the outgoing
// context's save sequences and the incoming context's restore sequences into
// the command ring as indirect buffer calls, around a page table switch.
package drawctxt

import (
	"fmt"
	"strings"
)

// Flags is the lifecycle and shadow status of a context.
type Flags uint32

// Context flags. The values match the hardware driver's bit layout.
const (
	FlagNotInUse      Flags = 0x00000000
	FlagInUse         Flags = 0x00000001
	FlagStateShadow   Flags = 0x00000010 // state shadow memory allocated
	FlagGMEMShadow    Flags = 0x00000100 // gmem shadow memory allocated
	FlagGMEMSave      Flags = 0x00000200 // gmem must be copied to shadow
	FlagGMEMRestore   Flags = 0x00000400 // gmem can be restored from shadow
	FlagShaderSave    Flags = 0x00002000 // shader must be copied to shadow
	FlagShaderRestore Flags = 0x00004000 // shader can be restored from shadow
	FlagGPUHang       Flags = 0x00008000 // context has caused a GPU hang
)

// allocationFlags track what memory a context owns and can only be set at
// creation.
const allocationFlags = FlagStateShadow | FlagGMEMShadow

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagInUse, "IN_USE"},
	{FlagStateShadow, "STATE_SHADOW"},
	{FlagGMEMShadow, "GMEM_SHADOW"},
	{FlagGMEMSave, "GMEM_SAVE"},
	{FlagGMEMRestore, "GMEM_RESTORE"},
	{FlagShaderSave, "SHADER_SAVE"},
	{FlagShaderRestore, "SHADER_RESTORE"},
	{FlagGPUHang, "GPU_HANG"},
}

// Has returns true if all bits of mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String returns the flag names joined by '|'.
func (f Flags) String() string {
	if f == FlagNotInUse {
		return "NOT_IN_USE"
	}

	var names []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
			rest &^= fn.flag
		}
	}

	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}

	return strings.Join(names, "|")
}

// ParseFlags parses flag names joined by '|', as returned by String.
func ParseFlags(s string) (Flags, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NOT_IN_USE" {
		return FlagNotInUse, nil
	}

	var f Flags
	for _, name := range strings.Split(s, "|") {
		name = strings.ToUpper(strings.TrimSpace(name))

		found := false
		for _, fn := range flagNames {
			if fn.name == name {
				f |= fn.flag
				found = true
				break
			}
		}

		if !found {
			return 0, fmt.Errorf("unknown context flag %q", name)
		}
	}

	return f, nil
}

// sanitize drops save and restore flags whose shadow memory does not exist.
func (f Flags) sanitize() Flags {
	if !f.Has(FlagGMEMShadow) {
		f &^= FlagGMEMSave | FlagGMEMRestore
	}
	if !f.Has(FlagStateShadow) {
		f &^= FlagShaderSave | FlagShaderRestore
	}

	return f
}

// normalizeCreateFlags turns the flags requested at creation into the
// initial flags of a context. GMEM shadowing needs the state buffer for its
// command sequences.
func normalizeCreateFlags(f Flags) Flags {
	f |= FlagInUse
	f &^= FlagGPUHang
	if f.Has(FlagGMEMShadow) {
		f |= FlagStateShadow
	}

	return f.sanitize()
}

// SwitchFlags are passed with a switch request by the submitter.
type SwitchFlags uint32

// Switch flags.
const (
	// SwitchSaveGMEM asks for the incoming context's GMEM to be saved when it
	// is switched out.
	SwitchSaveGMEM SwitchFlags = 0x1
)
