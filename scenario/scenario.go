// Package scenario describes and runs sequences of context operations on a
// simulated device.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
)

// Step operations.
const (
	OpCreate     = "create"
	OpDestroy    = "destroy"
	OpSwitch     = "switch"
	OpHang       = "hang"
	OpClearHang  = "clear_hang"
	OpBinBase    = "bin_base"
	OpSetFlags   = "set_flags"
	OpClearFlags = "clear_flags"
)

// Flag transition policies.
const (
	PolicyStatic   = "static"
	PolicyTracking = "tracking"
)

// Scenario is a named sequence of context operations.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Policy selects the flag transition policy. Default: static.
	Policy string `json:"policy,omitempty"`

	// Contexts are created before the first step.
	Contexts []ContextSpec `json:"contexts"`

	Steps []Step `json:"steps"`
}

// ContextSpec describes a context to create.
type ContextSpec struct {
	Name string `json:"name"`

	// Flags are the creation flags, as accepted by drawctxt.ParseFlags.
	Flags string `json:"flags"`

	BinBaseOffset uint32 `json:"bin_base_offset,omitempty"`
}

// Step is one operation of a scenario.
type Step struct {
	Op string `json:"op"`

	// Ctx names the context the operation applies to. A switch step without
	// a context switches to no context.
	Ctx string `json:"ctx,omitempty"`

	// SaveGMEM is passed with switch steps.
	SaveGMEM bool `json:"save_gmem,omitempty"`

	// Offset is the bin base offset of bin_base steps.
	Offset uint32 `json:"offset,omitempty"`

	// Flags are used by create, set_flags and clear_flags steps.
	Flags string `json:"flags,omitempty"`
}

// Load reads scenarios from a JSON file. The file holds either a single
// scenario or a list of scenarios.
func Load(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return Parse(data)
}

// Parse decodes one scenario or a list of scenarios.
func Parse(data []byte) ([]Scenario, error) {
	var list []Scenario
	if err := json.Unmarshal(data, &list); err == nil {
		return list, validateAll(list)
	}

	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	return []Scenario{s}, validateAll([]Scenario{s})
}

func validateAll(list []Scenario) error {
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that the scenario only uses known operations and
// contexts.
func (s *Scenario) Validate() error {
	switch s.Policy {
	case "", PolicyStatic, PolicyTracking:
	default:
		return fmt.Errorf("scenario %s: unknown policy %q", s.Name, s.Policy)
	}

	known := map[string]bool{}
	for _, c := range s.Contexts {
		if c.Name == "" {
			return fmt.Errorf("scenario %s: context without name", s.Name)
		}
		if known[c.Name] {
			return fmt.Errorf("scenario %s: duplicate context %s", s.Name, c.Name)
		}
		known[c.Name] = true
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpCreate:
			if step.Ctx == "" {
				return fmt.Errorf("scenario %s, step %d: create without name", s.Name, i)
			}
			known[step.Ctx] = true
			continue
		case OpSwitch:
			if step.Ctx == "" {
				continue
			}
		case OpDestroy, OpHang, OpClearHang, OpBinBase, OpSetFlags, OpClearFlags:
		default:
			return fmt.Errorf("scenario %s, step %d: unknown op %q", s.Name, i, step.Op)
		}

		if !known[step.Ctx] {
			return fmt.Errorf("scenario %s, step %d: unknown context %q",
				s.Name, i, step.Ctx)
		}
	}

	return nil
}

const gmemContext = "STATE_SHADOW|GMEM_SHADOW"

// Builtins returns the standard set of scenarios.
func Builtins() []Scenario {
	return []Scenario{
		pingPong(),
		hangRecovery(),
		destroyActive(),
		trackedSaves(),
		registersOnly(),
	}
}

func pingPong() Scenario {
	return Scenario{
		Name:        "ping_pong",
		Description: "two GMEM-shadowed contexts switched back and forth",
		Contexts: []ContextSpec{
			{Name: "A", Flags: gmemContext + "|GMEM_SAVE|GMEM_RESTORE"},
			{Name: "B", Flags: gmemContext + "|GMEM_SAVE|GMEM_RESTORE"},
		},
		Steps: []Step{
			{Op: OpSwitch, Ctx: "A"},
			{Op: OpSwitch, Ctx: "B"},
			{Op: OpSwitch, Ctx: "A"},
			{Op: OpSwitch, Ctx: "B"},
			{Op: OpSwitch},
		},
	}
}

func hangRecovery() Scenario {
	return Scenario{
		Name:        "hang_recovery",
		Description: "a hung context is neither saved nor restored until recovered",
		Contexts: []ContextSpec{
			{Name: "A", Flags: gmemContext + "|GMEM_SAVE|GMEM_RESTORE|SHADER_SAVE"},
			{Name: "B", Flags: gmemContext + "|GMEM_RESTORE"},
		},
		Steps: []Step{
			{Op: OpSwitch, Ctx: "A"},
			{Op: OpHang, Ctx: "A"},
			{Op: OpSwitch, Ctx: "B"},
			{Op: OpSwitch, Ctx: "A"},
			{Op: OpClearHang, Ctx: "A"},
			{Op: OpSwitch, Ctx: "B"},
		},
	}
}

func destroyActive() Scenario {
	return Scenario{
		Name:        "destroy_active",
		Description: "destroying the active context switches to no context without saving it",
		Contexts: []ContextSpec{
			{Name: "A", Flags: gmemContext + "|GMEM_SAVE", BinBaseOffset: 0x40},
		},
		Steps: []Step{
			{Op: OpSwitch, Ctx: "A"},
			{Op: OpDestroy, Ctx: "A"},
		},
	}
}

func trackedSaves() Scenario {
	return Scenario{
		Name:        "tracked_saves",
		Description: "restore flags follow the saved shadows",
		Policy:      PolicyTracking,
		Contexts: []ContextSpec{
			{Name: "A", Flags: gmemContext + "|SHADER_SAVE"},
			{Name: "B", Flags: gmemContext + "|SHADER_SAVE"},
		},
		Steps: []Step{
			{Op: OpSwitch, Ctx: "A", SaveGMEM: true},
			{Op: OpSwitch, Ctx: "B", SaveGMEM: true},
			{Op: OpSwitch, Ctx: "A", SaveGMEM: true},
			{Op: OpSwitch, Ctx: "B"},
			{Op: OpSwitch, Ctx: "A"},
		},
	}
}

func registersOnly() Scenario {
	return Scenario{
		Name:        "registers_only",
		Description: "contexts without GMEM shadow only save registers",
		Contexts: []ContextSpec{
			{Name: "A", Flags: "STATE_SHADOW"},
			{Name: "B", Flags: "STATE_SHADOW|SHADER_SAVE|SHADER_RESTORE"},
		},
		Steps: []Step{
			{Op: OpSwitch, Ctx: "A"},
			{Op: OpSwitch, Ctx: "B"},
			{Op: OpSwitch, Ctx: "A"},
		},
	}
}
