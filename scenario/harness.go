package scenario

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/ctxswitch/config"
	"github.com/sarchlab/ctxswitch/drawctxt"
	"github.com/sarchlab/ctxswitch/gpumem"
)

// Result holds the outcome of a single scenario run.
type Result struct {
	// Name identifies the scenario
	Name string `json:"name"`

	// Description explains what the scenario exercises
	Description string `json:"description"`

	// Contexts is the number of contexts created
	Contexts int `json:"contexts"`

	// Switches is the number of switches that emitted commands
	Switches int `json:"switches"`

	// Words is the number of command words issued into the ring
	Words int `json:"words"`

	// GMEMSaves/Restores count the GMEM blits
	GMEMSaves    int `json:"gmem_saves"`
	GMEMRestores int `json:"gmem_restores"`

	// ShaderSaves/Restores count the shader save and restore sequences
	ShaderSaves    int `json:"shader_saves"`
	ShaderRestores int `json:"shader_restores"`

	// HungSkips counts switches that excluded a hung context
	HungSkips int `json:"hung_skips"`

	// Stream is the concatenation of everything issued into the ring
	Stream []uint32 `json:"-"`

	// WallTime is the actual time taken to run the scenario
	WallTime time.Duration `json:"wall_time_ns"`
}

// HarnessConfig configures the scenario harness.
type HarnessConfig struct {
	// Device is the configuration of the device every scenario runs on
	Device *config.DeviceConfig

	// Hooks are attached to every device
	Hooks []sim.Hook

	// DeviceReady is called with every device before the scenario starts
	DeviceReady func(d *drawctxt.Device)

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Device: config.DefaultDeviceConfig(),
		Output: os.Stdout,
	}
}

// Harness runs scenarios and reports results.
type Harness struct {
	config    HarnessConfig
	scenarios []Scenario
}

// NewHarness creates a new scenario harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Device == nil {
		config.Device = DefaultConfig().Device
	}

	return &Harness{config: config}
}

// AddScenario adds a scenario to the harness.
func (h *Harness) AddScenario(s Scenario) {
	h.scenarios = append(h.scenarios, s)
}

// AddScenarios adds multiple scenarios to the harness.
func (h *Harness) AddScenarios(scenarios []Scenario) {
	h.scenarios = append(h.scenarios, scenarios...)
}

// RunAll executes all scenarios and returns results. It stops at the first
// failing scenario.
func (h *Harness) RunAll() ([]Result, error) {
	results := make([]Result, 0, len(h.scenarios))

	for _, s := range h.scenarios {
		result, err := h.Run(s)
		if err != nil {
			return results, fmt.Errorf("scenario %s: %w", s.Name, err)
		}

		results = append(results, result)
	}

	return results, nil
}

// statsHook counts what switches emitted.
type statsHook struct {
	result *Result
}

func (s statsHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case drawctxt.HookPosContextCreated:
		s.result.Contexts++
	case drawctxt.HookPosAfterSwitch:
		rec := ctx.Detail.(*drawctxt.SwitchRecord)

		s.result.Switches++
		if rec.Saved.Has(drawctxt.FlagGMEMSave) {
			s.result.GMEMSaves++
		}
		if rec.Saved.Has(drawctxt.FlagShaderSave) {
			s.result.ShaderSaves++
		}
		if rec.Restored.Has(drawctxt.FlagGMEMRestore) {
			s.result.GMEMRestores++
		}
		if rec.Restored.Has(drawctxt.FlagShaderRestore) {
			s.result.ShaderRestores++
		}
		if rec.SkippedHung {
			s.result.HungSkips++
		}
	}
}

// runner holds the state of one scenario run.
type runner struct {
	device   *drawctxt.Device
	table    vm.PageTable
	nextPID  vm.PID
	contexts map[string]*drawctxt.Context
	result   *Result
}

// Run executes a single scenario on a fresh device.
func (h *Harness) Run(s Scenario) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}

	cfg := h.config.Device
	result := Result{Name: s.Name, Description: s.Description}

	var opts []drawctxt.DeviceOption
	if s.Policy == PolicyTracking {
		opts = append(opts, drawctxt.WithPolicy(drawctxt.TrackingPolicy{}))
	}

	r := &runner{
		table:    vm.NewPageTable(gpumem.Log2PageSize),
		nextPID:  1,
		contexts: make(map[string]*drawctxt.Context),
		result:   &result,
	}

	device, err := drawctxt.NewDevice(
		cfg,
		gpumem.NewSimAllocator(cfg.MemBase, cfg.MemSize, cfg.PhysBase),
		gpumem.NewVMPageTable(r.table, 0, cfg.DefaultPTBase),
		opts...,
	)
	if err != nil {
		return result, err
	}
	r.device = device

	device.AcceptHook(statsHook{result: &result})
	for _, hook := range h.config.Hooks {
		device.AcceptHook(hook)
	}
	if h.config.DeviceReady != nil {
		h.config.DeviceReady(device)
	}

	start := time.Now()

	for _, c := range s.Contexts {
		if err := r.create(c.Name, c.Flags, c.BinBaseOffset); err != nil {
			return result, err
		}
	}

	for i, step := range s.Steps {
		if err := r.step(step); err != nil {
			return result, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}

		words := device.Ring().Drain()
		result.Stream = append(result.Stream, words...)

		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "  %-12s %-4s %4d words\n",
				step.Op, step.Ctx, len(words))
		}
	}

	result.Words = len(result.Stream)
	result.WallTime = time.Since(start)

	return result, nil
}

// pageTable creates the address space of a new context. Its base is the
// address of the context's page directory.
func (r *runner) pageTable() *gpumem.VMPageTable {
	pid := r.nextPID
	r.nextPID++

	base := r.device.Config().DefaultPTBase + uint32(pid)*gpumem.PageSize

	return gpumem.NewVMPageTable(r.table, pid, base)
}

func (r *runner) create(name, flags string, binBase uint32) error {
	f, err := drawctxt.ParseFlags(flags)
	if err != nil {
		return err
	}

	c, err := r.device.Create(r.pageTable(), f)
	if err != nil {
		return err
	}

	if binBase != 0 {
		r.device.SetBinBaseOffset(c, binBase)
	}

	r.contexts[name] = c

	return nil
}

func (r *runner) lookup(name string) (*drawctxt.Context, error) {
	c, ok := r.contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", drawctxt.ErrUnknownContext, name)
	}

	return c, nil
}

func (r *runner) step(step Step) error {
	if step.Op == OpCreate {
		return r.create(step.Ctx, step.Flags, step.Offset)
	}

	if step.Op == OpSwitch && step.Ctx == "" {
		r.device.Switch(nil, switchFlags(step))
		return nil
	}

	c, err := r.lookup(step.Ctx)
	if err != nil {
		return err
	}

	switch step.Op {
	case OpSwitch:
		r.device.Switch(c, switchFlags(step))
	case OpDestroy:
		if err := r.device.Destroy(c); err != nil {
			return err
		}
		delete(r.contexts, step.Ctx)
	case OpHang:
		r.device.MarkHang(c)
	case OpClearHang:
		r.device.ClearHang(c)
	case OpBinBase:
		r.device.SetBinBaseOffset(c, step.Offset)
	case OpSetFlags, OpClearFlags:
		f, err := drawctxt.ParseFlags(step.Flags)
		if err != nil {
			return err
		}

		if step.Op == OpSetFlags {
			c.SetFlags(f)
		} else {
			c.ClearFlags(f)
		}
	}

	return nil
}

func switchFlags(step Step) drawctxt.SwitchFlags {
	if step.SaveGMEM {
		return drawctxt.SwitchSaveGMEM
	}

	return 0
}

// PrintResults outputs scenario results in a human-readable format.
func (h *Harness) PrintResults(results []Result) {
	out := h.config.Output

	_, _ = fmt.Fprintln(out, "=== Context Switch Scenario Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Scenario: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(out, "  Contexts:        %d\n", r.Contexts)
		_, _ = fmt.Fprintf(out, "  Switches:        %d\n", r.Switches)
		_, _ = fmt.Fprintf(out, "  Words:           %d\n", r.Words)
		_, _ = fmt.Fprintf(out, "  GMEM Saves:      %d\n", r.GMEMSaves)
		_, _ = fmt.Fprintf(out, "  GMEM Restores:   %d\n", r.GMEMRestores)
		_, _ = fmt.Fprintf(out, "  Shader Saves:    %d\n", r.ShaderSaves)
		_, _ = fmt.Fprintf(out, "  Shader Restores: %d\n", r.ShaderRestores)
		if r.HungSkips > 0 {
			_, _ = fmt.Fprintf(out, "  Hung Skips:      %d\n", r.HungSkips)
		}
		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs scenario results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []Result) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,contexts,switches,words,gmem_saves,gmem_restores,shader_saves,shader_restores,hung_skips")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Contexts,
			r.Switches,
			r.Words,
			r.GMEMSaves,
			r.GMEMRestores,
			r.ShaderSaves,
			r.ShaderRestores,
			r.HungSkips,
		)
	}
}
