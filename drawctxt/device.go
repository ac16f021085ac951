package drawctxt

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/ctxswitch/config"
	"github.com/sarchlab/ctxswitch/gmem"
	"github.com/sarchlab/ctxswitch/gpumem"
)

var (
	// ErrAllocation is returned when a context's memory cannot be obtained.
	ErrAllocation = errors.New("context allocation failed")

	// ErrUnknownContext is returned for contexts that are not registered
	// with the device.
	ErrUnknownContext = errors.New("unknown context")

	// ErrNoPageTable is returned when a context is created without a page
	// table to render into.
	ErrNoPageTable = errors.New("context has no page table")
)

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithPolicy sets the flag transition policy. The default is StaticPolicy.
func WithPolicy(p TransitionPolicy) DeviceOption {
	return func(d *Device) {
		d.policy = p
	}
}

// Device is a GPU whose pipeline is shared by draw contexts.
type Device struct {
	*sim.HookableBase

	mu sync.Mutex

	config    *config.DeviceConfig
	allocator gpumem.Allocator
	defaultPT gpumem.PageTable
	policy    TransitionPolicy
	surface   gmem.Surface

	ring     *Ring
	active   *Context
	contexts map[string]*Context
}

// NewDevice creates a device and allocates its ring in the default page
// table.
func NewDevice(
	cfg *config.DeviceConfig,
	allocator gpumem.Allocator,
	defaultPT gpumem.PageTable,
	opts ...DeviceOption,
) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}

	d := &Device{
		HookableBase: sim.NewHookableBase(),
		config:       cfg,
		allocator:    allocator,
		defaultPT:    defaultPT,
		policy:       StaticPolicy{},
		surface:      gmem.Calc(cfg.GMEMSize),
		contexts:     make(map[string]*Context),
	}

	for _, opt := range opts {
		opt(d)
	}

	buf, err := allocator.Alloc(defaultPT, cfg.RingSize)
	if err != nil {
		return nil, fmt.Errorf("%w: ring: %w", ErrAllocation, err)
	}

	d.ring = newRing(buf)

	return d, nil
}

// Config returns the device configuration.
func (d *Device) Config() *config.DeviceConfig {
	return d.config
}

// Ring returns the command ring.
func (d *Device) Ring() *Ring {
	return d.ring
}

// ShadowSurface returns the geometry of the GMEM shadow surfaces.
func (d *Device) ShadowSurface() gmem.Surface {
	return d.surface
}

// DefaultPageTable returns the page table active when no context is.
func (d *Device) DefaultPageTable() gpumem.PageTable {
	return d.defaultPT
}

// Create allocates and builds a new context rendering into pt.
//
// flags are the initial context flags. FlagInUse is always set, GMEM shadowing
// implies a state shadow, and save or restore flags without their shadow are
// dropped. On error nothing is allocated and the context is not registered.
func (d *Device) Create(pt gpumem.PageTable, flags Flags) (*Context, error) {
	if pt == nil {
		return nil, fmt.Errorf("creating context: %w", ErrNoPageTable)
	}
	if vpt, ok := pt.(*gpumem.VMPageTable); ok && vpt == nil {
		return nil, fmt.Errorf("creating context: %w", ErrNoPageTable)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := &Context{
		id:        sim.GetIDGenerator().Generate(),
		flags:     normalizeCreateFlags(flags),
		pagetable: pt,
	}

	if c.flags.Has(FlagStateShadow) {
		if err := d.allocateState(c); err != nil {
			d.release(c)
			return nil, err
		}
	}

	d.contexts[c.id] = c

	d.InvokeHook(sim.HookCtx{Domain: d, Pos: HookPosContextCreated, Item: c})

	return c, nil
}

func (d *Device) allocateState(c *Context) error {
	var err error

	c.gpustate, err = d.allocator.Alloc(c.pagetable, StateSize)
	if err != nil {
		return fmt.Errorf("%w: state buffer: %w", ErrAllocation, err)
	}

	var (
		surface *gmem.Surface
		shadow  *gpumem.Descriptor
	)

	if c.flags.Has(FlagGMEMShadow) {
		s := d.surface
		surface = &s

		shadow, err = d.allocator.Alloc(c.pagetable, s.Size)
		if err != nil {
			return fmt.Errorf("%w: gmem shadow: %w", ErrAllocation, err)
		}
	}

	b := newBuilder(c, d.config.GMEMBase)
	if err := b.build(surface, shadow); err != nil {
		if shadow != nil && c.shadow == nil {
			d.allocator.Free(shadow)
		}
		return fmt.Errorf("building context sequences: %w", err)
	}

	return nil
}

// release frees whatever memory the context holds.
func (d *Device) release(c *Context) {
	if c.shadow != nil {
		d.allocator.Free(c.shadow.Buffer)
		c.shadow = nil
	}

	if c.gpustate != nil {
		d.allocator.Free(c.gpustate)
		c.gpustate = nil
	}
}

// Destroy releases a context's state buffer and shadow surface. A context
// that is active is switched out first. Nothing is saved on that switch: no
// ring command may reference the freed memory.
func (d *Device) Destroy(c *Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.contexts[c.id] != c {
		return fmt.Errorf("%w: %s", ErrUnknownContext, c.id)
	}

	if d.active == c {
		c.flags &^= FlagGMEMSave | FlagShaderSave | allocationFlags
		d.doSwitch(nil)
	}

	d.release(c)
	c.flags = FlagNotInUse
	delete(d.contexts, c.id)

	d.InvokeHook(sim.HookCtx{Domain: d, Pos: HookPosContextDestroyed, Item: c})

	return nil
}

// SetBinBaseOffset sets the bin base offset the context applies when it is
// switched in next.
func (d *Device) SetBinBaseOffset(c *Context, offset uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c.binBaseOffset = offset
}

// MarkHang flags a context as having hung the GPU. The mark is sticky until
// ClearHang.
func (d *Device) MarkHang(c *Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c.flags |= FlagGPUHang
}

// ClearHang removes the hang mark after external recovery.
func (d *Device) ClearHang(c *Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c.flags &^= FlagGPUHang
}

// Active returns the context resident on the hardware, or nil.
func (d *Device) Active() *Context {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.active
}

// Lookup returns a registered context by ID.
func (d *Device) Lookup(id string) (*Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.contexts[id]
	return c, ok
}

// Contexts returns the registered contexts ordered by ID.
func (d *Device) Contexts() []*Context {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]*Context, 0, len(d.contexts))
	for _, c := range d.contexts {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].id < list[j].id
	})

	return list
}

// PendingWords returns a copy of the words issued into the ring since it was
// last drained.
func (d *Device) PendingWords() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint32(nil), d.ring.Words()...)
}
