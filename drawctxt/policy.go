package drawctxt

// A TransitionPolicy decides how a context's save and restore flags change
// across switches. The device calls it at fixed points of every switch; the
// policy may change the flags of the context it is given.
type TransitionPolicy interface {
	// Incoming is called with the context requested by a switch, before the
	// device checks whether it is already active.
	Incoming(c *Context, flags SwitchFlags)

	// Saved is called after save sequences were emitted for c. saved holds
	// FlagGMEMSave and/or FlagShaderSave.
	Saved(c *Context, saved Flags)

	// Restored is called after restore sequences were emitted for c.
	// restored holds FlagGMEMRestore and/or FlagShaderRestore.
	Restored(c *Context, restored Flags)
}

// StaticPolicy never changes flags. Save and restore flags are those given
// at creation or set explicitly with Context.SetFlags.
type StaticPolicy struct{}

// Incoming does nothing.
func (StaticPolicy) Incoming(*Context, SwitchFlags) {}

// Saved does nothing.
func (StaticPolicy) Saved(*Context, Flags) {}

// Restored does nothing.
func (StaticPolicy) Restored(*Context, Flags) {}

// TrackingPolicy keeps the flags in step with the content of the shadows:
//   - SwitchSaveGMEM sets GMEM_SAVE on the incoming context, its absence
//     clears it;
//   - once GMEM has been saved it can be restored, same for shaders;
//   - a restored GMEM shadow is stale and is not restored again until the
//     next save.
type TrackingPolicy struct{}

// Incoming applies SwitchSaveGMEM.
func (TrackingPolicy) Incoming(c *Context, flags SwitchFlags) {
	if flags&SwitchSaveGMEM != 0 {
		c.SetFlags(FlagGMEMSave)
	} else {
		c.ClearFlags(FlagGMEMSave)
	}
}

// Saved marks the saved shadows as restorable.
func (TrackingPolicy) Saved(c *Context, saved Flags) {
	if saved&FlagGMEMSave != 0 {
		c.SetFlags(FlagGMEMRestore)
	}
	if saved&FlagShaderSave != 0 {
		c.SetFlags(FlagShaderRestore)
	}
}

// Restored clears GMEM_RESTORE after the GMEM shadow was consumed.
func (TrackingPolicy) Restored(c *Context, restored Flags) {
	if restored&FlagGMEMRestore != 0 {
		c.ClearFlags(FlagGMEMRestore)
	}
}
