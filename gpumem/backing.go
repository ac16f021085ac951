package gpumem

// Read returns n words starting at the device address. The bool is false if
// the range is not inside a single live allocation.
func (a *SimAllocator) Read(gpuAddr uint32, n int) ([]uint32, bool) {
	d, ok := a.find(gpuAddr)
	if !ok {
		return nil, false
	}

	off := int(gpuAddr-d.GPUAddr) / WordSize
	if off+n > len(d.Words) {
		return nil, false
	}

	return d.Words[off : off+n], true
}

// Write stores words starting at the device address.
func (a *SimAllocator) Write(gpuAddr uint32, words []uint32) bool {
	dst, ok := a.Read(gpuAddr, len(words))
	if !ok {
		return false
	}

	copy(dst, words)

	return true
}

func (a *SimAllocator) find(gpuAddr uint32) (*Descriptor, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, alloc := range a.live {
		if alloc.desc.Contains(gpuAddr) {
			return alloc.desc, true
		}
	}

	return nil, false
}
