// Package config holds the configuration of a simulated GPU device for the
// context switch core.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sarchlab/ctxswitch/gmem"
)

// Supported GPU models.
const (
	ModelA200 = "a200"
	ModelA205 = "a205"
	ModelA220 = "a220"
	ModelA225 = "a225"
)

// DeviceConfig holds the parameters of the device the contexts run on.
type DeviceConfig struct {
	// Model is the GPU model. Default: a205.
	Model string `json:"model"`

	// GMEMSize is the size of on-chip tile memory in bytes. Shadow surfaces
	// are sized to hold all of it. Default: 256 KB.
	GMEMSize uint32 `json:"gmem_size"`

	// GMEMBase is the GMEM offset of the first tile. Default: 0.
	GMEMBase uint32 `json:"gmem_base"`

	// RingSize is the size of the command ring the switch sequences are
	// issued into, in bytes. Default: 32 KB.
	RingSize uint32 `json:"ring_size"`

	// MemBase is the first device address handed out by the allocator.
	// Default: 0x66000000.
	MemBase uint32 `json:"mem_base"`

	// MemSize is the size of the allocator window in bytes. Default: 64 MB.
	MemSize uint32 `json:"mem_size"`

	// PhysBase is the physical address of MemBase. Default: 0x80000000.
	PhysBase uint64 `json:"phys_base"`

	// DefaultPTBase is the page directory address of the page table that
	// is active when no context is. Default: 0x00100000.
	DefaultPTBase uint32 `json:"default_pt_base"`
}

// DefaultDeviceConfig returns a DeviceConfig for an a205 with 256 KB GMEM.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Model:         ModelA205,
		GMEMSize:      256 * 1024,
		GMEMBase:      0,
		RingSize:      32 * 1024,
		MemBase:       0x66000000,
		MemSize:       64 * 1024 * 1024,
		PhysBase:      0x80000000,
		DefaultPTBase: 0x00100000,
	}
}

// LoadConfig loads a DeviceConfig from a JSON file. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config file: %w", err)
	}

	config := DefaultDeviceConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse device config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a DeviceConfig to a JSON file.
func (c *DeviceConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize device config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write device config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a usable device.
func (c *DeviceConfig) Validate() error {
	switch c.Model {
	case ModelA200, ModelA205, ModelA220, ModelA225:
	default:
		return fmt.Errorf("unknown model %q", c.Model)
	}
	if c.GMEMSize == 0 {
		return fmt.Errorf("gmem_size must be > 0")
	}
	if c.GMEMSize > gmem.MaxCapacity {
		return fmt.Errorf("gmem_size must be <= %d", gmem.MaxCapacity)
	}
	if c.RingSize == 0 || c.RingSize%4 != 0 {
		return fmt.Errorf("ring_size must be a non-zero multiple of 4")
	}
	if c.MemSize == 0 {
		return fmt.Errorf("mem_size must be > 0")
	}
	if c.MemBase%4096 != 0 {
		return fmt.Errorf("mem_base must be page aligned")
	}
	if uint64(c.MemBase)+uint64(c.MemSize) > 1<<32 {
		return fmt.Errorf("allocator window exceeds the 32-bit address space")
	}

	return nil
}

// SupportsBinBase returns true if the model accepts SET_BIN_BASE_OFFSET.
func (c *DeviceConfig) SupportsBinBase() bool {
	return c.Model != ModelA220
}

// Environment variables that override configuration fields.
const (
	EnvModel    = "CTXSWITCH_MODEL"
	EnvGMEMSize = "CTXSWITCH_GMEM_SIZE"
	EnvRingSize = "CTXSWITCH_RING_SIZE"
	EnvMemBase  = "CTXSWITCH_MEM_BASE"
	EnvMemSize  = "CTXSWITCH_MEM_SIZE"
)

// LoadEnv applies overrides from the given dotenv files and from the process
// environment. Process environment variables win over file entries.
func (c *DeviceConfig) LoadEnv(files ...string) error {
	fileEnv := map[string]string{}
	if len(files) > 0 {
		var err error
		fileEnv, err = godotenv.Read(files...)
		if err != nil {
			return fmt.Errorf("failed to read env file: %w", err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}

	if v, ok := lookup(EnvModel); ok {
		c.Model = v
	}

	for key, field := range map[string]*uint32{
		EnvGMEMSize: &c.GMEMSize,
		EnvRingSize: &c.RingSize,
		EnvMemBase:  &c.MemBase,
		EnvMemSize:  &c.MemSize,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}

		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}

		*field = uint32(n)
	}

	return nil
}
