//go:build !nogpu

package native

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// PowerPreference selects between physical adapters.
type PowerPreference int

const (
	// PreferenceAuto picks a discrete GPU, then an integrated one, then
	// whatever is enumerated first.
	PreferenceAuto PowerPreference = iota

	// PreferenceHighPerformance requires a discrete GPU.
	PreferenceHighPerformance

	// PreferenceLowPower requires an integrated GPU.
	PreferenceLowPower
)

// String returns the preference name.
func (p PowerPreference) String() string {
	switch p {
	case PreferenceHighPerformance:
		return "high-performance"
	case PreferenceLowPower:
		return "low-power"
	default:
		return "auto"
	}
}

// Options configure Open.
type Options struct {
	// Preference selects the physical adapter.
	Preference PowerPreference

	// Timeout bounds a blocking Poll. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Open creates a standalone Vulkan device for compute-only use.
// The returned adapter owns the device and destroys it in Destroy.
func Open(opts Options) (*HALAdapter, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoGPU)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapter, err := openInstance(instance, opts)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return adapter, nil
}

// openInstance opens a device on the adapter instance selects. On success
// the HALAdapter owns both the device and the instance.
func openInstance(instance hal.Instance, opts Options) (*HALAdapter, error) {
	adapters := instance.EnumerateAdapters(nil)
	selected, err := selectAdapter(adapters, opts.Preference)
	if err != nil {
		return nil, err
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	a, err := NewHALAdapter(openDev.Device, openDev.Queue)
	if err != nil {
		openDev.Device.Destroy()
		return nil, err
	}
	a.instance = instance
	a.owned = true
	a.name = selected.Info.Name
	if opts.Timeout > 0 {
		a.timeout = opts.Timeout
	}
	a.logger.Load().Info("native: GPU initialized (standalone)",
		"adapter", a.name, "preference", opts.Preference)
	return a, nil
}

// selectAdapter applies the power preference to the enumerated adapters.
func selectAdapter(adapters []hal.ExposedAdapter, pref PowerPreference) (*hal.ExposedAdapter, error) {
	if len(adapters) == 0 {
		return nil, ErrNoGPU
	}

	var want []gputypes.DeviceType
	switch pref {
	case PreferenceHighPerformance:
		want = []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU}
	case PreferenceLowPower:
		want = []gputypes.DeviceType{gputypes.DeviceTypeIntegratedGPU}
	default:
		want = []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU}
	}

	for _, t := range want {
		for i := range adapters {
			if adapters[i].Info.DeviceType == t {
				return &adapters[i], nil
			}
		}
	}
	if pref == PreferenceAuto {
		return &adapters[0], nil
	}
	return nil, fmt.Errorf("%w: no %s adapter", ErrNoGPU, pref)
}

// NewFromProvider shares the device of an external provider, such as a
// gogpu window. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. The device stays owned
// by the provider.
func NewFromProvider(provider gpucontext.DeviceProvider) (*HALAdapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoGPU)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoGPU)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoGPU)
	}
	return NewHALAdapter(device, queue)
}
