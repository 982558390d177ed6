package backend

import (
	"errors"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the in-memory CPU adapter.
	BackendSoftware = "software"
	// BackendNative is the name of the gogpu/wgpu HAL adapter with automatic
	// adapter selection.
	BackendNative = "native"
	// BackendNativeHighPerformance opens a discrete GPU.
	BackendNativeHighPerformance = "native-high-performance"
	// BackendNativeLowPower opens an integrated GPU.
	BackendNativeLowPower = "native-low-power"
)

// Factory opens a GPU adapter. The caller owns the adapter and must call
// Destroy, directly or through ttce.Device.Close.
//
// Factories must be registered via Register() and are selected via
// Open() or Default().
type Factory func() (gpucore.GPUAdapter, error)
