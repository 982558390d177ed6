// Package backend provides a registry of GPU adapters.
//
// Adapters are registered via init() functions and selected at runtime by
// name. Importing the package registers the software adapter and, unless
// built with the nogpu tag, the gogpu/wgpu HAL adapters.
//
// # Backend Selection
//
// Use Default() to open the best available adapter, or Open() to request
// a specific one by name:
//
//	// Open the default (best available) adapter
//	gpu, name, err := backend.Default()
//
//	// Or request a specific adapter
//	gpu, err := backend.Open(backend.BackendNativeHighPerformance)
//
// The adapter is handed to ttce.NewDevice, which destroys it on Close:
//
//	dev, err := ttce.NewDevice(gpu)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
//   - "native": gogpu/wgpu HAL on Vulkan, discrete GPU preferred
//   - "native-high-performance": discrete GPU only
//   - "native-low-power": integrated GPU only
//   - "software": in-memory CPU adapter (always available)
package backend
