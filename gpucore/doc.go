// Package gpucore provides the GPU abstraction the ttce engine runs on.
//
// This package defines the [GPUAdapter] interface, which abstracts over
// different GPU backend implementations, allowing the same engine code to
// work with:
//   - gogpu/wgpu HAL devices (backend/native)
//   - an in-memory software device (backend/software)
//
// # Architecture
//
// Thin adapters translate between [GPUAdapter] and a specific backend API.
// Resources are referred to by opaque uint64 IDs so that the engine never
// holds backend objects directly.
//
//	               +-----------------+
//	               |      ttce       |
//	               | registry/context|
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  native adapter |          |software adapter |
//	|  (hal.Device)   |          |  (host memory)  |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Command model
//
// Work is recorded into a [CommandEncoder], finished into a command buffer
// and submitted with [GPUAdapter.Submit]. Host readback is asynchronous:
// [GPUAdapter.MapReadAsync] registers a callback that a later
// [GPUAdapter.Poll] fires once the preceding submissions complete.
package gpucore
