package gpucore

// GPUAdapter abstracts over different GPU backend implementations.
//
// The engine only talks to the GPU through this interface, which lets the
// same shader registry and texture code run on gogpu/wgpu HAL devices and on
// the in-memory software device used for tests.
// Implementations must be safe for concurrent resource creation.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource still referenced by unfinished GPU work is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type GPUAdapter interface {
	// === Shader Compilation ===

	// CreateShaderModule creates a shader module from SPIR-V bytecode.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer, optionally initialized with desc.Contents.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// MapReadAsync requests host-visible access to a buffer created with
	// BufferUsageMapRead. The callback fires from a later Poll once every
	// submission made before the request has completed. A mapping failure
	// is reported through the callback's error.
	MapReadAsync(id BufferID, offset, size uint64, callback func(data []byte, err error))

	// === Texture Management ===

	// CreateTexture creates a 2D GPU texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// WriteTexture writes tightly packed rows to the whole texture through the queue.
	WriteTexture(id TextureID, data []byte, bytesPerRow uint32) error

	// CreateTextureView creates a full 2D view of a texture.
	CreateTextureView(texture TextureID) (TextureViewID, error)

	// DestroyTextureView releases a texture view.
	DestroyTextureView(id TextureViewID)

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording and Execution ===

	// CreateCommandEncoder begins recording a new command buffer.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit submits finished command buffers in order. An empty slice is a
	// valid submission and still advances completion tracking.
	Submit(buffers []CommandBufferID) error

	// Poll drives completion tracking and fires pending map callbacks.
	// With wait set it blocks until all submitted work has finished.
	// It reports whether the queue is idle.
	Poll(wait bool) (bool, error)

	// Destroy releases the device. All resources must already be destroyed.
	Destroy()
}

// CommandEncoder records commands into a single command buffer.
//
// Usage:
//  1. Obtain an encoder from GPUAdapter.CreateCommandEncoder()
//  2. Record compute passes and copies
//  3. Call Finish() and pass the result to GPUAdapter.Submit()
//
// The encoder is single-use and cannot be reused after Finish or Discard.
type CommandEncoder interface {
	// BeginComputePass begins a compute pass.
	// The pass must be ended before any other command is recorded.
	BeginComputePass(label string) ComputePassEncoder

	// CopyTextureToTexture copies a width x height region starting at the origin.
	CopyTextureToTexture(src, dst TextureID, width, height uint32)

	// CopyTextureToBuffer copies a width x height region into dst, writing
	// bytesPerRow bytes per row. bytesPerRow must be a multiple of 256.
	CopyTextureToBuffer(src TextureID, dst BufferID, width, height, bytesPerRow uint32)

	// CopyBufferToBuffer copies size bytes between buffers.
	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset, size uint64)

	// Finish ends recording and returns a command buffer ready for submission.
	Finish() (CommandBufferID, error)

	// Discard abandons recording. It must be called on an encoder whose
	// Finish failed and is a no-op once the encoder has finished.
	Discard()
}

// ComputePassEncoder records compute commands.
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	// Index must be less than the number of bind group layouts in the pipeline.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches compute workgroups.
	// x, y, z are the number of workgroups in each dimension.
	// Total threads = x * y * z * workgroup_size.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	// After this call, the encoder cannot be used again.
	End()
}

// CopyRowAlignment is the required alignment of bytesPerRow in texture to
// buffer copies.
const CopyRowAlignment = 256

// AlignedBytesPerRow rounds a row length up to CopyRowAlignment.
func AlignedBytesPerRow(bytesPerRow uint32) uint32 {
	return (bytesPerRow + CopyRowAlignment - 1) &^ (CopyRowAlignment - 1)
}
