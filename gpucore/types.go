package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// TextureViewID is an opaque handle to a view of a GPU texture.
type TextureViewID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// CommandBufferID is an opaque handle to a finished, not yet submitted
// command buffer.
type CommandBufferID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats. Only the formats a render texture can be allocated in
// are listed.
const (
	TextureFormatUndefined TextureFormat = iota

	TextureFormatR8Unorm
	TextureFormatRG8Unorm
	TextureFormatRGBA8Unorm

	TextureFormatR16Unorm
	TextureFormatRG16Unorm
	TextureFormatRGBA16Unorm

	TextureFormatR16Float
	TextureFormatRG16Float
	TextureFormatRGBA16Float

	TextureFormatR32Float
	TextureFormatRG32Float
	TextureFormatRGBA32Float
)

// String returns the WGSL storage texel format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatR8Unorm:
		return "r8unorm"
	case TextureFormatRG8Unorm:
		return "rg8unorm"
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatR16Unorm:
		return "r16unorm"
	case TextureFormatRG16Unorm:
		return "rg16unorm"
	case TextureFormatRGBA16Unorm:
		return "rgba16unorm"
	case TextureFormatR16Float:
		return "r16float"
	case TextureFormatRG16Float:
		return "rg16float"
	case TextureFormatRGBA16Float:
		return "rgba16float"
	case TextureFormatR32Float:
		return "r32float"
	case TextureFormatRG32Float:
		return "rg32float"
	case TextureFormatRGBA32Float:
		return "rgba32float"
	default:
		return "undefined"
	}
}

// BlockSize returns the number of bytes one texel occupies, or 0 for
// TextureFormatUndefined.
func (f TextureFormat) BlockSize() uint32 {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	case TextureFormatRG8Unorm, TextureFormatR16Unorm, TextureFormatR16Float:
		return 2
	case TextureFormatRGBA8Unorm, TextureFormatRG16Unorm, TextureFormatRG16Float, TextureFormatR32Float:
		return 4
	case TextureFormatRGBA16Unorm, TextureFormatRGBA16Float, TextureFormatRG32Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a storage texture.
	TextureUsageStorageBinding TextureUsage = 1 << 3

	// TextureUsageRenderAttachment indicates the texture can be used as a render target.
	TextureUsageRenderAttachment TextureUsage = 1 << 4
)

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampler is a texture sampler binding.
	BindingTypeSampler

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// StorageAccess is the access mode of a storage texture binding.
type StorageAccess uint32

// Storage texture access modes.
const (
	StorageAccessReadWrite StorageAccess = iota
	StorageAccessReadOnly
	StorageAccessWriteOnly
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. It must be a multiple of 4.
	Size uint64

	// Usage is a bitmask of BufferUsage flags.
	Usage BufferUsage

	// Contents, when non-nil, initializes the start of the buffer.
	// The remainder is zero-filled.
	Contents []byte
}

// TextureDesc describes a 2D texture with a single mip level.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

// ShaderModuleDesc describes a compute shader module.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// SPIRV is the module as little-endian SPIR-V words.
	SPIRV []uint32

	// Source is the WGSL text the module was generated from.
	// Backends that cannot consume SPIR-V use it instead.
	Source string
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	// Set to 0 for non-buffer bindings.
	MinBindingSize uint64

	// StorageFormat and Access describe storage texture bindings.
	StorageFormat TextureFormat
	Access        StorageAccess
}

// BindGroupEntry describes a single binding in a bind group.
// Exactly one of Buffer and TextureView is set.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64

	// TextureView is the view to bind (for texture bindings).
	TextureView TextureViewID
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}
