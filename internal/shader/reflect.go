package shader

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/gogpu/naga/ir"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// Kind classifies a binding by the resource a caller must supply.
type Kind uint8

const (
	// KindUnclassified bindings (samplers, plain uniforms) are laid out but
	// not exposed to callers.
	KindUnclassified Kind = iota
	KindConstantBuffer
	KindStorageBuffer
	KindReadWriteTexture
)

func (k Kind) String() string {
	switch k {
	case KindConstantBuffer:
		return "ConstantBuffer"
	case KindStorageBuffer:
		return "StorageBuffer"
	case KindReadWriteTexture:
		return "ReadWriteTexture"
	default:
		return "Unclassified"
	}
}

// Binding is one reflected group 0 resource.
type Binding struct {
	Name   string
	Slot   uint32
	Kind   Kind
	Layout gpucore.BindGroupLayoutEntry
}

// Reflect collects the named, bound globals of group 0 in slot order.
// Globals of other groups are logged and skipped. Two globals sharing a
// slot fail with ErrValidate.
func Reflect(module *ir.Module, logger *slog.Logger) ([]Binding, error) {
	var bindings []Binding
	seen := make(map[uint32]string)

	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil || gv.Name == "" {
			continue
		}
		if gv.Binding.Group != 0 {
			logger.Debug("shader: binding group is not 0, skipped",
				"name", gv.Name, "group", gv.Binding.Group, "binding", gv.Binding.Binding)
			continue
		}
		if int(gv.Type) >= len(module.Types) {
			return nil, fmt.Errorf("%w: global %q has invalid type handle %d", ErrValidate, gv.Name, gv.Type)
		}

		slot := gv.Binding.Binding
		if other, dup := seen[slot]; dup {
			return nil, fmt.Errorf("%w: %q and %q share binding %d", ErrValidate, other, gv.Name, slot)
		}
		seen[slot] = gv.Name

		b, ok := classify(gv, module.Types[gv.Type].Inner)
		if !ok {
			logger.Debug("shader: binding has no resource layout, skipped", "name", gv.Name, "binding", slot)
			continue
		}
		b.Name = gv.Name
		b.Slot = slot
		b.Layout.Binding = slot
		bindings = append(bindings, b)
	}

	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Slot < bindings[j].Slot })
	return bindings, nil
}

func classify(gv ir.GlobalVariable, inner ir.TypeInner) (Binding, bool) {
	switch gv.Space {
	case ir.SpaceUniform:
		b := Binding{Layout: gpucore.BindGroupLayoutEntry{Type: gpucore.BindingTypeUniformBuffer}}
		if isStructured(inner) {
			b.Kind = KindConstantBuffer
		}
		return b, true
	case ir.SpaceStorage:
		b := Binding{Layout: gpucore.BindGroupLayoutEntry{Type: gpucore.BindingTypeStorageBuffer}}
		if isStructured(inner) {
			b.Kind = KindStorageBuffer
		}
		return b, true
	case ir.SpaceHandle:
		switch t := inner.(type) {
		case ir.ImageType:
			b := Binding{Kind: KindReadWriteTexture}
			if t.Class == ir.ImageClassStorage {
				b.Layout.Type = gpucore.BindingTypeStorageTexture
				b.Layout.StorageFormat = TextureFormat(t.StorageFormat)
				b.Layout.Access = storageAccess(t.StorageAccess)
			} else {
				b.Layout.Type = gpucore.BindingTypeSampledTexture
			}
			return b, true
		case ir.SamplerType:
			return Binding{Layout: gpucore.BindGroupLayoutEntry{Type: gpucore.BindingTypeSampler}}, true
		}
	}
	return Binding{}, false
}

func isStructured(inner ir.TypeInner) bool {
	switch inner.(type) {
	case ir.StructType, ir.ArrayType:
		return true
	}
	return false
}

func storageAccess(a ir.StorageAccess) gpucore.StorageAccess {
	switch a {
	case ir.StorageAccessRead:
		return gpucore.StorageAccessReadOnly
	case ir.StorageAccessWrite:
		return gpucore.StorageAccessWriteOnly
	default:
		return gpucore.StorageAccessReadWrite
	}
}

// TextureFormat maps an IR storage format to the texture format of the same
// texel layout. Formats a render texture cannot use map to
// TextureFormatUndefined.
func TextureFormat(f ir.StorageFormat) gpucore.TextureFormat {
	for tf, sf := range storageFormats {
		if sf == f {
			return tf
		}
	}
	return gpucore.TextureFormatUndefined
}

// StorageFormat maps a texture format to its IR storage format.
func StorageFormat(f gpucore.TextureFormat) ir.StorageFormat {
	if sf, ok := storageFormats[f]; ok {
		return sf
	}
	return ir.StorageFormatUnknown
}

var storageFormats = map[gpucore.TextureFormat]ir.StorageFormat{
	gpucore.TextureFormatR8Unorm:     ir.StorageFormatR8Unorm,
	gpucore.TextureFormatRG8Unorm:    ir.StorageFormatRg8Unorm,
	gpucore.TextureFormatRGBA8Unorm:  ir.StorageFormatRgba8Unorm,
	gpucore.TextureFormatR16Unorm:    ir.StorageFormatR16Unorm,
	gpucore.TextureFormatRG16Unorm:   ir.StorageFormatRg16Unorm,
	gpucore.TextureFormatRGBA16Unorm: ir.StorageFormatRgba16Unorm,
	gpucore.TextureFormatR16Float:    ir.StorageFormatR16Float,
	gpucore.TextureFormatRG16Float:   ir.StorageFormatRg16Float,
	gpucore.TextureFormatRGBA16Float: ir.StorageFormatRgba16Float,
	gpucore.TextureFormatR32Float:    ir.StorageFormatR32Float,
	gpucore.TextureFormatRG32Float:   ir.StorageFormatRg32Float,
	gpucore.TextureFormatRGBA32Float: ir.StorageFormatRgba32Float,
}
