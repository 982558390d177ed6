package shader

import "github.com/gogpu/naga/ir"

// RewriteStorageFormat replaces the texel format of every 2D, non-arrayed
// storage image type declared with from. It returns the number of types
// changed. Globals share type handles, so every global of a rewritten type
// follows.
func RewriteStorageFormat(module *ir.Module, from, to ir.StorageFormat) int {
	if from == to {
		return 0
	}
	n := 0
	for i := range module.Types {
		img, ok := module.Types[i].Inner.(ir.ImageType)
		if !ok {
			continue
		}
		if img.Class != ir.ImageClassStorage || img.Dim != ir.Dim2D || img.Arrayed {
			continue
		}
		if img.StorageFormat != from {
			continue
		}
		img.StorageFormat = to
		module.Types[i].Inner = img
		n++
	}
	return n
}

// oversizedWorkGroup is reduced to clampedWorkGroup.
var (
	oversizedWorkGroup = [3]uint32{32, 32, 1}
	clampedWorkGroup   = [3]uint32{16, 16, 1}
)

// ClampWorkGroup forces any entry point declaring a 32x32x1 work group down
// to 16x16x1. Other sizes are left alone.
func ClampWorkGroup(module *ir.Module) bool {
	clamped := false
	for i := range module.EntryPoints {
		if module.EntryPoints[i].Workgroup == oversizedWorkGroup {
			module.EntryPoints[i].Workgroup = clampedWorkGroup
			clamped = true
		}
	}
	return clamped
}
