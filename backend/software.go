package backend

import (
	"github.com/ReinaS-64892/TTCE-Wgpu/backend/software"
	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// init registers the software adapter on package import.
func init() {
	Register(BackendSoftware, func() (gpucore.GPUAdapter, error) {
		return software.New(), nil
	})
}
