//go:build !nogpu

package backend

import (
	"github.com/ReinaS-64892/TTCE-Wgpu/backend/native"
	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// init registers the HAL adapters, one per power preference.
func init() {
	for name, pref := range map[string]native.PowerPreference{
		BackendNative:                native.PreferenceAuto,
		BackendNativeHighPerformance: native.PreferenceHighPerformance,
		BackendNativeLowPower:        native.PreferenceLowPower,
	} {
		Register(name, func() (gpucore.GPUAdapter, error) {
			return native.Open(native.Options{Preference: pref})
		})
	}
}
