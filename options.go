package ttce

import (
	"log/slog"

	"github.com/ReinaS-64892/TTCE-Wgpu/toolchain"
)

// DefaultBacklogThreshold is the number of encoder accesses a Context
// accumulates before it submits on its own.
const DefaultBacklogThreshold = 64

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := ttce.NewDevice(adapter,
//	    ttce.WithDefaultFormat(ttce.FormatByte),
//	    ttce.WithLogger(slog.Default()),
//	)
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	logger           *slog.Logger
	defaultFormat    TextureFormat
	backlogThreshold int
	compiler         toolchain.Compiler
	compileCache     int
	includeDirs      []string
}

// defaultDeviceOptions returns the default device options.
func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		logger:           newNopLogger(),
		defaultFormat:    FormatFloat,
		backlogThreshold: DefaultBacklogThreshold,
		compileCache:     toolchain.DefaultCacheSize,
	}
}

// WithLogger sets the logger for the device and its GPU adapter.
// By default the device produces no log output.
//
// Log levels used:
//   - [slog.LevelDebug]: shader reflection and resource detail
//   - [slog.LevelInfo]: lifecycle events (device ready, converters built)
//   - [slog.LevelWarn]: non-fatal issues (resource release errors)
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		if l == nil {
			l = newNopLogger()
		}
		o.logger = l
	}
}

// WithDefaultFormat sets the format used by NewRenderTexture and by the
// storage image rewrite at registration. The default is FormatFloat.
func WithDefaultFormat(f TextureFormat) DeviceOption {
	return func(o *deviceOptions) {
		o.defaultFormat = f
	}
}

// WithBacklogThreshold sets how many encoder accesses a Context batches
// before submitting. Values below 1 are ignored.
func WithBacklogThreshold(n int) DeviceOption {
	return func(o *deviceOptions) {
		if n > 0 {
			o.backlogThreshold = n
		}
	}
}

// WithCompiler sets the HLSL compiler. The default runs dxc and naga from PATH.
func WithCompiler(c toolchain.Compiler) DeviceOption {
	return func(o *deviceOptions) {
		o.compiler = c
	}
}

// WithIncludeDirs adds search directories for #include in HLSL and WGSL sources.
func WithIncludeDirs(dirs ...string) DeviceOption {
	return func(o *deviceOptions) {
		o.includeDirs = append(o.includeDirs, dirs...)
	}
}

// WithCompileCache sets how many HLSL compilation results the device keeps,
// keyed by request. Zero disables the cache. The default is
// toolchain.DefaultCacheSize.
func WithCompileCache(entries int) DeviceOption {
	return func(o *deviceOptions) {
		o.compileCache = max(entries, 0)
	}
}
