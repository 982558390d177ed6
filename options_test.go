package ttce

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ReinaS-64892/TTCE-Wgpu/toolchain"
)

func TestDefaultDeviceOptions(t *testing.T) {
	o := defaultDeviceOptions()
	assert.Equal(t, FormatFloat, o.defaultFormat)
	assert.Equal(t, DefaultBacklogThreshold, o.backlogThreshold)
	assert.Nil(t, o.compiler, "the DXC compiler is chosen at NewDevice")
	assert.Equal(t, toolchain.DefaultCacheSize, o.compileCache)
	assert.False(t, o.logger.Enabled(context.Background(), slog.LevelError))
}

func TestDeviceOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&testWriter{t}, nil))
	compiler := &toolchain.WGSL{}

	o := defaultDeviceOptions()
	for _, opt := range []DeviceOption{
		WithLogger(logger),
		WithDefaultFormat(FormatHalf),
		WithBacklogThreshold(8),
		WithBacklogThreshold(-1),
		WithCompiler(compiler),
		WithIncludeDirs("a", "b"),
		WithIncludeDirs("c"),
		WithCompileCache(-5),
	} {
		opt(&o)
	}

	assert.Same(t, logger, o.logger)
	assert.Equal(t, FormatHalf, o.defaultFormat)
	assert.Equal(t, 8, o.backlogThreshold, "non-positive thresholds are ignored")
	assert.Same(t, compiler, o.compiler)
	assert.Equal(t, []string{"a", "b", "c"}, o.includeDirs)
	assert.Zero(t, o.compileCache)
}
