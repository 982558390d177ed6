package ttce

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinaS-64892/TTCE-Wgpu/backend/software"
	"github.com/ReinaS-64892/TTCE-Wgpu/toolchain"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		assert.False(t, h.Enabled(context.Background(), level), "level %v", level)
	}
	assert.NoError(t, h.Handle(context.Background(), slog.Record{}))
	assert.IsType(t, nopHandler{}, h.WithAttrs([]slog.Attr{slog.String("key", "val")}))
	assert.IsType(t, nopHandler{}, h.WithGroup("group"))
}

type recordingAdapter struct {
	*software.Adapter
	logger *slog.Logger
}

func (r *recordingAdapter) SetLogger(l *slog.Logger) {
	r.logger = l
	r.Adapter.SetLogger(l)
}

func TestLoggerPropagation(t *testing.T) {
	gpu := &recordingAdapter{Adapter: software.New()}
	logger := slog.New(slog.NewTextHandler(&testWriter{t}, nil))

	dev, err := NewDevice(gpu, WithLogger(logger), WithCompiler(&toolchain.WGSL{}))
	require.NoError(t, err)
	defer dev.Close()

	assert.Same(t, logger, dev.Logger())
	assert.Same(t, logger, gpu.logger)
}

func TestDefaultLoggerSilent(t *testing.T) {
	dev, _ := newTestDevice(t, WithLogger(nil))
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		assert.False(t, dev.Logger().Enabled(context.Background(), level))
	}
}

// testWriter forwards log output to the test log.
type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
