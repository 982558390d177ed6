package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinaS-64892/TTCE-Wgpu/backend/software"
	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// swapRegistry replaces the registry for the duration of a test.
func swapRegistry(t *testing.T, factories map[string]Factory) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = factories
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func failing(err error) Factory {
	return func() (gpucore.GPUAdapter, error) { return nil, err }
}

func TestSoftwareRegistered(t *testing.T) {
	assert.True(t, IsRegistered(BackendSoftware))
	assert.Contains(t, Available(), BackendSoftware)

	a, err := Open(BackendSoftware)
	require.NoError(t, err)
	defer a.Destroy()
	assert.IsType(t, &software.Adapter{}, a)
}

func TestRegisterUnregister(t *testing.T) {
	swapRegistry(t, map[string]Factory{})

	Register("b", failing(errors.New("b")))
	Register("a", failing(errors.New("a")))
	assert.Equal(t, []string{"a", "b"}, Available())

	Unregister("a")
	assert.False(t, IsRegistered("a"))
	assert.Equal(t, []string{"b"}, Available())
}

func TestOpenErrors(t *testing.T) {
	swapRegistry(t, map[string]Factory{})

	_, err := Open("missing")
	assert.ErrorIs(t, err, ErrBackendNotAvailable)

	boom := errors.New("no device")
	Register(BackendNative, failing(boom))
	_, err = Open(BackendNative)
	assert.ErrorIs(t, err, ErrBackendNotAvailable)
	assert.ErrorIs(t, err, boom)
}

func TestDefaultPriority(t *testing.T) {
	swapRegistry(t, map[string]Factory{})

	_, _, err := Default()
	assert.ErrorIs(t, err, ErrBackendNotAvailable, "empty registry")

	opened := []string{}
	factory := func(name string, fail bool) Factory {
		return func() (gpucore.GPUAdapter, error) {
			opened = append(opened, name)
			if fail {
				return nil, errors.New(name)
			}
			return software.New(), nil
		}
	}
	Register("custom", factory("custom", false))
	Register(BackendSoftware, factory(BackendSoftware, false))
	Register(BackendNative, factory(BackendNative, true))

	a, name, err := Default()
	require.NoError(t, err)
	defer a.Destroy()
	assert.Equal(t, BackendSoftware, name, "software is the fallback for a failing native")
	assert.Equal(t, []string{BackendNative, BackendSoftware}, opened)

	// Unprioritized backends are tried last.
	Unregister(BackendSoftware)
	opened = opened[:0]
	b, name, err := Default()
	require.NoError(t, err)
	defer b.Destroy()
	assert.Equal(t, "custom", name)
	assert.Equal(t, []string{BackendNative, "custom"}, opened)
}

func TestDefaultAllFail(t *testing.T) {
	swapRegistry(t, map[string]Factory{
		BackendNative:   failing(errors.New("native down")),
		BackendSoftware: failing(errors.New("software down")),
	})
	_, _, err := Default()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendNotAvailable)
	assert.Contains(t, err.Error(), "native down")
	assert.Contains(t, err.Error(), "software down")
}
