package ttce

import (
	"context"
	"fmt"
	"strings"
)

// converterTemplate copies each texel of SrcTex into DistTex. The storage
// formats are substituted per converter.
const converterTemplate = `
@group(0) @binding(0)
var SrcTex: texture_storage_2d<{{FROM}}, read>;
@group(0) @binding(1)
var DistTex: texture_storage_2d<{{TO}}, write>;

@compute @workgroup_size(16, 16, 1)
fn CSMain(@builtin(global_invocation_id) param: vec3<u32>) {
    let pos = param.xy;
    let col = textureLoad(SrcTex, pos);
    textureStore(DistTex, pos, col);
}
`

// Converter binding names.
const (
	converterSrc = "SrcTex"
	converterDst = "DistTex"
)

type converterKey struct {
	from, to TextureFormat
}

// converterSource returns the WGSL of the from -> to RGBA converter.
func converterSource(from, to TextureFormat) string {
	r := strings.NewReplacer(
		"{{FROM}}", PixelFormat{from, ChannelRGBA}.GPUFormat().String(),
		"{{TO}}", PixelFormat{to, ChannelRGBA}.GPUFormat().String(),
	)
	return r.Replace(converterTemplate)
}

// registerConverters registers a converter for every ordered pair of
// distinct RGBA formats.
func (d *Device) registerConverters(ctx context.Context) error {
	formats := []TextureFormat{FormatByte, FormatUShort, FormatHalf, FormatFloat}
	for _, from := range formats {
		for _, to := range formats {
			if from == to {
				continue
			}
			name := fmt.Sprintf("convert %v to %v", from, to)
			id, err := d.RegisterWGSL(ctx, name, converterSource(from, to))
			if err != nil {
				return fmt.Errorf("ttce: register converter: %w", err)
			}
			d.mu.Lock()
			d.converters[converterKey{from, to}] = id
			d.mu.Unlock()
		}
	}
	d.logger.Info("ttce: format converters registered", "count", len(formats)*(len(formats)-1))
	return nil
}

// converter returns the shader that converts textures of from into to.
func (d *Device) converter(from, to PixelFormat) (ShaderID, error) {
	if from.Channel != to.Channel || from.Channel != ChannelRGBA {
		return 0, fmt.Errorf("%w: %v to %v", ErrNoConverter, from, to)
	}
	d.mu.RLock()
	id, ok := d.converters[converterKey{from.Format, to.Format}]
	d.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %v to %v", ErrNoConverter, from, to)
	}
	return id, nil
}
