// Command ttce runs a compute shader over an image on the GPU.
//
// The image is uploaded into a render texture of the chosen format, the
// shader (if any) is dispatched over it with the texture bound by name, and
// the result is read back as 8-bit RGBA and written as a PNG.
//
//	ttce -in photo.jpg -out gray.png -hlsl grayscale.hlsl -bind Tex -format Float
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ttce "github.com/ReinaS-64892/TTCE-Wgpu"
	"github.com/ReinaS-64892/TTCE-Wgpu/backend"
	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	imageio "github.com/ReinaS-64892/TTCE-Wgpu/internal/image"
)

type config struct {
	in, out    string
	hlsl, wgsl string
	bind       string
	format     string
	gpu        string
	includes   string
	threshold  int
	timeout    time.Duration
	verbose    bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.in, "in", "", "input image (png, jpeg, bmp, tiff)")
	flag.StringVar(&cfg.out, "out", "out.png", "output PNG file")
	flag.StringVar(&cfg.hlsl, "hlsl", "", "HLSL compute shader to run")
	flag.StringVar(&cfg.wgsl, "wgsl", "", "WGSL compute shader to run")
	flag.StringVar(&cfg.bind, "bind", "Tex", "name of the shader's read_write texture")
	flag.StringVar(&cfg.format, "format", "Float", "render texture format: Byte, UShort, Half or Float")
	flag.StringVar(&cfg.gpu, "gpu", "auto", "adapter: auto or one of "+strings.Join(backend.Available(), ", "))
	flag.StringVar(&cfg.includes, "include", "", "comma separated HLSL include directories")
	flag.IntVar(&cfg.threshold, "threshold", ttce.DefaultBacklogThreshold, "commands recorded before an automatic flush")
	flag.DurationVar(&cfg.timeout, "timeout", time.Minute, "overall time limit")
	flag.BoolVar(&cfg.verbose, "v", false, "verbose logging")
	flag.Parse()

	if cfg.in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.hlsl != "" && cfg.wgsl != "" {
		log.Fatalf("ttce: -hlsl and -wgsl are mutually exclusive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("ttce: %v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	format, err := ttce.ParseTextureFormat(cfg.format)
	if err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	if cfg.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	gpu, err := openGPU(cfg.gpu)
	if err != nil {
		return err
	}

	opts := []ttce.DeviceOption{
		ttce.WithLogger(logger),
		ttce.WithDefaultFormat(format),
		ttce.WithBacklogThreshold(cfg.threshold),
	}
	if cfg.includes != "" {
		opts = append(opts, ttce.WithIncludeDirs(strings.Split(cfg.includes, ",")...))
	}
	dev, err := ttce.NewDevice(gpu, opts...)
	if err != nil {
		gpu.Destroy()
		return err
	}
	defer dev.Close()

	img, err := imageio.Load(cfg.in)
	if err != nil {
		return err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	c, err := dev.NewContext()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	rt, err := c.NewRenderTexture(uint32(w), uint32(h), ttce.ChannelRGBA) //nolint:gosec // image dimensions fit uint32
	if err != nil {
		return err
	}
	defer rt.Release()

	if err := c.UploadTexture(rt, imageio.Pixels(img), ttce.FormatByte); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	id, ok, err := registerShader(ctx, dev, cfg)
	if err != nil {
		return err
	}
	if ok {
		if err := dispatch(c, id, cfg.bind, rt); err != nil {
			return err
		}
	}

	rb, err := c.DownloadTexture(rt, ttce.FormatByte)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	pix, err := rb.Wait(ctx)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	out, err := imageio.FromPixels(w, h, pix)
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(cfg.out, out); err != nil {
		return err
	}

	stats := c.Stats()
	log.Printf("ttce: wrote %s (%dx%d, %v, %d dispatches, %d flushes)",
		cfg.out, w, h, rt.PixelFormat(), stats.Dispatches, stats.Flushes)
	return nil
}

// openGPU opens the adapter named by the -gpu flag.
func openGPU(name string) (gpucore.GPUAdapter, error) {
	if strings.EqualFold(name, "auto") {
		a, picked, err := backend.Default()
		if err != nil {
			return nil, err
		}
		log.Printf("ttce: using %s backend (%s)", picked, adapterName(a))
		return a, nil
	}
	a, err := backend.Open(strings.ToLower(name))
	if err != nil {
		return nil, err
	}
	log.Printf("ttce: using %s", adapterName(a))
	return a, nil
}

func adapterName(a gpucore.GPUAdapter) string {
	if n, ok := a.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unnamed adapter"
}

// registerShader registers the shader named by -hlsl or -wgsl, if any.
func registerShader(ctx context.Context, dev *ttce.Device, cfg config) (ttce.ShaderID, bool, error) {
	switch {
	case cfg.hlsl != "":
		id, err := dev.RegisterShaderFile(ctx, cfg.hlsl)
		return id, err == nil, err
	case cfg.wgsl != "":
		src, err := os.ReadFile(cfg.wgsl)
		if err != nil {
			return 0, false, err
		}
		id, err := dev.RegisterWGSL(ctx, filepath.Base(cfg.wgsl), string(src))
		return id, err == nil, err
	default:
		return 0, false, nil
	}
}

// dispatch runs the shader once over every texel of rt.
func dispatch(c *ttce.Context, id ttce.ShaderID, bind string, rt *ttce.RenderTexture) error {
	h, err := c.ComputeHandler(id)
	if err != nil {
		return err
	}
	defer h.Close()

	slot, ok := h.BindIndex(bind)
	if !ok {
		return fmt.Errorf("%w: shader %s has no binding %q", ttce.ErrBindingNotFound, h.Shader().Name(), bind)
	}
	if err := h.BindTexture(slot, rt); err != nil {
		return err
	}
	return h.DispatchFor(rt.Width(), rt.Height())
}
