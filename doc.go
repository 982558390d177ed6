// Package ttce is a GPU compute-shader engine for texture transforms.
//
// # Overview
//
// ttce compiles HLSL compute shaders into GPU pipelines, reflects their
// group 0 bindings, keeps textures in one of twelve pixel formats with
// automatic conversion between them, and batches command submission.
//
// # Quick Start
//
//	import (
//	    ttce "github.com/ReinaS-64892/TTCE-Wgpu"
//	    "github.com/ReinaS-64892/TTCE-Wgpu/backend"
//	)
//
//	gpu, _, err := backend.Default()
//	dev, err := ttce.NewDevice(gpu, ttce.WithDefaultFormat(ttce.FormatByte))
//	defer dev.Close()
//
//	id, err := dev.RegisterShaderFile(ctx, "shaders/invert.hlsl")
//
//	c, _ := dev.NewContext()
//	defer c.Close()
//	rt, _ := c.NewRenderTexture(512, 512, ttce.ChannelRGBA)
//	_ = c.UploadTexture(rt, pixels, ttce.FormatByte)
//
//	h, _ := c.ComputeHandler(id)
//	slot, _ := h.BindIndex("Tex")
//	_ = h.BindTexture(slot, rt)
//	_ = h.DispatchFor(rt.Width(), rt.Height())
//	h.Close()
//
//	rb, _ := c.DownloadTexture(rt, ttce.FormatByte)
//	out, err := rb.Wait(ctx)
//
// # Pixel Formats
//
// A texture has a [TextureFormat] (Byte, UShort, Half, Float) and a
// [TextureChannel] (R, RG, RGBA). Uploads and downloads in another format
// of the same RGBA layout go through converter shaders registered when the
// Device is created.
//
// # Shader Registration
//
// HLSL is compiled by a [toolchain.Compiler] (dxc followed by a SPIR-V to
// WGSL translator by default). The resulting module is parsed, storage
// images declared rgba32float are rewritten to the device default format,
// 32x32x1 work groups are clamped to 16x16x1 and group 0 bindings are
// classified as ConstantBuffer, StorageBuffer or ReadWriteTexture.
//
// # Batching
//
// A [Context] records into one command encoder and submits it when more
// than the backlog threshold of accesses are pending, on Flush, or before
// a readback.
//
// # Teardown
//
// Handlers, textures and buffers are released before their Context is
// closed, and Contexts before their Device.
//
// [toolchain.Compiler]: github.com/ReinaS-64892/TTCE-Wgpu/toolchain.Compiler
package ttce
