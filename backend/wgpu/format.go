//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/mrjoshuak/go-openexr/half"

	"github.com/gogpu/clouds/gpucore"
)

func convertFormat(f gpucore.TextureFormat) (gputypes.TextureFormat, bool) {
	switch f {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, true
	case gpucore.TextureFormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, true
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float, true
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float, true
	default:
		return 0, false
	}
}

func convertUsage(u gpucore.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&gpucore.TextureUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&gpucore.TextureUsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if u&gpucore.TextureUsageTextureBinding != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&gpucore.TextureUsageStorageBinding != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	if u&gpucore.TextureUsageRenderAttachment != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

// stateUsage maps a resource state to the HAL usage a barrier transitions
// from or to. StateUndefined has no usage.
func stateUsage(s gpucore.ResourceState) gputypes.TextureUsage {
	switch s {
	case gpucore.StateSampled:
		return gputypes.TextureUsageTextureBinding
	case gpucore.StateStorage:
		return gputypes.TextureUsageStorageBinding
	case gpucore.StateRenderTarget:
		return gputypes.TextureUsageRenderAttachment
	default:
		return 0
	}
}

// encodeTexels packs RGBA float texels in the byte layout of f.
func encodeTexels(f gpucore.TextureFormat, rgba []float32) []byte {
	n := len(rgba) / 4
	out := make([]byte, n*f.BytesPerTexel())
	switch f {
	case gpucore.TextureFormatRGBA8Unorm:
		for i, v := range rgba {
			out[i] = unorm8(v)
		}
	case gpucore.TextureFormatBGRA8Unorm:
		for i := 0; i < n; i++ {
			out[i*4+0] = unorm8(rgba[i*4+2])
			out[i*4+1] = unorm8(rgba[i*4+1])
			out[i*4+2] = unorm8(rgba[i*4+0])
			out[i*4+3] = unorm8(rgba[i*4+3])
		}
	case gpucore.TextureFormatR8Unorm:
		for i := 0; i < n; i++ {
			out[i] = unorm8(rgba[i*4])
		}
	case gpucore.TextureFormatRGBA16Float:
		hs := make([]half.Half, len(rgba))
		half.ConvertBatch32(hs, rgba)
		for i, h := range hs {
			binary.LittleEndian.PutUint16(out[i*2:], h.Bits())
		}
	case gpucore.TextureFormatRGBA32Float:
		for i, v := range rgba {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
	}
	return out
}

func unorm8(v float32) byte {
	v = min(max(v, 0), 1)
	return byte(v*255 + 0.5)
}
