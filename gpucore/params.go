package gpucore

import (
	"encoding/binary"
	"math"
)

// GPU Data Structures
//
// These structures match the WGSL uniform layouts and are used for
// CPU-GPU data transfer. Matrices are column-major, as in WGSL.

// CloudParamsSize is the byte size of CloudParams in the uniform buffer.
const CloudParamsSize = 160

// CloudParams is the per-dispatch uniform of the cloud kernel.
// Must match the CloudParams struct in the kernel WGSL.
type CloudParams struct {
	CameraToWorld     [16]float32
	InverseProjection [16]float32

	Width  uint32
	Height uint32
	Face   uint32 // cube face being written, 0 for 2D targets
	Frame  uint32 // monotonic frame counter

	DensityThreshold      float32
	HighFreqNoiseStrength float32
	CoverageMultiplier    float32
	_                     float32
}

// Bytes packs the params in the uniform layout.
func (p *CloudParams) Bytes() []byte {
	buf := make([]byte, CloudParamsSize)
	off := putMat(buf, 0, &p.CameraToWorld)
	off = putMat(buf, off, &p.InverseProjection)
	for _, v := range [...]uint32{p.Width, p.Height, p.Face, p.Frame} {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}
	for _, v := range [...]float32{p.DensityThreshold, p.HighFreqNoiseStrength, p.CoverageMultiplier} {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf
}

// CompositeParamsSize is the byte size of CompositeParams in the uniform buffer.
const CompositeParamsSize = 80

// CompositeParams is the uniform of the composite raster pass.
// Must match the CompositeParams struct in composite.wgsl.
type CompositeParams struct {
	// InvViewProj maps clip space to a world-space view direction.
	// Used only for cube sources.
	InvViewProj [16]float32

	Factor float32
	Cube   uint32 // 1 when current/history are cube textures
	_      [2]uint32
}

// Bytes packs the params in the uniform layout.
func (p *CompositeParams) Bytes() []byte {
	buf := make([]byte, CompositeParamsSize)
	off := putMat(buf, 0, &p.InvViewProj)
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(p.Factor))
	binary.LittleEndian.PutUint32(buf[off+4:], p.Cube)
	return buf
}

func putMat(buf []byte, off int, m *[16]float32) int {
	for _, v := range m {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return off
}
