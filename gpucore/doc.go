// Package gpucore provides the GPU abstraction shared by the cloud compositor
// and its backends.
//
// This package defines the [Device] and [Encoder] interfaces, which abstract
// over different GPU backend implementations, allowing the same scheduling and
// frame-graph code to work with:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see backend/wgpu
//   - a CPU reference device, see backend/software
//
// # Architecture
//
//	               +-----------------+
//	               |   compositor    |
//	               | (frame graph)   |
//	               +--------+--------+
//	                        |
//	                 gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  wgpu backend   |          |software backend |
//	|  (hal.Device)   |          |  (half floats)  |
//	+-----------------+          +-----------------+
//
// # Resource IDs
//
// Resources are referenced by opaque IDs ([TextureID], [KernelID]) rather than
// backend handles. [InvalidID] is never a live resource.
//
// # Barriers
//
// Subresources move between [ResourceState] values through explicit
// [Barrier] records. Devices may validate that each command finds its
// subresources in the state it needs.
//
// # Data Structures
//
// [CloudParams] and [CompositeParams] mirror the WGSL uniform layouts
// byte for byte.
package gpucore
