//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/wgsl"
)

type kernel struct {
	desc gpucore.KernelDesc
	wg   gpucore.WorkgroupSize

	module   hal.ShaderModule
	layout   hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.ComputePipeline
}

func (k *kernel) destroy(device hal.Device) {
	if k.pipeline != nil {
		device.DestroyComputePipeline(k.pipeline)
	}
	if k.pipeLay != nil {
		device.DestroyPipelineLayout(k.pipeLay)
	}
	if k.layout != nil {
		device.DestroyBindGroupLayout(k.layout)
	}
	if k.module != nil {
		device.DestroyShaderModule(k.module)
	}
}

// kernelLayoutEntries is the fixed binding interface of a cloud kernel:
//
//	0 params uniform, 1 base 3D, 2 detail 3D, 3 curl 2D, 4 weather 2D,
//	5 sampler, 6 output storage 2D array
func kernelLayoutEntries(output gputypes.TextureFormat) []gputypes.BindGroupLayoutEntry {
	sampled := func(binding uint32, dim gputypes.TextureViewDimension) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: dim,
			},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: gpucore.CloudParamsSize,
			},
		},
		sampled(1, gputypes.TextureViewDimension3D),
		sampled(2, gputypes.TextureViewDimension3D),
		sampled(3, gputypes.TextureViewDimension2D),
		sampled(4, gputypes.TextureViewDimension2D),
		{
			Binding:    5,
			Visibility: gputypes.ShaderStageCompute,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
		{
			Binding:    6,
			Visibility: gputypes.ShaderStageCompute,
			StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        output,
				ViewDimension: gputypes.TextureViewDimension2DArray,
			},
		},
	}
}

// CreateKernel implements gpucore.Device.
func (d *Device) CreateKernel(desc *gpucore.KernelDesc) (gpucore.KernelID, error) {
	if !desc.OutputFormat.StorageCapable() {
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q: output format %s is not storage capable", desc.Label, desc.OutputFormat)
	}
	output, _ := convertFormat(desc.OutputFormat)

	spirv, size, err := wgsl.Reflect(desc.Source, desc.EntryPoint)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q: %w", desc.Label, err)
	}
	k := &kernel{desc: *desc, wg: size}

	k.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q: create shader module: %w", desc.Label, err)
	}
	k.layout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bgl",
		Entries: kernelLayoutEntries(output),
	})
	if err != nil {
		k.destroy(d.device)
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q: create bind group layout: %w", desc.Label, err)
	}
	k.pipeLay, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{k.layout},
	})
	if err != nil {
		k.destroy(d.device)
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q: create pipeline layout: %w", desc.Label, err)
	}
	k.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: k.pipeLay,
		Compute: hal.ComputeState{
			Module:     k.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		k.destroy(d.device)
		return gpucore.InvalidID, fmt.Errorf("wgpu: kernel %q: create compute pipeline: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		k.destroy(d.device)
		return gpucore.InvalidID, gpucore.ErrDeviceDestroyed
	}
	id := gpucore.KernelID(d.nextID.Add(1))
	d.kernels[id] = k
	d.log().Debug("wgpu: kernel created",
		"label", desc.Label, "entry", desc.EntryPoint, "workgroup", size, "spirv_words", len(spirv))
	return id, nil
}

// DestroyKernel implements gpucore.Device.
func (d *Device) DestroyKernel(id gpucore.KernelID) {
	d.mu.Lock()
	k, ok := d.kernels[id]
	delete(d.kernels, id)
	d.mu.Unlock()
	if ok {
		k.destroy(d.device)
	}
}

func (d *Device) kernel(id gpucore.KernelID) (*kernel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	k, ok := d.kernels[id]
	return k, ok
}

// KernelValid implements gpucore.Device.
func (d *Device) KernelValid(id gpucore.KernelID) bool {
	_, ok := d.kernel(id)
	return ok
}

// KernelWorkgroupSize implements gpucore.Device.
func (d *Device) KernelWorkgroupSize(id gpucore.KernelID) (gpucore.WorkgroupSize, error) {
	k, ok := d.kernel(id)
	if !ok {
		return gpucore.WorkgroupSize{}, fmt.Errorf("%w: %d", gpucore.ErrKernelNotFound, id)
	}
	return k.wg, nil
}
