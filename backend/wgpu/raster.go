//go:build !nogpu

package wgpu

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var (
	//go:embed shaders/composite.wgsl
	compositeWGSL string
	//go:embed shaders/composite_2d.wgsl
	composite2DWGSL string
	//go:embed shaders/composite_cube.wgsl
	compositeCubeWGSL string
	//go:embed shaders/blit.wgsl
	blitWGSL string
)

type rasterKind int

const (
	rasterComposite2D rasterKind = iota
	rasterCompositeCube
	rasterBlit
)

func (k rasterKind) String() string {
	switch k {
	case rasterComposite2D:
		return "composite_2d"
	case rasterCompositeCube:
		return "composite_cube"
	default:
		return "blit"
	}
}

func (k rasterKind) source() string {
	switch k {
	case rasterComposite2D:
		return composite2DWGSL + "\n" + compositeWGSL
	case rasterCompositeCube:
		return compositeCubeWGSL + "\n" + compositeWGSL
	default:
		return blitWGSL
	}
}

func (k rasterKind) layoutEntries() []gputypes.BindGroupLayoutEntry {
	tex := func(binding uint32, dim gputypes.TextureViewDimension) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: dim,
			},
		}
	}
	smp := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		}
	}
	if k == rasterBlit {
		return []gputypes.BindGroupLayoutEntry{tex(0, gputypes.TextureViewDimension2D), smp(1)}
	}
	src := gputypes.TextureViewDimension2D
	if k == rasterCompositeCube {
		src = gputypes.TextureViewDimensionCube
	}
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		tex(1, src),
		tex(2, src),
		tex(3, gputypes.TextureViewDimension2D),
		smp(4),
	}
}

type rasterKey struct {
	kind   rasterKind
	format gputypes.TextureFormat
}

type rasterPipeline struct {
	module   hal.ShaderModule
	layout   hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.RenderPipeline
}

// rasterPipelines creates the composite and blit pipelines on first use,
// one per kind and target format.
type rasterPipelines struct {
	mu     sync.Mutex
	device hal.Device
	cache  map[rasterKey]*rasterPipeline
}

func newRasterPipelines(device hal.Device) *rasterPipelines {
	return &rasterPipelines{device: device, cache: make(map[rasterKey]*rasterPipeline)}
}

func (r *rasterPipelines) get(kind rasterKind, format gputypes.TextureFormat) (*rasterPipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rasterKey{kind, format}
	if p, ok := r.cache[key]; ok {
		return p, nil
	}
	p, err := r.create(kind, format)
	if err != nil {
		return nil, err
	}
	r.cache[key] = p
	return p, nil
}

func (r *rasterPipelines) create(kind rasterKind, format gputypes.TextureFormat) (*rasterPipeline, error) {
	name := "clouds_" + kind.String()
	p := &rasterPipeline{}
	var err error

	p.module, err = r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{WGSL: kind.source()},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: %s: create shader module: %w", name, err)
	}
	p.layout, err = r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bgl",
		Entries: kind.layoutEntries(),
	})
	if err != nil {
		r.destroyPipeline(p)
		return nil, fmt.Errorf("wgpu: %s: create bind group layout: %w", name, err)
	}
	p.pipeLay, err = r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.layout},
	})
	if err != nil {
		r.destroyPipeline(p)
		return nil, fmt.Errorf("wgpu: %s: create pipeline layout: %w", name, err)
	}
	p.pipeline, err = r.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  name,
		Layout: p.pipeLay,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		r.destroyPipeline(p)
		return nil, fmt.Errorf("wgpu: %s: create render pipeline: %w", name, err)
	}
	return p, nil
}

func (r *rasterPipelines) destroyPipeline(p *rasterPipeline) {
	if p.pipeline != nil {
		r.device.DestroyRenderPipeline(p.pipeline)
	}
	if p.pipeLay != nil {
		r.device.DestroyPipelineLayout(p.pipeLay)
	}
	if p.layout != nil {
		r.device.DestroyBindGroupLayout(p.layout)
	}
	if p.module != nil {
		r.device.DestroyShaderModule(p.module)
	}
}

func (r *rasterPipelines) destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, p := range r.cache {
		r.destroyPipeline(p)
		delete(r.cache, k)
	}
}

// size reports the number of cached pipelines.
func (r *rasterPipelines) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
