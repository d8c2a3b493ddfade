package clouds

import (
	"fmt"

	"github.com/gogpu/clouds/gpucore"
	"github.com/gogpu/clouds/internal/dispatch"
	"github.com/gogpu/clouds/internal/framegraph"
)

// Pass names, as reported in FrameReport.Passes.
const (
	passCompute   = "clouds.compute"
	passComposite = "clouds.composite"
	passBlit      = "clouds.blit"
)

// computePass renders one unit into the write slot.
type computePass struct {
	output framegraph.Handle
	layer  int
	inputs [4]framegraph.Handle
	req    dispatch.Request
}

func (p *computePass) Name() string          { return passCompute }
func (p *computePass) Kind() framegraph.Kind { return framegraph.KindCompute }

func (p *computePass) Setup(b *framegraph.Builder) {
	b.UseTextureLayer(p.output, p.layer, framegraph.AccessWrite)
	for _, h := range p.inputs {
		b.UseTexture(h, framegraph.AccessRead)
	}
	b.EnableAsyncCompute(p.req.Async)
}

func (p *computePass) Execute(ctx *framegraph.Context) error {
	req := p.req
	req.Output = ctx.Texture(p.output)
	req.Inputs = gpucore.NoiseInputs{
		Base:    ctx.Texture(p.inputs[0]),
		Detail:  ctx.Texture(p.inputs[1]),
		Curl:    ctx.Texture(p.inputs[2]),
		Weather: ctx.Texture(p.inputs[3]),
	}
	return dispatch.Dispatch(ctx.Encoder, ctx.Device, &req)
}

// compositePass cross-fades the slots over the camera color into a
// transient target.
type compositePass struct {
	current, history framegraph.Handle
	background       framegraph.Handle
	target           framegraph.Handle
	params           gpucore.CompositeParams
	clear            bool
}

func (p *compositePass) Name() string          { return passComposite }
func (p *compositePass) Kind() framegraph.Kind { return framegraph.KindRaster }

func (p *compositePass) Setup(b *framegraph.Builder) {
	b.UseTexture(p.current, framegraph.AccessRead)
	if p.history != p.current {
		b.UseTexture(p.history, framegraph.AccessRead)
	}
	b.UseTexture(p.background, framegraph.AccessRead)
	b.UseTexture(p.target, framegraph.AccessWrite)
}

func (p *compositePass) Execute(ctx *framegraph.Context) error {
	err := ctx.Encoder.Composite(&gpucore.CompositeCommand{
		Current:    ctx.Texture(p.current),
		History:    ctx.Texture(p.history),
		Background: ctx.Texture(p.background),
		Target:     ctx.Texture(p.target),
		Params:     p.params,
		Clear:      p.clear,
	})
	if err != nil {
		return fmt.Errorf("composite: %w", err)
	}
	return nil
}

// blitPass copies the composite back into the camera color.
type blitPass struct {
	src, dst framegraph.Handle
}

func (p *blitPass) Name() string          { return passBlit }
func (p *blitPass) Kind() framegraph.Kind { return framegraph.KindRaster }

func (p *blitPass) Setup(b *framegraph.Builder) {
	b.UseTexture(p.src, framegraph.AccessRead)
	b.UseTexture(p.dst, framegraph.AccessWrite)
}

func (p *blitPass) Execute(ctx *framegraph.Context) error {
	if err := ctx.Encoder.Blit(ctx.Texture(p.src), ctx.Texture(p.dst)); err != nil {
		return fmt.Errorf("blit: %w", err)
	}
	return nil
}
