package clouds

import (
	_ "embed"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/clouds/backend/software"
)

// DefaultKernelSource is the WGSL cloud kernel used unless WithKernel
// supplies another one. It writes rgba16float.
//
//go:embed shaders/clouds.wgsl
var DefaultKernelSource string

// DefaultKernelEntryPoint is the compute entry point of DefaultKernelSource.
const DefaultKernelEntryPoint = "CSMain"

func init() {
	software.RegisterKernel(DefaultKernelEntryPoint, ReferenceKernel)
}

const (
	cloudBottom = 1500
	cloudTop    = 4000
	marchSteps  = 32
	lightStep   = 150
)

var sunDir = mgl32.Vec3{0.3, 0.8, 0.5}.Normalize()

// ReferenceKernel is the CPU rendition of DefaultKernelSource for the
// software backend.
func ReferenceKernel(inv *software.Invocation) [4]float32 {
	origin, dir := inv.Ray()
	if dir.Y() <= 0.01 {
		return [4]float32{}
	}
	p := inv.Params

	t0 := max((cloudBottom-origin.Y())/dir.Y(), 0)
	t1 := max((cloudTop-origin.Y())/dir.Y(), 0)
	dt := (t1 - t0) / marchSteps
	_, jitter := math.Modf(float64(p.Frame) * 0.618034)

	var color float32
	transmittance := float32(1)
	for i := 0; i < marchSteps; i++ {
		pos := origin.Add(dir.Mul(t0 + (float32(i)+float32(jitter))*dt))
		d := density(inv, pos)
		if d <= 0 {
			continue
		}
		shade := exp32(-density(inv, pos.Add(sunDir.Mul(lightStep))) * 2)
		absorb := exp32(-d * dt * 0.01)
		color += transmittance * (1 - absorb) * (shade*0.9 + 0.1)
		transmittance *= absorb
		if transmittance < 0.01 {
			break
		}
	}
	return [4]float32{color, color, color, 1 - transmittance}
}

func density(inv *software.Invocation, pos mgl32.Vec3) float32 {
	p := inv.Params
	h := clamp01((pos.Y() - cloudBottom) / (cloudTop - cloudBottom))

	curl := inv.Curl.Sample(pos.X()*0.00005, pos.Z()*0.00005, 0)
	q := pos.Add(mgl32.Vec3{curl[0]*2 - 1, 0, curl[1]*2 - 1}.Mul(200))

	weather := inv.Weather.Sample(q.X()*0.00002, q.Z()*0.00002, 0)[0]
	coverage := clamp01(weather * p.CoverageMultiplier)
	base := inv.Base.Sample(q.X()*0.0002, q.Y()*0.0002, q.Z()*0.0002)[0]
	detail := inv.Detail.Sample(q.X()*0.001, q.Y()*0.001, q.Z()*0.001)[0]

	profile := 4 * h * (1 - h)
	d := base*coverage*profile - detail*p.HighFreqNoiseStrength*100
	return max(d-p.DensityThreshold, 0)
}

func exp32(v float32) float32 { return float32(math.Exp(float64(v))) }

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
