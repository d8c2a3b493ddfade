// Command skydemo renders temporally amortized clouds over a procedural sky
// on the CPU reference device.
//
// With -frames it runs headless and writes the last frame to -output.
// Otherwise it opens a window; arrow keys turn the camera.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/gogpu/clouds"
	"github.com/gogpu/clouds/backend/software"
	"github.com/gogpu/clouds/gpucore"
)

type demo struct {
	dev    *software.Device
	comp   *clouds.Compositor
	color  gpucore.TextureID
	w, h   int
	sky    []float32
	frame  *ebiten.Image
	yaw    float32
	pitch  float32
	log    *slog.Logger
	frames uint64
}

func (d *demo) camera() clouds.Camera {
	cam := clouds.DefaultCamera()
	cam.Aspect = float32(d.w) / float32(d.h)
	cam.Rotation = mgl32.QuatRotate(d.yaw, mgl32.Vec3{0, 1, 0}).
		Mul(mgl32.QuatRotate(d.pitch, mgl32.Vec3{1, 0, 0}))
	return cam
}

// step re-renders the sky and ticks the compositor.
func (d *demo) step(dt time.Duration) error {
	cam := d.camera()
	sky(&cam, d.w, d.h, d.sky)
	if err := d.dev.WriteTexture(d.color, 0, d.sky); err != nil {
		return err
	}
	r := d.comp.Tick(dt, &clouds.FrameContext{Camera: cam, Target: d.color})
	d.frames++
	if r.Swapped {
		d.log.Info("clouds swapped", "frame", r.Frame, "stats", fmt.Sprintf("%+v", d.comp.Stats()))
	}
	return nil
}

// Update implements ebiten.Game.
func (d *demo) Update() error {
	const turn = 0.02
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		d.yaw += turn
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		d.yaw -= turn
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		d.pitch = min(d.pitch+turn, math.Pi/2)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		d.pitch = max(d.pitch-turn, -math.Pi/2)
	}
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	dt := time.Duration(float64(time.Second) / float64(ebiten.TPS()))
	return d.step(dt)
}

// Draw implements ebiten.Game.
func (d *demo) Draw(screen *ebiten.Image) {
	img, err := d.dev.Image(d.color, 0)
	if err != nil {
		d.log.Error("read camera color", "err", err)
		return
	}
	if d.frame == nil {
		d.frame = ebiten.NewImage(d.w, d.h)
	}
	// opaque, so straight and premultiplied alpha agree
	d.frame.WritePixels(img.Pix)
	screen.DrawImage(d.frame, nil)
}

// Layout implements ebiten.Game.
func (d *demo) Layout(int, int) (int, int) { return d.w, d.h }

func main() {
	var (
		width    = flag.Int("width", 480, "window width")
		height   = flag.Int("height", 270, "window height")
		face     = flag.Int("face", 128, "cube face size")
		interval = flag.Duration("interval", 4*time.Second, "update interval")
		blend    = flag.Duration("blend", time.Second, "blend duration")
		screen   = flag.Bool("screen", false, "render a screen-sized target instead of a cubemap")
		frames   = flag.Int("frames", 0, "run headless for this many frames")
		output   = flag.String("output", "sky.png", "headless output file")
		pitch    = flag.Float64("pitch", 20, "initial camera pitch in degrees")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	clouds.SetLogger(logger)

	if err := run(logger, *width, *height, *face, *interval, *blend, *screen, *frames, *output, float32(*pitch)); err != nil {
		logger.Error("skydemo failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, w, h, face int, interval, blend time.Duration, screen bool, frames int, output string, pitch float32) error {
	dev := software.New()
	defer dev.Destroy()

	inputs, err := noiseInputs(dev)
	if err != nil {
		return fmt.Errorf("noise: %w", err)
	}
	color, err := dev.CreateTexture(&gpucore.TextureDesc{
		Label: "camera.color", Width: uint32(w), Height: uint32(h),
		Dimension: gpucore.TextureDimension2D, Format: gpucore.TextureFormatRGBA8Unorm,
		Usage: gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding,
	})
	if err != nil {
		return err
	}

	cfg := clouds.DefaultConfig()
	cfg.UpdateInterval, cfg.BlendDuration = interval, blend
	cfg.Width, cfg.Height = uint32(face), uint32(face)
	if screen {
		cfg.Mode = clouds.ModeScreen
		cfg.Width, cfg.Height = uint32(w), uint32(h)
	}
	comp := clouds.New(dev, inputs, clouds.WithConfig(cfg))
	if err := comp.Initialize(); err != nil {
		return err
	}
	defer comp.Shutdown()

	d := &demo{
		dev: dev, comp: comp, color: color, w: w, h: h,
		sky:   make([]float32, w*h*4),
		pitch: mgl32.DegToRad(pitch),
		log:   logger,
	}

	if frames > 0 {
		return headless(d, frames, output)
	}
	ebiten.SetWindowSize(w*2, h*2)
	ebiten.SetWindowTitle("clouds")
	ebiten.SetWindowResizable(true)
	if err := ebiten.RunGame(d); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

func headless(d *demo, frames int, output string) error {
	const dt = time.Second / 30
	for i := 0; i < frames; i++ {
		if err := d.step(dt); err != nil {
			return err
		}
	}
	img, err := d.dev.Image(d.color, 0)
	if err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	d.log.Info("wrote frame", "file", output, "frames", d.frames, "stats", fmt.Sprintf("%+v", d.comp.Stats()))
	return f.Close()
}
