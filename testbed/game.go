// Package testbed is a small demo scene: three parented cubes, a glass
// sphere drawn in the forward pass, one light of each punctual kind and a
// skybox.
package testbed

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-rendergraph/engine"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	amath "github.com/spaghettifunk/anima-rendergraph/engine/math"
	"github.com/spaghettifunk/anima-rendergraph/engine/pipeline"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
	"github.com/spaghettifunk/anima-rendergraph/engine/systems"
)

const (
	skyProjectionSize = 256
	cubeIndexCount    = 36
	sphereIndexCount  = 2880
)

type Options struct {
	// Environment is an equirectangular image relative to the asset
	// directory. A generated sky gradient is used when empty or when
	// the asset manager is disabled.
	Environment string
}

type gameState struct {
	world  *scene.World
	camera *scene.Camera

	cubes      []scene.Entity
	transforms []*amath.Transform
	glass      scene.Entity
	glassXform *amath.Transform
	skybox     scene.Entity
	skyMat     *resources.Material

	width, height uint32
}

func NewTestGame(cfg *core.Config, opts Options) *engine.Game {
	state := &gameState{world: scene.NewWorld("testbed")}
	g := &engine.Game{Config: cfg, State: state}
	g.FnInitialize = func(e *engine.Engine) error { return state.initialize(e, opts) }
	g.FnUpdate = state.update
	g.FnRender = state.render
	g.FnOnResize = state.onResize
	g.FnShutdown = func() error {
		core.LogDebug("testbed shutdown with %d entities", state.world.Len())
		return nil
	}
	return g
}

// LitShader draws opaque geometry into the GBuffer.
func LitShader() *resources.Shader {
	return &resources.Shader{
		Name: "Anima/Lit",
		Passes: []resources.ShaderPass{
			{Name: "GBuffer", Tags: map[string]string{resources.ShaderTagLightMode: "Deferred"}},
		},
	}
}

// GlassShader is blended in the forward pass.
func GlassShader() *resources.Shader {
	return &resources.Shader{
		Name: "Anima/Glass",
		Passes: []resources.ShaderPass{
			{Name: "Forward", Tags: map[string]string{resources.ShaderTagLightMode: "Forward"}},
		},
	}
}

func (s *gameState) initialize(e *engine.Engine, opts Options) error {
	core.LogDebug("testbed initialize")

	s.camera = scene.NewCamera()
	s.camera.SetPosition(mgl32.Vec3{10.5, 5.0, 9.5})
	s.camera.SetEulerRotation(mgl32.Vec3{mgl32.DegToRad(-15), mgl32.DegToRad(45), 0})
	s.world.SetCamera(s.camera)

	cube := &resources.Mesh{Name: "cube", SubMeshes: []resources.SubMesh{{IndexCount: cubeIndexCount}}}
	lit := LitShader()
	materials := []*resources.Material{
		{Name: "red", Shader: lit, Properties: map[string]interface{}{"gAlbedo": [4]float32{0.8, 0.1, 0.1, 1}}},
		{Name: "green", Shader: lit, Properties: map[string]interface{}{"gAlbedo": [4]float32{0.1, 0.8, 0.1, 1}}},
		{Name: "blue", Shader: lit, Properties: map[string]interface{}{"gAlbedo": [4]float32{0.1, 0.1, 0.8, 1}}},
	}

	// each cube orbits its parent
	var parent *amath.Transform
	for i, m := range materials {
		t := amath.TransformFromPositionRotationScale(mgl32.Vec3{0, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
		if parent != nil {
			t.SetPosition(mgl32.Vec3{10, 0, 0})
			t.SetScale(mgl32.Vec3{0.5, 0.5, 0.5})
			t.Parent = parent
		}
		ent := s.world.CreateEntity(fmt.Sprintf("cube_%d", i))
		s.world.SetMeshRenderer(ent, cube, m)
		s.cubes = append(s.cubes, ent)
		s.transforms = append(s.transforms, t)
		parent = t
	}

	sphere := &resources.Mesh{Name: "sphere", SubMeshes: []resources.SubMesh{{IndexCount: sphereIndexCount}}}
	s.glass = s.world.CreateEntity("glass")
	s.glassXform = amath.TransformFromPosition(mgl32.Vec3{0, 4, -6})
	s.world.SetMeshRenderer(s.glass, sphere, &resources.Material{
		Name:       "glass",
		Shader:     GlassShader(),
		Properties: map[string]interface{}{"gTint": [4]float32{0.6, 0.8, 1, 0.35}},
	})
	s.syncTransforms()

	sun := s.world.CreateEntity("sun")
	s.world.SetTransform(sun, scene.TRS(mgl32.Vec3{}, mgl32.QuatRotate(mgl32.DegToRad(-50), mgl32.Vec3{1, 0, 0}), mgl32.Vec3{1, 1, 1}))
	s.world.SetLight(sun, scene.DirectionalLight{LightBase: scene.LightBase{Color: mgl32.Vec3{1, 0.95, 0.85}, Intensity: 3}})

	bulb := s.world.CreateEntity("bulb")
	s.world.SetTransform(bulb, scene.TRS(mgl32.Vec3{-4, 3, 2}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}))
	s.world.SetLight(bulb, scene.PointLight{LightBase: scene.LightBase{Color: mgl32.Vec3{1, 0.6, 0.2}, Intensity: 20}, Range: 12})

	torch := s.world.CreateEntity("torch")
	s.world.SetTransform(torch, scene.TRS(mgl32.Vec3{6, 8, 6}, mgl32.QuatLookAtV(mgl32.Vec3{6, 8, 6}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}), mgl32.Vec3{1, 1, 1}))
	s.world.SetLight(torch, scene.SpotLight{
		LightBase:  scene.LightBase{Color: mgl32.Vec3{0.7, 0.8, 1}, Intensity: 40},
		Range:      30,
		InnerAngle: 20,
		OuterAngle: 35,
	})

	sky, loaded, err := s.environment(e, opts)
	if err != nil {
		return err
	}
	s.skyMat = &resources.Material{
		Name:       "sky",
		Shader:     e.Pipeline().Shaders().Skybox,
		Properties: map[string]interface{}{systems.SkyboxProperty: sky},
	}
	if loaded {
		e.Assets().BindEnvironment(opts.Environment, s.skyMat, systems.SkyboxProperty)
	}
	s.skybox = s.world.CreateEntity("skybox")
	s.world.SetSkybox(s.skybox, s.skyMat)
	core.LogInfo("testbed scene ready: %d entities, environment %q", s.world.Len(), sky.Name)
	return nil
}

// environment loads the configured environment, falling back to a
// generated gradient. loaded reports whether it came from the assets.
func (s *gameState) environment(e *engine.Engine, opts Options) (cube *resources.TextureCube, loaded bool, err error) {
	if am := e.Assets(); am != nil && opts.Environment != "" {
		cube, err := am.LoadEnvironment(opts.Environment)
		if err == nil {
			return cube, true, nil
		}
		core.LogWarn("environment %s unavailable, using the generated sky: %s", opts.Environment, err)
	}
	cfg := e.Config().Cubemap
	cube, err = GradientSky(resources.ProjectOptions{
		Workers:        cfg.Workers,
		HalfResolution: cfg.HalfResolution || e.Config().Renderer.Debug,
	})
	return cube, false, err
}

// GradientSky projects a horizon-to-zenith gradient into a cube.
func GradientSky(opts resources.ProjectOptions) (*resources.TextureCube, error) {
	w, h := 2*skyProjectionSize, skyProjectionSize
	img, err := resources.NewImage(w, h, 3)
	if err != nil {
		return nil, err
	}
	zenith := mgl32.Vec3{0.15, 0.3, 0.7}
	horizon := mgl32.Vec3{0.85, 0.8, 0.7}
	ground := mgl32.Vec3{0.2, 0.18, 0.15}
	for y := 0; y < h; y++ {
		// v runs from the zenith (0) to the nadir (1)
		v := (float32(y) + 0.5) / float32(h)
		var c mgl32.Vec3
		if v < 0.5 {
			c = lerp(zenith, horizon, v*2)
		} else {
			c = lerp(horizon, ground, amath.Saturate((v-0.5)*8))
		}
		for x := 0; x < w; x++ {
			img.SetPixel(x, y, c[:])
		}
	}
	return resources.NewTextureCubeFromEquirectangular("gradient_sky", img, opts)
}

func lerp(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

func (s *gameState) syncTransforms() {
	for i, ent := range s.cubes {
		s.world.SetTransform(ent, scene.NewTransform(s.transforms[i].GetWorld()))
	}
	s.world.SetTransform(s.glass, scene.NewTransform(s.glassXform.GetWorld()))
}

func (s *gameState) update(e *engine.Engine, delta time.Duration) error {
	rotation := mgl32.QuatRotate(float32(0.5*delta.Seconds()), mgl32.Vec3{0, 1, 0})
	for _, t := range s.transforms {
		t.Rotate(rotation)
	}
	s.glassXform.Rotate(mgl32.QuatRotate(float32(delta.Seconds()), mgl32.Vec3{1, 0, 0}))
	s.syncTransforms()
	return nil
}

func (s *gameState) render(e *engine.Engine, in *pipeline.FrameInput) error {
	in.Camera = s.camera
	in.Partitions = append(in.Partitions, s.world)
	return nil
}

func (s *gameState) onResize(width, height uint32) error {
	s.width, s.height = width, height
	return nil
}
