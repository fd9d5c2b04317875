package resources

import (
	"fmt"
	"math"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type CubeFace int

const (
	FacePositiveX CubeFace = iota
	FaceNegativeX
	FacePositiveY
	FaceNegativeY
	FacePositiveZ
	FaceNegativeZ
)

var cubeFaceNames = [6]string{"posx", "negx", "posy", "negy", "posz", "negz"}

func (f CubeFace) String() string {
	if f < 0 || int(f) >= len(cubeFaceNames) {
		return "invalid"
	}
	return cubeFaceNames[f]
}

// Face bases: a face pixel (x, y) of a face of size s looks along
// origin + x/s*right + y/s*up.
var (
	faceOrigin = [6]mgl32.Vec3{
		{1, -1, -1},
		{-1, -1, 1},
		{-1, -1, 1},
		{-1, 1, -1},
		{-1, -1, -1},
		{1, -1, 1},
	}
	faceRight = [6]mgl32.Vec3{
		{0, 0, 2},
		{0, 0, -2},
		{2, 0, 0},
		{2, 0, 0},
		{2, 0, 0},
		{-2, 0, 0},
	}
	faceUp = [6]mgl32.Vec3{
		{0, 2, 0},
		{0, 2, 0},
		{0, 0, -2},
		{0, 0, 2},
		{0, 2, 0},
		{0, 2, 0},
	}
)

// FaceBasis returns the origin, right and up vectors spanning face f of the
// [-1, 1] cube.
func FaceBasis(f CubeFace) (origin, right, up mgl32.Vec3) {
	return faceOrigin[f], faceRight[f], faceUp[f]
}

// TextureCube holds six square faces of equal size.
type TextureCube struct {
	GUID  uuid.UUID
	Name  string
	Size  int
	Faces [6]*Image
}

func NewTextureCube(name string, faces [6]*Image) (*TextureCube, error) {
	size := 0
	for i, f := range faces {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("face %s: %w", CubeFace(i), err)
		}
		if f.Width != f.Height {
			return nil, fmt.Errorf("%w: face %s is %dx%d, faces must be square", ErrInvalidImage, CubeFace(i), f.Width, f.Height)
		}
		if i == 0 {
			size = f.Width
		} else if f.Width != size || f.Channels != faces[0].Channels {
			return nil, fmt.Errorf("%w: face %s does not match face %s", ErrInvalidImage, CubeFace(i), FacePositiveX)
		}
	}
	return &TextureCube{GUID: uuid.New(), Name: name, Size: size, Faces: faces}, nil
}

// NewSolidTextureCube builds a cube whose every texel holds value.
func NewSolidTextureCube(name string, size int, value []float32) (*TextureCube, error) {
	var faces [6]*Image
	for i := range faces {
		img, err := NewImage(size, size, len(value))
		if err != nil {
			return nil, err
		}
		for p := 0; p < len(img.Pix); p += len(value) {
			copy(img.Pix[p:], value)
		}
		faces[i] = img
	}
	return NewTextureCube(name, faces)
}

// BlackTextureCube is the environment used when a scene has no skybox.
func BlackTextureCube() *TextureCube {
	cube, _ := NewSolidTextureCube("Default Black Environment", 1, []float32{0, 0, 0, 1})
	return cube
}

type ProjectOptions struct {
	// Workers is the number of goroutines; 0 uses one per available CPU.
	Workers int
	// HalfResolution makes faces half the source height instead of the full height.
	HalfResolution bool
}

// NewTextureCubeFromEquirectangular projects a longitude/latitude panorama
// onto six cube faces. Rows are distributed over workers by row index modulo
// worker count; every pixel is computed independently so the result does not
// depend on the number of workers.
func NewTextureCubeFromEquirectangular(name string, src *Image, opts ProjectOptions) (*TextureCube, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	size := src.Height
	if opts.HalfResolution {
		size /= 2
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: source %dx%d too small for a cube face", ErrInvalidImage, src.Width, src.Height)
	}

	var faces [6]*Image
	for i := range faces {
		faces[i], _ = NewImage(size, size, src.Channels)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, size)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for y := w; y < size; y += workers {
				projectRow(src, &faces, size, y)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewTextureCube(name, faces)
}

func projectRow(src *Image, faces *[6]*Image, size, y int) {
	s := float32(size)
	fy := float32(y) / s
	for f := 0; f < 6; f++ {
		face := faces[f]
		for x := 0; x < size; x++ {
			fx := float32(x) / s
			p := faceOrigin[f].Add(faceRight[f].Mul(fx)).Add(faceUp[f].Mul(fy)).Normalize()
			u, v := EquirectangularUV(p)
			src.SampleLinear(u, v, face.Pixel(x, y))
		}
	}
}

// EquirectangularUV maps a unit direction to panorama coordinates.
func EquirectangularUV(p mgl32.Vec3) (float32, float32) {
	u := 0.5 - math.Atan2(float64(p.Z()), float64(p.X()))/(2*math.Pi)
	v := 0.5 + math.Asin(float64(p.Y()))/math.Pi
	return float32(u), float32(v)
}
