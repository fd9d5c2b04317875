package resources

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	amath "github.com/spaghettifunk/anima-rendergraph/engine/math"
)

var ErrInvalidImage = errors.New("invalid image")

// Image is a row-major float image with an arbitrary channel count. Values
// are linear; 8-bit sources are normalized to [0, 1].
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

func NewImage(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%d with %d channels", ErrInvalidImage, width, height, channels)
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}, nil
}

func (img *Image) Validate() error {
	if img == nil || img.Width <= 0 || img.Height <= 0 || img.Channels <= 0 {
		return ErrInvalidImage
	}
	if len(img.Pix) != img.Width*img.Height*img.Channels {
		return fmt.Errorf("%w: pixel buffer has %d values, want %d", ErrInvalidImage, len(img.Pix), img.Width*img.Height*img.Channels)
	}
	return nil
}

func (img *Image) offset(x, y int) int {
	return (y*img.Width + x) * img.Channels
}

// Pixel returns the channels of one pixel, aliasing the image buffer.
func (img *Image) Pixel(x, y int) []float32 {
	o := img.offset(x, y)
	return img.Pix[o : o+img.Channels]
}

func (img *Image) SetPixel(x, y int, values []float32) {
	copy(img.Pix[img.offset(x, y):img.offset(x, y)+img.Channels], values)
}

// SampleLinear bilinearly samples every channel at uv into dst. uv is
// clamped to [0, 1]; (0, 0) is the centre of the first pixel and (1, 1) the
// centre of the last one.
func (img *Image) SampleLinear(u, v float32, dst []float32) {
	u = amath.Saturate(u)
	v = amath.Saturate(v)

	fx := u * float32(img.Width-1)
	fy := v * float32(img.Height-1)
	x0, y0 := int(fx), int(fy)
	x1 := min(x0+1, img.Width-1)
	y1 := min(y0+1, img.Height-1)
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	p00 := img.Pixel(x0, y0)
	p10 := img.Pixel(x1, y0)
	p01 := img.Pixel(x0, y1)
	p11 := img.Pixel(x1, y1)
	for c := 0; c < img.Channels; c++ {
		top := amath.Lerp(p00[c], p10[c], tx)
		bottom := amath.Lerp(p01[c], p11[c], tx)
		dst[c] = amath.Lerp(top, bottom, ty)
	}
}

// ImageFromGo converts a decoded image into a 4-channel float image.
func ImageFromGo(src image.Image) (*Image, error) {
	b := src.Bounds()
	img, err := NewImage(b.Dx(), b.Dy(), 4)
	if err != nil {
		return nil, err
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			c := color.NRGBA64Model.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			img.SetPixel(x, y, []float32{
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			})
		}
	}
	return img, nil
}

// ToNRGBA quantizes the image to 8 bits per channel. Missing channels default
// to 0, alpha to opaque.
func (img *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	quantize := func(v float32) uint8 {
		return uint8(amath.Saturate(v)*255 + 0.5)
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			p := img.Pixel(x, y)
			c := color.NRGBA{A: 255}
			c.R = quantize(p[0])
			if img.Channels > 1 {
				c.G = quantize(p[1])
			}
			if img.Channels > 2 {
				c.B = quantize(p[2])
			}
			if img.Channels > 3 {
				c.A = quantize(p[3])
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
