package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

/** @brief Parameters accepted by ImageLoader.Load. */
type ImageParams struct {
	// FlipY stores the bottom row first.
	FlipY bool
}

type ImageLoader struct{}

// IsImage reports whether the extension belongs to a decodable image format.
func IsImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// DecodeImage reads an image file into a 4-channel float image.
func DecodeImage(path string, flipY bool) (*resources.Image, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, err
	}

	decoded, format, err := image.Decode(file)
	if err != nil {
		err := fmt.Errorf("failed to decode image %s: %w", path, err)
		core.LogError("%s", err)
		return nil, 0, err
	}
	img, err := resources.ImageFromGo(decoded)
	if err != nil {
		return nil, 0, err
	}
	if flipY {
		flipRows(img)
	}
	core.LogDebug("decoded %s image %s (%dx%d)", format, path, img.Width, img.Height)
	return img, info.Size(), nil
}

func flipRows(img *resources.Image) {
	stride := img.Width * img.Channels
	row := make([]float32, stride)
	for top, bottom := 0, img.Height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pix[top*stride : (top+1)*stride]
		b := img.Pix[bottom*stride : (bottom+1)*stride]
		copy(row, a)
		copy(a, b)
		copy(b, row)
	}
}

func (il *ImageLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	var flip bool
	if p, ok := params.(*ImageParams); ok && p != nil {
		flip = p.FlipY
	}
	img, size, err := DecodeImage(path, flip)
	if err != nil {
		return nil, err
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeImage,
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(size),
		Data:     img,
	}, nil
}

func (il *ImageLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}
