package command

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-rendergraph/engine/assets/loaders"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

type CubemapOptions struct {
	Workers int
	Half    bool
}

func NewCubemapCommand(cli *CLI) *cobra.Command {
	var opts CubemapOptions
	cmd := &cobra.Command{
		Use:   "cubemap <equirectangular image> <output dir>",
		Short: "Project an equirectangular panorama onto six cube face PNGs",
		Long: "Project an equirectangular panorama onto the six faces of a cube map.\n" +
			"Faces are written as <name>_<face>.png where face is one of\n" +
			"posx, negx, posy, negy, posz, negz.\n",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				opts.Workers = cli.Config.Cubemap.Workers
			}
			if !cmd.Flags().Changed("half") {
				opts.Half = cli.Config.Cubemap.HalfResolution
			}
			files, err := writeCubemap(args[0], args[1], opts)
			if err != nil {
				return err
			}
			for _, f := range files {
				cli.Printf("%s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Projection goroutines, 0 uses one per CPU")
	cmd.Flags().BoolVar(&opts.Half, "half", false, "Use half the source height as face size")
	return cmd
}

func writeCubemap(src, dir string, opts CubemapOptions) ([]string, error) {
	if !loaders.IsImage(src) {
		return nil, fmt.Errorf("%s is not a supported image", src)
	}
	el := &loaders.EnvironmentLoader{Defaults: resources.ProjectOptions{Workers: opts.Workers, HalfResolution: opts.Half}}
	res, err := el.Load(src, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = el.Unload(res) }()
	cube := res.Data.(*resources.TextureCube)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	files := make([]string, 0, len(cube.Faces))
	for i, face := range cube.Faces {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", name, resources.CubeFace(i)))
		if err := writePNG(path, face); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	core.LogDebug("projected %s into %d faces of %dpx", src, len(files), cube.Size)
	return files, nil
}

func writePNG(path string, img *resources.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img.ToNRGBA()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
