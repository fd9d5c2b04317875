package command

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-rendergraph/engine"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/headless"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-rendergraph/testbed"
)

const (
	BackendHeadless = "headless"
	BackendVulkan   = "vulkan"
)

type RunOptions struct {
	Backend     string
	Frames      uint64
	MetricsAddr string
	ShaderDir   string
	Environment string
	// Screenshot is a PNG path the last presented image is written to.
	// Only backends that can read textures back support it.
	Screenshot string
}

// textureReader is implemented by backends that can copy a texture back
// to host memory.
type textureReader interface {
	ReadTexture(resource framegraph.Handle, state framegraph.ResourceState) ([]byte, error)
}

func NewRunCommand(cli *CLI) *cobra.Command {
	opts := RunOptions{Backend: BackendHeadless}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render the testbed scene",
		Long: "Render the testbed scene through the standard pipeline until interrupted\n" +
			"or until --frames frames were rendered. The headless backend records\n" +
			"commands without a GPU; the vulkan backend renders offscreen.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTestbed(ctx, cli, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", opts.Backend, "Rendering backend (headless | vulkan)")
	cmd.Flags().Uint64VarP(&opts.Frames, "frames", "n", 0, "Frames to render, 0 runs until interrupted")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, overrides the configuration")
	cmd.Flags().StringVar(&opts.ShaderDir, "shader-dir", "shaders", "Directory with the SPIR-V binaries of the vulkan backend")
	cmd.Flags().StringVar(&opts.Environment, "environment", "", "Equirectangular skybox relative to the asset directory")
	cmd.Flags().StringVar(&opts.Screenshot, "screenshot", "", "Write the last presented frame to this PNG")
	return cmd
}

func newBackend(cli *CLI, opts RunOptions) (renderer.Backend, error) {
	switch opts.Backend {
	case BackendHeadless:
		return headless.New(headless.Options{AutoComplete: true}), nil
	case BackendVulkan:
		return vulkan.New(vulkan.Options{
			AppName:   cli.Config.Name,
			Debug:     cli.Config.Renderer.Debug,
			ShaderDir: opts.ShaderDir,
		})
	}
	return nil, fmt.Errorf("%w: unknown backend %q", core.ErrInvalidConfig, opts.Backend)
}

func runTestbed(ctx context.Context, cli *CLI, opts RunOptions) error {
	backend, err := newBackend(cli, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Shutdown(); err != nil {
			core.LogError("backend shutdown: %s", err)
		}
	}()

	e, err := engine.New(testbed.NewTestGame(cli.Config, testbed.Options{Environment: opts.Environment}), backend)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}

	addr := opts.MetricsAddr
	if addr == "" && cli.Config.Metrics.Enabled {
		addr = cli.Config.Metrics.Addr
	}
	if addr != "" {
		srv := serveMetrics(addr, e.Metrics())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runErr := e.RunFrames(ctx, opts.Frames)
	if runErr == nil && opts.Screenshot != "" {
		runErr = screenshot(e, backend, opts.Screenshot)
	}
	fps, ms := e.Metrics().Frame()
	cli.Printf("rendered %d frames with %s (%.1f fps, %.2f ms)\n", e.Pipeline().Frames(), backend.Name(), fps, ms)

	if err := e.Shutdown(context.Background()); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func serveMetrics(addr string, m *core.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		core.LogInfo("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.LogError("metrics server: %s", err)
		}
	}()
	return srv
}

func screenshot(e *engine.Engine, backend renderer.Backend, path string) error {
	reader, ok := backend.(textureReader)
	if !ok {
		return fmt.Errorf("the %s backend cannot read textures back", backend.Name())
	}
	if err := backend.WaitIdle(context.Background()); err != nil {
		return err
	}
	data, err := reader.ReadTexture(e.Present(), framegraph.StatePresent)
	if err != nil {
		return err
	}
	w, h := e.GetFramebufferSize()
	img := &image.NRGBA{Pix: data, Stride: 4 * int(w), Rect: image.Rect(0, 0, int(w), int(h))}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
