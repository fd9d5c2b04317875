//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
)

type Build mg.Namespace

// Compiles every GLSL stage under shaders/src into shaders/<file>.spv.
// Sources are expected to be named <shader>.<pass>.<vert|frag> already
// lower-cased the way the vulkan backend looks them up.
func (Build) Shaders() error {
	var sources []string
	for _, stage := range []string{"vert", "frag"} {
		matches, err := filepath.Glob(filepath.Join("shaders", "src", "*."+stage))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		fmt.Println("no shader sources found in shaders/src")
		return nil
	}
	for _, src := range sources {
		out := filepath.Join("shaders", filepath.Base(src)+".spv")
		stale, err := target.Path(out, src)
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		if err := sh.RunV("glslc", src, "-o", out); err != nil {
			return err
		}
	}
	return nil
}

// Builds the anima binary into bin/.
func (Build) Binary() error {
	return sh.RunV("go", "build", "-o", filepath.Join("bin", "anima"), "./cmd/anima")
}

type Test mg.Namespace

// Runs the unit tests with the race detector.
func (Test) Unit() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}
