//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Run mg.Namespace

// Renders a few hundred testbed frames without a GPU.
func (Run) Headless() error {
	return sh.RunV("go", "run", "./cmd/anima", "run", "--backend", "headless", "--frames", "300")
}

// Renders the testbed offscreen with vulkan and saves the last frame.
func (Run) Vulkan() error {
	mg.Deps(Build.Shaders)
	return sh.RunV("go", "run", "./cmd/anima", "run", "--backend", "vulkan", "--frames", "120", "--screenshot", "frame.png")
}

// Writes the standard render graph to graph.dot and renders it with dot.
func (Run) Graph() error {
	if err := sh.RunV("go", "run", "./cmd/anima", "graph", "-o", "graph.dot"); err != nil {
		return err
	}
	return sh.RunV("dot", "-Tsvg", "graph.dot", "-o", "graph.svg")
}
