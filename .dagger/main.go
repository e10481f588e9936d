// Textgen CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/textgen/internal/dagger"
)

// Textgen is the main module for the textgen CI/CD pipeline
type Textgen struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Textgen CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Textgen {
	return &Textgen{
		Source: source,
	}
}

// goContainer returns a Go container with the project source mounted and
// the module and build caches attached. textgen is pure Go, so CGO is off.
func (t *Textgen) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", t.Source)
}

// Test runs the textgen unit tests via "go test"
func (t *Textgen) Test(ctx context.Context) (string, error) {
	return t.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}

// Image builds a minimal container that runs "textgen serve" on port 8000.
func (t *Textgen) Image(
	ctx context.Context,

	// Version string baked into the binary
	// +optional
	// +default="dev"
	version string,
) *dagger.Container {
	bin := t.goContainer().
		WithExec([]string{
			"go", "build",
			"-ldflags", "-s -w -X 'github.com/papercomputeco/textgen/pkg/utils.Version=" + version + "'",
			"-o", "/out/textgen",
			"./cli/textgen",
		}).
		File("/out/textgen")

	return dag.Container().
		From("alpine:3.21").
		WithFile("/usr/local/bin/textgen", bin).
		WithExposedPort(8000).
		WithEnvVariable("TEXTGEN_SERVER_LISTEN", ":8000").
		WithEntrypoint([]string{"textgen"}).
		WithDefaultArgs([]string{"serve", "--log-json"})
}
