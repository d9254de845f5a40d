package imagecache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Config describes one cached image: where its inputs live and where the
// artifact is published.
type Config struct {
	// SrcDir is the source tree fed into the fingerprint and the build
	// context.
	SrcDir string

	// ManifestFile is the dependency manifest path relative to SrcDir.
	// Optional; when set it is hashed first and installed at build time.
	ManifestFile string

	// BaseImage goes into the FROM instruction.
	BaseImage string

	// Repository is the target registry repository URI.
	Repository string

	// ImageName is the artifact name within the repository.
	ImageName string

	// DependenciesPreinstalled skips manifest installation for base images
	// that already carry the dependencies.
	DependenciesPreinstalled bool
}

// PrepareContext materializes the build context into dir. The directory is
// freshly created per build and removed on every exit path.
type PrepareContext func(cfg Config, dir string) error

// RenderInstructions synthesizes the build instructions (Dockerfile body) for
// the image.
type RenderInstructions func(cfg Config) string

// Builder is the content-addressed build routine, parameterized by the two
// strategy functions that distinguish image flavors.
type Builder struct {
	cfg     Config
	reg     Registry
	prepare PrepareContext
	render  RenderInstructions
	log     *slog.Logger
}

// NewBuilder wires a builder. Nil strategies default to the component base
// image flavor; a nil logger defaults to slog.Default.
func NewBuilder(cfg Config, reg Registry, prepare PrepareContext, render RenderInstructions, log *slog.Logger) *Builder {
	if prepare == nil {
		prepare = CopyTreeContext
	}
	if render == nil {
		render = ComponentInstructions
	}
	if log == nil {
		log = slog.Default()
	}
	return &Builder{cfg: cfg, reg: reg, prepare: prepare, render: render, log: log}
}

// BuildAndPush returns the fully qualified reference of an image whose inputs
// match the current source tree, building and publishing only on a cache
// miss. A registry probe failure degrades to a miss: an unavailable cache
// check never blocks forward progress.
func (b *Builder) BuildAndPush(ctx context.Context, forceRebuild bool) (string, error) {
	digest, err := Fingerprint(b.cfg.SrcDir, b.cfg.ManifestFile)
	if err != nil {
		return "", err
	}
	tag := digest[:tagLength]
	ref := fmt.Sprintf("%s/%s:%s", b.cfg.Repository, b.cfg.ImageName, tag)

	if forceRebuild {
		b.log.Info("force rebuild requested, skipping registry check", "ref", ref)
	} else {
		exists, err := b.reg.Exists(ctx, ref)
		switch {
		case err != nil:
			b.log.Warn("registry probe failed, assuming cache miss", "ref", ref, "error", err)
		case exists:
			b.log.Info("image with identical fingerprint already published", "ref", ref)
			return ref, nil
		default:
			b.log.Info("no image with this fingerprint, building", "tag", tag)
		}
	}

	contextDir, err := os.MkdirTemp("", "flowforge-build-")
	if err != nil {
		return "", fmt.Errorf("creating build context: %w", err)
	}
	defer os.RemoveAll(contextDir)

	if err := b.prepare(b.cfg, contextDir); err != nil {
		return "", fmt.Errorf("preparing build context: %w", err)
	}

	dockerfile := filepath.Join(contextDir, "Dockerfile."+tag)
	if err := os.WriteFile(dockerfile, []byte(b.render(b.cfg)), 0644); err != nil {
		return "", fmt.Errorf("writing build instructions: %w", err)
	}

	if err := b.reg.Build(ctx, contextDir, dockerfile, ref); err != nil {
		return "", err
	}
	if err := b.reg.Push(ctx, ref); err != nil {
		return "", err
	}

	b.log.Info("image built and pushed", "ref", ref)
	return ref, nil
}
