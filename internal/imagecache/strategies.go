package imagecache

import (
	_ "embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed serving_main.py
var servingTemplate []byte

// CopyTreeContext is the default context strategy: a verbatim copy of the
// source tree.
func CopyTreeContext(cfg Config, dir string) error {
	return copyTree(cfg.SrcDir, dir)
}

// ComponentInstructions renders the build instructions for a pipeline step
// base image: base layer, optional manifest install, then the source tree.
func ComponentInstructions(cfg Config) string {
	lines := []string{
		"FROM " + cfg.BaseImage,
		"WORKDIR /app",
	}

	if cfg.ManifestFile != "" && !cfg.DependenciesPreinstalled {
		lines = append(lines,
			fmt.Sprintf("COPY %s ./requirements.txt", cfg.ManifestFile),
			"RUN pip install --no-cache-dir -r requirements.txt",
		)
	}

	lines = append(lines, "COPY . ./")
	return strings.Join(lines, "\n") + "\n"
}

// ServingOptions configures the serving image flavor.
type ServingOptions struct {
	// PredictionScript is the user's predictor module file within the source
	// tree, e.g. "predictor.py".
	PredictionScript string

	// PredictionClass is the predictor class inside that module.
	PredictionClass string

	// Port the server listens on; 8080 when zero.
	Port int
}

// ServingStrategies returns the context and instruction strategies for a
// model-serving image: the user's source tree plus the bundled server
// entrypoint, wired to the predictor via environment variables.
func ServingStrategies(opts ServingOptions) (PrepareContext, RenderInstructions) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}

	prepare := func(cfg Config, dir string) error {
		if err := copyTree(cfg.SrcDir, dir); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, "main.py"), servingTemplate, 0644)
	}

	render := func(cfg Config) string {
		lines := []string{
			"FROM " + cfg.BaseImage,
			"WORKDIR /app",
		}

		if !cfg.DependenciesPreinstalled {
			lines = append(lines, `RUN pip install --no-cache-dir "fastapi" "uvicorn[standard]"`)
			if cfg.ManifestFile != "" {
				lines = append(lines,
					fmt.Sprintf("COPY %s ./requirements.txt", cfg.ManifestFile),
					"RUN pip install --no-cache-dir -r requirements.txt",
				)
			}
		}

		module := strings.TrimSuffix(opts.PredictionScript, filepath.Ext(opts.PredictionScript))
		lines = append(lines,
			"COPY . .",
			"ENV USER_MODULE="+module,
			"ENV USER_CLASS="+opts.PredictionClass,
			fmt.Sprintf("EXPOSE %d", port),
			fmt.Sprintf(`CMD ["uvicorn", "main:app", "--host", "0.0.0.0", "--port", "%d"]`, port),
		)
		return strings.Join(lines, "\n") + "\n"
	}

	return prepare, render
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
