package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Registry is the remote artifact store boundary: an existence check plus a
// build/push transport. Exists returns (false, nil) only on a definitive
// not-found; any other failure comes back as an error so the caller can decide
// how to degrade.
type Registry interface {
	Exists(ctx context.Context, ref string) (bool, error)
	Build(ctx context.Context, contextDir, dockerfile, ref string) error
	Push(ctx context.Context, ref string) error
}

// Credentials is an opaque username/secret pair for registry login.
type Credentials struct {
	Username string
	Secret   string
}

// CredentialProvider supplies registry credentials. Implementations are
// opaque to this package.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// DockerCLI talks to the local docker daemon and the remote registry through
// the docker binary, the same way the plan runner shells out for step
// execution.
type DockerCLI struct {
	Bin      string // docker binary, "docker" when empty
	Provider CredentialProvider
	Log      *slog.Logger
}

func (d *DockerCLI) bin() string {
	if d.Bin == "" {
		return "docker"
	}
	return d.Bin
}

func (d *DockerCLI) log() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// notFoundMarkers are the stderr fragments that mean the reference definitely
// does not exist, as opposed to a transport or auth failure.
var notFoundMarkers = []string{
	"no such manifest",
	"manifest unknown",
	"not found",
	"name unknown",
}

// Exists probes the registry for the exact reference.
func (d *DockerCLI) Exists(ctx context.Context, ref string) (bool, error) {
	if err := d.login(ctx, ref); err != nil {
		return false, err
	}

	cmd := exec.CommandContext(ctx, d.bin(), "manifest", "inspect", ref)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.ToLower(stderr.String())
		for _, marker := range notFoundMarkers {
			if strings.Contains(msg, marker) {
				return false, nil
			}
		}
		return false, fmt.Errorf("manifest inspect %s: %w: %s", ref, err, strings.TrimSpace(stderr.String()))
	}
	return true, nil
}

// Build runs a docker build of contextDir with the given Dockerfile, tagging
// the result as ref. Failures carry the tool's diagnostic output.
func (d *DockerCLI) Build(ctx context.Context, contextDir, dockerfile, ref string) error {
	d.log().Info("starting image build", "ref", ref)
	cmd := exec.CommandContext(ctx, d.bin(), "build", "--file", dockerfile, "--tag", ref, contextDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker build %s: %w\n%s", ref, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Push publishes ref to the registry.
func (d *DockerCLI) Push(ctx context.Context, ref string) error {
	if err := d.login(ctx, ref); err != nil {
		return err
	}

	d.log().Info("pushing image", "ref", ref)
	cmd := exec.CommandContext(ctx, d.bin(), "push", ref)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker push %s: %w\n%s", ref, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// login authenticates against the registry host of ref when a credential
// provider is configured; otherwise ambient daemon credentials are assumed.
func (d *DockerCLI) login(ctx context.Context, ref string) error {
	if d.Provider == nil {
		return nil
	}

	creds, err := d.Provider.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("fetching registry credentials: %w", err)
	}

	host := ref
	if i := strings.IndexByte(ref, '/'); i > 0 {
		host = ref[:i]
	}

	cmd := exec.CommandContext(ctx, d.bin(), "login", "--username", creds.Username, "--password-stdin", host)
	cmd.Stdin = strings.NewReader(creds.Secret)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker login %s: %w\n%s", host, err, strings.TrimSpace(string(out)))
	}
	return nil
}
