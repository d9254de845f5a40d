// Package imagecache avoids redundant container image builds by keying the
// published tag to a fingerprint of the image's own build inputs. The remote
// registry's tag namespace is the durable cache store; identical inputs always
// map to the same tag, so a hit means the artifact already exists.
package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrManifestNotFound means the configured dependency manifest path does not
// exist. This is fatal: a missing manifest would silently change the
// fingerprint and the image contents.
var ErrManifestNotFound = errors.New("dependency manifest not found")

// tagLength is the hex prefix of the digest used as the image tag.
const tagLength = 32

// Fingerprint computes the deterministic content hash of a build input set:
// the dependency manifest bytes first (when configured), then every file under
// srcDir in fully sorted order, each contributing its slash-separated relative
// path followed by its raw contents. manifestFile is relative to srcDir and
// may be empty.
func Fingerprint(srcDir, manifestFile string) (string, error) {
	hasher := sha256.New()

	if manifestFile != "" {
		data, err := os.ReadFile(filepath.Join(srcDir, manifestFile))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrManifestNotFound, filepath.Join(srcDir, manifestFile))
			}
			return "", fmt.Errorf("reading manifest: %w", err)
		}
		hasher.Write(data)
	}

	// WalkDir visits entries in lexical order, which keeps the digest stable
	// across platforms with different native iteration order.
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		hasher.Write([]byte(filepath.ToSlash(rel)))

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(hasher, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hashing source tree %s: %w", srcDir, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
