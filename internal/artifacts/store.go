// Package artifacts persists run outputs without ever replacing an existing
// file and optionally mirrors them to object storage.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrArtifactExists indicates the destination already holds an artifact.
	ErrArtifactExists = errors.New("artifact already exists")
	// ErrArtifactNameRequired indicates the caller did not specify a relative path.
	ErrArtifactNameRequired = errors.New("artifact name required")
)

// Meta captures persisted artifact metadata.
type Meta struct {
	Name      string
	Path      string
	SHA256    string
	Size      int64
	CreatedAt time.Time
}

// FileStore persists artifacts under a root directory.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore constructs a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Prepare checks that name can be saved later: its directory is created, a
// temp file can be written there and nothing exists at the target yet. It
// returns the target path.
func (s *FileStore) Prepare(name string) (string, error) {
	_, path, err := s.target(name)
	if err != nil {
		return "", err
	}
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("artifact dir %q is not writable: %w", filepath.Dir(path), err)
	}
	file.Close()
	os.Remove(file.Name())
	return path, nil
}

// target resolves name under the root, creates its directory and rejects a
// name that is already taken.
func (s *FileStore) target(name string) (rel, path string, err error) {
	rel, err = cleanRel(name)
	if err != nil {
		return "", "", err
	}
	path = filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("create artifact dir %q: %w", filepath.Dir(path), err)
	}
	if _, err := os.Stat(path); err == nil {
		return "", "", fmt.Errorf("%w: %s", ErrArtifactExists, path)
	}
	return rel, path, nil
}

// Save writes data to name (relative to the store root). The content is
// written to a temp file first and then linked into place, so a reader never
// observes a partial artifact and an existing file is never replaced.
func (s *FileStore) Save(ctx context.Context, name string, data io.Reader) (Meta, error) {
	var meta Meta
	if err := ctx.Err(); err != nil {
		return meta, err
	}
	rel, path, err := s.target(name)
	if err != nil {
		return meta, err
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return meta, fmt.Errorf("create temp artifact %q: %w", path, err)
	}
	tmpPath := file.Name()
	defer os.Remove(tmpPath)
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, hasher), data)
	if err != nil {
		return meta, fmt.Errorf("write artifact %q: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return meta, fmt.Errorf("sync artifact %q: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return meta, fmt.Errorf("close artifact %q: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return meta, fmt.Errorf("chmod artifact %q: %w", path, err)
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return meta, fmt.Errorf("%w: %s", ErrArtifactExists, path)
		}
		return meta, fmt.Errorf("commit artifact %q: %w", path, err)
	}

	meta = Meta{
		Name:      filepath.ToSlash(rel),
		Path:      path,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		Size:      size,
		CreatedAt: s.now().UTC(),
	}
	return meta, nil
}

func cleanRel(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrArtifactNameRequired
	}
	rel := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(rel) || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact name %q escapes the store root", name)
	}
	return rel, nil
}
