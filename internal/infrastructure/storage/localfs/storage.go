package localfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	CurrentFile   = "CURRENT"
	buildsDir     = "builds"
	stagingPrefix = ".staging-"
)

// Storage owns the on-disk layout of a persisted index:
//
//	<root>/CURRENT            build id of the live build
//	<root>/builds/<id>/       complete builds
//	<root>/.staging-<id>/     a build in progress
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	if err := os.MkdirAll(filepath.Join(root, buildsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{root: root}, nil
}

// Existing opens a layout without creating anything.
func Existing(root string) *Storage {
	return &Storage{root: root}
}

func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) CurrentPath() string {
	return filepath.Join(s.root, CurrentFile)
}

func (s *Storage) BuildDir(id string) string {
	return filepath.Join(s.root, buildsDir, id)
}

func (s *Storage) StagingDir(id string) string {
	return filepath.Join(s.root, stagingPrefix+id)
}

// Stage creates an empty staging directory for a new build.
func (s *Storage) Stage(id string) (string, error) {
	dir := s.StagingDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

func (s *Storage) Discard(id string) error {
	return os.RemoveAll(s.StagingDir(id))
}

// Promote moves a finished staging directory under builds/. It does not touch
// CURRENT, so readers keep seeing the previous build.
func (s *Storage) Promote(id string) error {
	if err := os.Rename(s.StagingDir(id), s.BuildDir(id)); err != nil {
		return fmt.Errorf("promote build %s: %w", id, err)
	}
	return syncDir(filepath.Join(s.root, buildsDir))
}

// SetCurrent atomically repoints CURRENT at id by renaming a fully written
// temporary file over it.
func (s *Storage) SetCurrent(id string) error {
	tmp, err := os.CreateTemp(s.root, CurrentFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create pointer file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write pointer file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync pointer file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pointer file: %w", err)
	}
	if err := os.Rename(tmpName, s.CurrentPath()); err != nil {
		return fmt.Errorf("swap pointer file: %w", err)
	}
	return syncDir(s.root)
}

// Current returns the live build id. fs.ErrNotExist means nothing was built yet.
func (s *Storage) Current() (string, error) {
	raw, err := os.ReadFile(s.CurrentPath())
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(raw))
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("malformed pointer file %q", s.CurrentPath())
	}
	return id, nil
}

// Builds lists complete build ids in ascending name order.
func (s *Storage) Builds() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, buildsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list builds: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Prune removes complete builds not listed in keep, and leftover staging
// directories from interrupted builds other than keep.
func (s *Storage) Prune(keep ...string) ([]string, error) {
	ids, err := s.Builds()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, id := range ids {
		if slices.Contains(keep, id) {
			continue
		}
		if err := os.RemoveAll(s.BuildDir(id)); err != nil {
			return removed, fmt.Errorf("remove build %s: %w", id, err)
		}
		removed = append(removed, id)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return removed, fmt.Errorf("list storage root: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, stagingPrefix) {
			continue
		}
		if slices.Contains(keep, strings.TrimPrefix(name, stagingPrefix)) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			return removed, fmt.Errorf("remove staging %s: %w", name, err)
		}
	}
	return removed, nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
