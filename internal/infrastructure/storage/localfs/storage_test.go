package localfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCurrentMissingBeforeFirstBuild(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Current(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestStagePromoteAndSwap(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dir, err := s.Stage("b1")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Promote("b1"); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.BuildDir("b1"), "index.db")); err != nil {
		t.Fatalf("promoted file missing: %v", err)
	}
	if err := s.SetCurrent("b1"); err != nil {
		t.Fatalf("SetCurrent() error = %v", err)
	}
	id, err := s.Current()
	if err != nil || id != "b1" {
		t.Fatalf("Current() = %q, %v", id, err)
	}

	matches, _ := filepath.Glob(filepath.Join(root, CurrentFile+".tmp-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary pointer files left behind: %v", matches)
	}
}

func TestCurrentRejectsMalformedPointer(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	for _, content := range []string{"", "  \n", "../escape", "a/b"} {
		if err := os.WriteFile(s.CurrentPath(), []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := s.Current(); err == nil {
			t.Fatalf("expected error for pointer %q", content)
		}
	}
}

func TestPruneKeepsRequestedBuilds(t *testing.T) {
	s, _ := New(t.TempDir())
	for _, id := range []string{"b1", "b2", "b3"} {
		if _, err := s.Stage(id); err != nil {
			t.Fatalf("Stage(%s): %v", id, err)
		}
		if err := s.Promote(id); err != nil {
			t.Fatalf("Promote(%s): %v", id, err)
		}
	}
	if _, err := s.Stage("abandoned"); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	removed, err := s.Prune("b2", "b3")
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if !slices.Equal(removed, []string{"b1"}) {
		t.Fatalf("unexpected removed builds %v", removed)
	}
	ids, _ := s.Builds()
	if !slices.Equal(ids, []string{"b2", "b3"}) {
		t.Fatalf("unexpected remaining builds %v", ids)
	}
	if _, err := os.Stat(s.StagingDir("abandoned")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("abandoned staging dir should be removed")
	}
}
