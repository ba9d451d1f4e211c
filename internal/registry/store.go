// Package registry resolves model names to on-disk artifacts. Artifacts live
// in one directory per category under a models root:
//
//	<root>/chat/*.gguf
//	<root>/embedding/*.gguf
//	<root>/reranker/*.gguf
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"llmd/internal/common/fsutil"
	"llmd/pkg/types"
)

// Ext is the artifact file extension appended to names that lack it.
const Ext = ".gguf"

// Store maps (name, category) pairs to artifact paths under a models root.
type Store struct {
	root string
	log  zerolog.Logger
}

// New returns a Store rooted at dir. A leading '~' is expanded and the
// result made absolute so resolved paths are stable cache keys.
func New(dir string, log zerolog.Logger) (*Store, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return &Store{root: abs, log: log}, nil
}

// Root returns the absolute models root.
func (s *Store) Root() string { return s.root }

// Dir returns the base directory of category c.
func (s *Store) Dir(c types.Category) string {
	return filepath.Join(s.root, string(c))
}

// EnsureLayout creates the category directories if they are missing.
func (s *Store) EnsureLayout() error {
	for _, c := range types.Categories() {
		if err := fsutil.EnsureDir(s.Dir(c)); err != nil {
			return err
		}
	}
	return nil
}

// FileName appends Ext to name unless it already ends with it (any case).
func FileName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), Ext) {
		return name
	}
	return name + Ext
}

// Resolve returns the artifact path for name in category c. It does no I/O.
func (s *Store) Resolve(name string, c types.Category) string {
	return filepath.Join(s.Dir(c), filepath.Base(FileName(name)))
}

// List enumerates artifacts of category c sorted by name. loaded reports cache
// membership per resolved path and may be nil. A directory that cannot be
// read yields an empty list.
func (s *Store) List(c types.Category, loaded func(path string) bool) []types.Model {
	dir := s.Dir(c)
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn().Err(err).Str("category", string(c)).Str("dir", dir).Msg("list models")
		return []types.Model{}
	}
	out := make([]types.Model, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), Ext) {
			continue
		}
		// Same check as the load path, so symlinked artifacts are listed.
		if !fsutil.IsRegularFile(filepath.Join(dir, name)) {
			continue
		}
		m := types.Model{Name: name, Type: c}
		if loaded != nil {
			m.Loaded = loaded(filepath.Join(dir, name))
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAll concatenates List over every category in fixed order.
func (s *Store) ListAll(loaded func(path string) bool) []types.Model {
	out := []types.Model{}
	for _, c := range types.Categories() {
		out = append(out, s.List(c, loaded)...)
	}
	return out
}

// Locate reports the categories, in fixed order, that hold an artifact for name.
func (s *Store) Locate(name string) []types.Category {
	var found []types.Category
	for _, c := range types.Categories() {
		if fsutil.IsRegularFile(s.Resolve(name, c)) {
			found = append(found, c)
		}
	}
	return found
}
