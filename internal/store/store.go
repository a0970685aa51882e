// Package store lays out the per-tool AFM directory tree and performs the
// filesystem operations the resolvers and caches need. All access goes
// through an afero.Fs so tests can run against an in-memory tree.
package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
)

// Directory and file names inside a tool root.
const (
	PickleDir    = "data_dir_pickle"
	ProfileDir   = "profile_dir"
	ImageDir     = "tiff_dir"
	AlignDir     = "align_dir"
	TipDir       = "tip_dir"
	FileListName = "data_dir_list.txt"
	ArtifactName = "data_dir_list_parsed.json"
)

// ErrInvalidTool is returned for tool names that are malformed or not configured.
var ErrInvalidTool = eris.New("store: invalid tool")

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store resolves tool directories below a common root.
type Store struct {
	fs    afero.Fs
	root  string
	tools map[string]struct{}
}

// New creates a Store rooted at root. When tools is empty any well-formed
// tool name is accepted.
func New(fs afero.Fs, root string, tools []string) *Store {
	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		allowed[t] = struct{}{}
	}
	return &Store{fs: fs, root: filepath.Clean(root), tools: allowed}
}

// Fs returns the underlying filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

// Root returns the directory holding all tool trees.
func (s *Store) Root() string { return s.root }

// Tools returns the configured tool names in sorted order.
func (s *Store) Tools() []string {
	out := make([]string, 0, len(s.tools))
	for t := range s.tools {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Tool returns the layout of a single tool tree.
func (s *Store) Tool(name string) (Tool, error) {
	if !toolNamePattern.MatchString(name) {
		return Tool{}, eris.Wrapf(ErrInvalidTool, "malformed tool name %q", name)
	}
	if len(s.tools) > 0 {
		if _, ok := s.tools[name]; !ok {
			return Tool{}, eris.Wrapf(ErrInvalidTool, "unknown tool %q", name)
		}
	}
	return Tool{Name: name, Root: filepath.Join(s.root, name)}, nil
}

// Exists reports whether path exists. A missing file is not an error.
func (s *Store) Exists(path string) (bool, error) {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, eris.Wrapf(err, "store: stat %s", path)
	}
	return ok, nil
}

// ReadFile reads the whole file at path.
func (s *Store) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", path)
	}
	return data, nil
}

// Open opens path for reading.
func (s *Store) Open(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	return f, nil
}

// Stat returns file info for path.
func (s *Store) Stat(path string) (os.FileInfo, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: stat %s", path)
	}
	return info, nil
}

// ListFiles returns the regular files in dir whose extension (lower-cased)
// is one of exts, sorted by name. A missing directory yields no files.
func (s *Store) ListFiles(dir string, exts ...string) ([]os.FileInfo, error) {
	ok, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "store: stat %s", dir)
	}
	if !ok {
		return nil, nil
	}

	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list %s", dir)
	}

	var out []os.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(exts) > 0 && !hasExt(e.Name(), exts) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// WriteAtomic writes data to a temp file next to path and renames it into
// place, creating parent directories as needed.
func (s *Store) WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "store: create %s", dir)
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "store: temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return eris.Wrapf(err, "store: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return eris.Wrapf(err, "store: close %s", tmpName)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return eris.Wrapf(err, "store: rename %s", path)
	}
	return nil
}

// Tool is the directory layout of one measurement tool.
type Tool struct {
	Name string
	Root string
}

// Dir returns a subdirectory of the tool root.
func (t Tool) Dir(name string) string { return filepath.Join(t.Root, name) }

// PickleDir holds measurement payloads.
func (t Tool) PickleDir() string { return t.Dir(PickleDir) }

// ProfileDir holds per-point profile payloads.
func (t Tool) ProfileDir() string { return t.Dir(ProfileDir) }

// ImageDir holds per-point rendered images.
func (t Tool) ImageDir() string { return t.Dir(ImageDir) }

// FileList is the flat list of known measurement file names.
func (t Tool) FileList() string { return filepath.Join(t.Root, FileListName) }

// Artifact is the persisted parsed file list.
func (t Tool) Artifact() string { return filepath.Join(t.Root, ArtifactName) }

// ImageDirs maps image listing types to their directories.
var ImageDirs = map[string]string{
	"profile": ProfileDir,
	"tiff":    ImageDir,
	"align":   AlignDir,
	"tip":     TipDir,
}

// ImageExts are the extensions served as images.
var ImageExts = []string{".webp", ".png", ".jpg", ".jpeg", ".tiff", ".tif"}

// ContentType maps a file extension to its MIME type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webp":
		return "image/webp"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
