package resolve

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/naming"
	"github.com/sells-group/afm-api/internal/store"
)

const pickleExt = ".pkl"

// ErrInvalidName is returned for a measurement file name that is not a
// bare file name.
var ErrInvalidName = eris.New("resolve: invalid file name")

// CheckName rejects names that carry a directory part or could climb out
// of a tool directory once joined to it.
func CheckName(name string) error {
	if name == "" || name != filepath.Base(name) ||
		strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return eris.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}

// DataFileName is the data pickle name for a measurement file name.
func DataFileName(filename string) string {
	return naming.StripExt(filename) + pickleExt
}

// DataFile returns the path of the data pickle for filename. The name maps
// 1:1 onto the pickle directory, so a single existence check decides.
func (r *Resolver) DataFile(tool store.Tool, filename string) (string, error) {
	if err := CheckName(filename); err != nil {
		return "", err
	}
	path := filepath.Join(tool.PickleDir(), DataFileName(filename))
	ok, err := r.store.Exists(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", eris.Wrapf(ErrNotFound, "no pickle file for %s in tool %s", filename, tool.Name)
	}
	return path, nil
}

// ExistsMatchingKey reports whether any pickle in the tool's pickle
// directory parses to the same lot, slot, measured info and recipe as key.
// It scans the whole directory on every call.
func (r *Resolver) ExistsMatchingKey(tool store.Tool, key naming.Key) (bool, error) {
	files, err := r.store.ListFiles(tool.PickleDir(), pickleExt)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		parsed, err := naming.Parse(f.Name())
		if err != nil {
			continue
		}
		if parsed.SameMeasurement(key) {
			return true, nil
		}
	}
	return false, nil
}

// MatchIndex is the set of measurement identities present in a pickle
// directory, mapped to the first file name carrying each.
type MatchIndex map[naming.Identity]string

// Has reports whether a pickle matching key exists.
func (m MatchIndex) Has(key naming.Key) bool {
	_, ok := m[key.Identity()]
	return ok
}

// MatchIndex scans the tool's pickle directory once so that many keys can
// be checked without rescanning. Has gives the same answers as
// ExistsMatchingKey for an unchanged directory.
func (r *Resolver) MatchIndex(tool store.Tool) (MatchIndex, error) {
	files, err := r.store.ListFiles(tool.PickleDir(), pickleExt)
	if err != nil {
		return nil, err
	}
	idx := make(MatchIndex, len(files))
	for _, f := range files {
		parsed, err := naming.Parse(f.Name())
		if err != nil {
			continue
		}
		id := parsed.Identity()
		if kept, ok := idx[id]; ok {
			metrics.DuplicateMatchTotal.WithLabelValues("pickle").Inc()
			r.log.Warn("resolve: duplicate data pickle for measurement",
				zap.String("tool", tool.Name),
				zap.String("chosen", kept),
				zap.String("shadowed", f.Name()),
			)
			continue
		}
		idx[id] = f.Name()
	}
	return idx, nil
}
