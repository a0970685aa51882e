// Package listcache builds and persists the per-tool list of measurements
// that have backing data, so listing requests avoid rescanning the tree.
package listcache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/naming"
	"github.com/sells-group/afm-api/internal/resolve"
	"github.com/sells-group/afm-api/internal/store"
)

// CacheVersion is written into every artifact.
const CacheVersion = "1.0"

var (
	// ErrNoSurvivors is returned by Rebuild when no listed file has backing
	// data. The previous artifact, if any, is left in place.
	ErrNoSurvivors = eris.New("listcache: no measurements with backing data")

	// ErrNoArtifact is returned by Read when a tool has no artifact yet.
	ErrNoArtifact = eris.New("listcache: no artifact")
)

// Entry is one listed measurement.
type Entry struct {
	ID int `json:"id" yaml:"id"`

	naming.Key `yaml:",inline"`

	ToolName         string `json:"tool_name" yaml:"tool_name"`
	PickleDataExists bool   `json:"pickle_data_exists" yaml:"pickle_data_exists"`
}

// Metadata describes how an artifact was produced.
type Metadata struct {
	ToolName            string    `json:"tool_name" yaml:"tool_name"`
	TotalFilesProcessed int       `json:"total_files_processed" yaml:"total_files_processed"`
	GeneratedAt         time.Time `json:"generated_at" yaml:"generated_at"`
	CacheVersion        string    `json:"cache_version" yaml:"cache_version"`
}

// Artifact is the persisted form of a tool's measurement list.
type Artifact struct {
	Measurements []Entry  `json:"measurements" yaml:"measurements"`
	Metadata     Metadata `json:"metadata" yaml:"metadata"`
}

// Result summarizes a rebuild.
type Result struct {
	Tool       string `json:"tool"`
	Lines      int    `json:"lines"`
	Unparsable int    `json:"unparsable"`
	Unbacked   int    `json:"unbacked"`
	Survivors  int    `json:"survivors"`
	Written    bool   `json:"written"`
}

// Cache owns the per-tool artifacts. It is the only writer of them.
type Cache struct {
	store    *store.Store
	resolver *resolve.Resolver
	now      func() time.Time

	mu     sync.Mutex // serializes rebuilds
	group  singleflight.Group
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source for generated_at.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache.
func New(st *store.Store, r *resolve.Resolver, opts ...Option) *Cache {
	c := &Cache{
		store:    st,
		resolver: r,
		now:      time.Now,
		logger:   zap.L().With(zap.String("component", "listcache")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load returns the measurements for toolName. A persisted artifact is
// returned as is. Without one, or with one that cannot be decoded, the
// list is rebuilt and persisted first. A rebuild with no survivors yields
// an empty list, and the next Load tries again.
func (c *Cache) Load(toolName string) ([]Entry, error) {
	art, err := c.Read(toolName)
	switch {
	case err == nil:
		return art.Measurements, nil
	case eris.Is(err, ErrNoArtifact):
	case eris.Is(err, store.ErrInvalidTool):
		return nil, err
	default:
		c.logger.Warn("listcache: unreadable artifact, rebuilding",
			zap.String("tool", toolName), zap.Error(err))
	}

	v, err, _ := c.group.Do(toolName, func() (any, error) {
		if _, err := c.Rebuild(toolName); err != nil {
			return nil, err
		}
		return c.Read(toolName)
	})
	if eris.Is(err, ErrNoSurvivors) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return v.(*Artifact).Measurements, nil
}

// Read decodes the persisted artifact for toolName without validating it
// against the filesystem.
func (c *Cache) Read(toolName string) (*Artifact, error) {
	tool, err := c.store.Tool(toolName)
	if err != nil {
		return nil, err
	}
	ok, err := c.store.Exists(tool.Artifact())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(ErrNoArtifact, "tool %s", toolName)
	}
	data, err := c.store.ReadFile(tool.Artifact())
	if err != nil {
		return nil, err
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, eris.Wrapf(err, "listcache: decode %s", tool.Artifact())
	}
	if art.Measurements == nil {
		art.Measurements = []Entry{}
	}
	return &art, nil
}

// Rebuild rescans the tool's file list, keeps the names that parse and have
// a matching data pickle, and persists them. Entry ids are source line
// numbers. When nothing survives, ErrNoSurvivors is returned and the prior
// artifact is kept. When the survivors equal the persisted list, the
// artifact is left untouched.
func (c *Cache) Rebuild(toolName string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{Tool: toolName}
	tool, err := c.store.Tool(toolName)
	if err != nil {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "invalid").Inc()
		return res, err
	}
	log := c.logger.With(zap.String("tool", toolName))

	lines, err := c.readFileList(tool)
	if err != nil {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "error").Inc()
		return res, err
	}
	res.Lines = len(lines)

	index, err := c.resolver.MatchIndex(tool)
	if err != nil {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "error").Inc()
		return res, err
	}

	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		key, err := naming.Parse(l.name)
		if err != nil {
			res.Unparsable++
			metrics.ParseFailureTotal.WithLabelValues(toolName).Inc()
			log.Debug("listcache: skipping unparsable name", zap.Int("line", l.num), zap.String("name", l.name))
			continue
		}
		if !index.Has(key) {
			res.Unbacked++
			continue
		}
		entries = append(entries, Entry{
			ID:               l.num,
			Key:              key,
			ToolName:         toolName,
			PickleDataExists: true,
		})
	}
	res.Survivors = len(entries)

	if len(entries) == 0 {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "empty").Inc()
		log.Warn("listcache: rebuild found no measurements with backing data, keeping previous artifact",
			zap.String("file_list", tool.FileList()),
			zap.Int("lines", res.Lines),
			zap.Int("unparsable", res.Unparsable),
		)
		return res, eris.Wrapf(ErrNoSurvivors, "tool %s: %d lines scanned", toolName, res.Lines)
	}

	if prev, err := c.Read(toolName); err == nil && sameEntries(prev.Measurements, entries) {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "unchanged").Inc()
		metrics.CacheEntries.WithLabelValues(toolName).Set(float64(len(entries)))
		log.Info("listcache: artifact up to date", zap.Int("measurements", len(entries)))
		return res, nil
	}

	art := Artifact{
		Measurements: entries,
		Metadata: Metadata{
			ToolName:            toolName,
			TotalFilesProcessed: len(entries),
			GeneratedAt:         c.now().UTC(),
			CacheVersion:        CacheVersion,
		},
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "error").Inc()
		return res, eris.Wrap(err, "listcache: encode artifact")
	}
	if err := c.store.WriteAtomic(tool.Artifact(), append(data, '\n')); err != nil {
		metrics.CacheRebuildTotal.WithLabelValues(toolName, "error").Inc()
		return res, err
	}
	res.Written = true

	metrics.CacheRebuildTotal.WithLabelValues(toolName, "written").Inc()
	metrics.CacheEntries.WithLabelValues(toolName).Set(float64(len(entries)))
	log.Info("listcache: artifact written",
		zap.Int("measurements", len(entries)),
		zap.Int("unparsable", res.Unparsable),
		zap.Int("unbacked", res.Unbacked),
	)
	return res, nil
}

type listLine struct {
	num  int
	name string
}

// readFileList returns the non-empty names of the tool's file list with
// their 1-based line numbers. A missing list reads as empty.
func (c *Cache) readFileList(tool store.Tool) ([]listLine, error) {
	ok, err := c.store.Exists(tool.FileList())
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Warn("listcache: file list missing", zap.String("path", tool.FileList()))
		return nil, nil
	}
	data, err := c.store.ReadFile(tool.FileList())
	if err != nil {
		return nil, err
	}

	var out []listLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if name := cleanLine(sc.Text()); name != "" {
			out = append(out, listLine{num: n, name: name})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "listcache: scan %s", tool.FileList())
	}
	return out, nil
}

// cleanLine trims a file list line and drops a "<n>→" line number prefix.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	if _, after, ok := strings.Cut(line, "→"); ok {
		line = strings.TrimSpace(after)
	}
	return line
}

func sameEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		x.Fallbacks, y.Fallbacks = naming.Fallbacks{}, naming.Fallbacks{}
		if !reflect.DeepEqual(x, y) {
			return false
		}
	}
	return true
}
