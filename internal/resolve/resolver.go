package resolve

import (
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/store"
)

// Resolver finds measurement files in a Store.
type Resolver struct {
	store *store.Store
	audit bool
	log   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDuplicateAudit makes point lookups probe every candidate and warn
// about matches shadowed by the first one.
func WithDuplicateAudit(on bool) Option {
	return func(r *Resolver) { r.audit = on }
}

// NewResolver creates a Resolver over st.
func NewResolver(st *store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store: st,
		log:   zap.L().With(zap.String("component", "resolve")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Match is a resolved per-point file.
type Match struct {
	Path        string      `json:"path"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Point       int         `json:"point"`
	PointSource PointSource `json:"point_source"`
	Tried       []string    `json:"tried"`
	Shadowed    []string    `json:"shadowed,omitempty"`
}

// RelativePath is the match path relative to the tool root.
func (m Match) RelativePath() string {
	return filepath.Join(filepath.Base(filepath.Dir(m.Path)), m.Name)
}

// FirstExisting returns the index of the first name in dir that exists, or
// -1. It stops probing at the first hit.
func FirstExisting(st *store.Store, dir string, names []string) (int, error) {
	for i, name := range names {
		ok, err := st.Exists(filepath.Join(dir, name))
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// AllExisting returns the indexes of every name in dir that exists.
func AllExisting(st *store.Store, dir string, names []string) ([]int, error) {
	var hits []int
	for i, name := range names {
		ok, err := st.Exists(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, i)
		}
	}
	return hits, nil
}

// Point locates the profile or image file for a point of the measurement
// named base. Candidates are probed in order and the first existing one
// wins; ErrNotFound is returned only after all have been tried.
func (r *Resolver) Point(tool store.Tool, base string, sel SiteSelector, kind Kind) (Match, error) {
	return r.point(tool, base, sel, kind, r.audit)
}

// PointAudited is Point with every candidate probed regardless of the audit
// option, so Shadowed is always filled in.
func (r *Resolver) PointAudited(tool store.Tool, base string, sel SiteSelector, kind Kind) (Match, error) {
	return r.point(tool, base, sel, kind, true)
}

func (r *Resolver) point(tool store.Tool, base string, sel SiteSelector, kind Kind, audit bool) (Match, error) {
	if err := CheckName(base); err != nil {
		return Match{}, err
	}
	names, src := Candidates(base, sel, kind)
	for _, name := range names {
		if err := CheckName(name); err != nil {
			return Match{}, eris.Wrapf(err, "site hints of %s", base)
		}
	}
	dir := kind.Dir(tool)
	point, _ := sel.Point()

	log := r.log.With(
		zap.String("tool", tool.Name),
		zap.String("kind", kind.String()),
		zap.String("filename", base),
		zap.String("site_id", sel.SiteID),
		zap.Int("point", point),
	)

	if src.Weak() {
		metrics.WeakPointTotal.WithLabelValues(src.String()).Inc()
		if src == PointDefault {
			log.Warn("resolve: point number defaulted", zap.String("point_source", src.String()))
		} else {
			log.Debug("resolve: point number derived from site id")
		}
	}

	var (
		hits []int
		err  error
	)
	if audit {
		hits, err = AllExisting(r.store, dir, names)
	} else {
		var idx int
		idx, err = FirstExisting(r.store, dir, names)
		if idx >= 0 {
			hits = []int{idx}
		}
	}
	if err != nil {
		metrics.ResolveTotal.WithLabelValues(kind.String(), "error").Inc()
		return Match{}, eris.Wrapf(err, "resolve: probe %s", dir)
	}

	if len(hits) == 0 {
		metrics.ResolveTotal.WithLabelValues(kind.String(), "not_found").Inc()
		metrics.ResolveProbes.WithLabelValues(kind.String()).Observe(float64(len(names)))
		log.Debug("resolve: no candidate matched", zap.Int("candidates", len(names)))
		return Match{Kind: kind.String(), Point: point, PointSource: src, Tried: names},
			eris.Wrapf(ErrNotFound, "no %s file for %s point %s in tool %s (%d candidates)",
				kind, base, pointLabel(sel, point), tool.Name, len(names))
	}

	first := hits[0]
	m := Match{
		Path:        filepath.Join(dir, names[first]),
		Name:        names[first],
		Kind:        kind.String(),
		Point:       point,
		PointSource: src,
		Tried:       names[:first+1],
	}
	probes := first + 1
	if audit {
		probes = len(names)
	}
	metrics.ResolveProbes.WithLabelValues(kind.String()).Observe(float64(probes))
	metrics.ResolveTotal.WithLabelValues(kind.String(), "found").Inc()

	for _, i := range hits[1:] {
		m.Shadowed = append(m.Shadowed, names[i])
	}
	if len(m.Shadowed) > 0 {
		metrics.DuplicateMatchTotal.WithLabelValues(kind.String()).Inc()
		log.Warn("resolve: multiple candidates exist, using the most specific",
			zap.String("chosen", m.Name),
			zap.Strings("shadowed", m.Shadowed),
		)
	}
	return m, nil
}

func pointLabel(sel SiteSelector, point int) string {
	if sel.SiteID != "" {
		return sel.SiteID
	}
	return strconv.Itoa(point)
}
