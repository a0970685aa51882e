// Package resolve locates the files that back a measurement: the data
// pickle for a file name, and the per-point profile pickle or rendered
// image, whose names follow several historical conventions.
package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/afm-api/internal/naming"
	"github.com/sells-group/afm-api/internal/store"
)

// ErrNotFound is returned when no candidate file exists.
var ErrNotFound = eris.New("resolve: not found")

// Kind selects the per-point file family.
type Kind int

// Per-point file families.
const (
	KindProfile Kind = iota
	KindImage
)

// ParseKind parses "profile" or "image".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "profile":
		return KindProfile, nil
	case "image":
		return KindImage, nil
	default:
		return 0, eris.Errorf("resolve: unknown kind %q", s)
	}
}

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "profile"
}

// Ext is the file extension of the family, without the dot.
func (k Kind) Ext() string {
	if k == KindImage {
		return "webp"
	}
	return "pkl"
}

// Dir is the directory of the family within a tool tree.
func (k Kind) Dir(t store.Tool) string {
	if k == KindImage {
		return t.ImageDir()
	}
	return t.ProfileDir()
}

// positionCodes are tried when a site id carries no position.
var positionCodes = []string{"UL", "UR", "LL", "LR", "C"}

// SiteSelector identifies a measurement point. Only PointNo is reliable;
// the other fields are hints echoed back from listing responses.
type SiteSelector struct {
	SiteID  string `json:"site_id,omitempty"`
	SiteX   string `json:"site_x,omitempty"`
	SiteY   string `json:"site_y,omitempty"`
	PointNo *int   `json:"point_no,omitempty"`
}

// PointSource records how the point number was obtained.
type PointSource int

// Point number sources, from strongest to weakest.
const (
	PointExplicit PointSource = iota
	PointFromSite
	PointDefault
)

func (p PointSource) String() string {
	switch p {
	case PointFromSite:
		return "site_id"
	case PointDefault:
		return "default"
	default:
		return "explicit"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PointSource) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Weak reports whether the point number was not supplied by the caller.
func (p PointSource) Weak() bool { return p != PointExplicit }

// Point returns the point number: PointNo when set, else the integer before
// the first '_' of SiteID, else 1.
func (s SiteSelector) Point() (int, PointSource) {
	if s.PointNo != nil {
		return *s.PointNo, PointExplicit
	}
	head, _, _ := strings.Cut(s.SiteID, "_")
	if n, err := strconv.Atoi(strings.TrimSpace(head)); err == nil {
		return n, PointFromSite
	}
	return 1, PointDefault
}

// Candidates returns the ordered file names to probe for a point of the
// measurement named base, most specific first, without duplicates.
func Candidates(base string, sel SiteSelector, kind Kind) ([]string, PointSource) {
	point, src := sel.Point()
	p4 := fmt.Sprintf("%04d", point)

	prefix := naming.StripExt(base)
	if !strings.HasSuffix(prefix, "#") {
		prefix += "#"
	}

	var suffixes []string
	site := sel.SiteID
	if site != "" && sel.SiteX != "" && sel.SiteY != "" {
		suffixes = append(suffixes, "_"+site+"_"+sel.SiteX+"_"+sel.SiteY+"_"+p4)
	}
	if site != "" {
		suffixes = append(suffixes, "_"+site+"_"+p4)
	}
	suffixes = append(suffixes, "_"+p4)
	if site != "" {
		if num, pos, ok := strings.Cut(site, "_"); ok {
			suffixes = append(suffixes, "_"+num+"_"+pos+"_"+p4)
		} else {
			for _, pos := range positionCodes {
				suffixes = append(suffixes, "_"+site+"_"+pos+"_"+p4)
			}
		}
	}

	seen := make(map[string]struct{}, len(suffixes))
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		name := prefix + s + "_Height." + kind.Ext()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, src
}
