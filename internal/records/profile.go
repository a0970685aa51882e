package records

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/afm-api/internal/payload"
)

// Point is one sample of a height profile.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// profileWrappers hold the actual profile when a payload nests it.
var profileWrappers = []string{"data", "profile", "coordinates"}

// ProfilePoints extracts x/y/z samples from a decoded profile payload.
// Coordinates are coerced to float64 with missing or non-numeric values
// read as 0. ok is false when the payload has no recognised layout.
func ProfilePoints(raw any) (points []Point, ok bool) {
	switch v := raw.(type) {
	case []any:
		points = make([]Point, 0, len(v))
		for _, e := range v {
			if m, isMap := e.(*payload.Dict); isMap {
				points = append(points, pointFromMapping(m))
			}
		}
		return points, true
	case *payload.Table:
		xk, yk, zk, found := coordinateKeys(v.Columns)
		if !found {
			return nil, false
		}
		xs, _ := v.Column(xk)
		ys, _ := v.Column(yk)
		zs, _ := v.Column(zk)
		return zipPoints(xs, ys, zs), true
	case *payload.Dict:
		for _, k := range profileWrappers {
			if inner, has := v.Get(k); has {
				return ProfilePoints(inner)
			}
		}
		xk, yk, zk, found := coordinateKeys(payload.Keys(v))
		if !found {
			return nil, false
		}
		return zipPoints(column(v, xk), column(v, yk), column(v, zk)), true
	default:
		return nil, false
	}
}

func pointFromMapping(m *payload.Dict) Point {
	var p Point
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		switch strings.ToLower(pair.Key) {
		case "x":
			p.X = toFloat(pair.Value)
		case "y":
			p.Y = toFloat(pair.Value)
		case "z":
			p.Z = toFloat(pair.Value)
		}
	}
	return p
}

// coordinateKeys picks the x, y and z columns: exact case-insensitive names
// first, then names containing x, y and z/height/h.
func coordinateKeys(keys []string) (x, y, z string, ok bool) {
	for _, k := range keys {
		switch strings.ToLower(k) {
		case "x":
			x = k
		case "y":
			y = k
		case "z":
			z = k
		}
	}
	if x != "" && y != "" && z != "" {
		return x, y, z, true
	}

	x, y, z = "", "", ""
	for _, k := range keys {
		lk := strings.ToLower(k)
		switch {
		case x == "" && strings.Contains(lk, "x"):
			x = k
		case y == "" && strings.Contains(lk, "y"):
			y = k
		case z == "" && (strings.Contains(lk, "z") || strings.Contains(lk, "height") || strings.Contains(lk, "h")):
			z = k
		}
	}
	return x, y, z, x != "" && y != "" && z != ""
}

// column returns a mapping value as a list, wrapping scalars.
func column(d *payload.Dict, key string) []any {
	v, _ := d.Get(key)
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func zipPoints(xs, ys, zs []any) []Point {
	n := min(len(xs), len(ys), len(zs))
	out := make([]Point, n)
	for i := range out {
		out[i] = Point{X: toFloat(xs[i]), Y: toFloat(ys[i]), Z: toFloat(zs[i])}
	}
	return out
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}
