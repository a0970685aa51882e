package records

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/payload"
)

// Column names with special meaning in measurement payloads.
const (
	ColumnSite    = "Site"
	ColumnItem    = "ITEM"
	ColumnPointNo = "Point No"

	// FieldMeasurementPoint tags records emitted from a grouped section.
	FieldMeasurementPoint = "measurement_point"
)

// definingColumns mark a row as present in a grouped section, in order of
// preference.
var definingColumns = []string{ColumnPointNo, ColumnItem}

// Record is one row of a measurement section. Field order follows the
// source payload.
type Record = *payload.Dict

// ToRecords converts a payload section of any recognised shape into
// records. Unknown shapes yield an empty, non-nil slice.
func ToRecords(raw any) []Record {
	switch Classify(raw) {
	case ShapeTabular:
		return raw.(*payload.Table).Records()
	case ShapeRecords:
		return passthrough(raw.([]any))
	case ShapeColumnarFlat:
		return flatRecords(raw.(*payload.Dict))
	case ShapeColumnarByGroup:
		return groupedRecords(raw.(*payload.Dict))
	default:
		return []Record{}
	}
}

// passthrough keeps the mapping elements of a record list. Elements that
// are not mappings cannot be rendered as records; they are dropped, logged
// and counted.
func passthrough(list []any) []Record {
	out := make([]Record, 0, len(list))
	dropped := 0
	for _, e := range list {
		if d, ok := e.(*payload.Dict); ok {
			out = append(out, d)
			continue
		}
		dropped++
	}
	if dropped > 0 {
		metrics.MalformedPayloadTotal.WithLabelValues("record").Add(float64(dropped))
		zap.L().With(zap.String("component", "records")).Warn("records: dropped non-mapping records",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(out)),
		)
	}
	return out
}

// flatRecords zips a flat columnar mapping across len(Site) rows.
func flatRecords(d *payload.Dict) []Record {
	sites, _ := d.Get(ColumnSite)
	siteList, _ := sites.([]any)

	out := make([]Record, 0, len(siteList))
	for i := range siteList {
		rec := payload.NewDict()
		for pair := d.Oldest(); pair != nil; pair = pair.Next() {
			values, ok := pair.Value.([]any)
			if ok && i < len(values) {
				rec.Set(pair.Key, values[i])
			}
		}
		if rec.Len() > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// groupedRecords zips each group's list-valued columns up to the shortest
// column and tags every row with the group key. When a group carries a
// defining column, rows where it is nil are skipped.
func groupedRecords(d *payload.Dict) []Record {
	var out []Record
	for group := d.Oldest(); group != nil; group = group.Next() {
		cols, ok := group.Value.(*payload.Dict)
		if !ok {
			continue
		}

		var (
			names  []string
			values [][]any
			rows   = -1
		)
		for pair := cols.Oldest(); pair != nil; pair = pair.Next() {
			list, ok := pair.Value.([]any)
			if !ok {
				continue
			}
			names = append(names, pair.Key)
			values = append(values, list)
			if rows < 0 || len(list) < rows {
				rows = len(list)
			}
		}
		if rows <= 0 {
			continue
		}

		defining := -1
		for _, col := range definingColumns {
			if i := indexOf(names, col); i >= 0 {
				defining = i
				break
			}
		}

		for i := 0; i < rows; i++ {
			if defining >= 0 && values[defining][i] == nil {
				continue
			}
			rec := payload.NewDict()
			rec.Set(FieldMeasurementPoint, group.Key)
			for c, name := range names {
				rec.Set(name, values[c][i])
			}
			out = append(out, rec)
		}
	}
	if out == nil {
		return []Record{}
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// AvailablePoints lists the measurement points present in raw: the sorted
// group keys of a grouped section, otherwise the sorted unique Site values.
func AvailablePoints(raw any) []string {
	switch Classify(raw) {
	case ShapeColumnarByGroup:
		keys := payload.Keys(raw.(*payload.Dict))
		sort.Strings(keys)
		return keys
	case ShapeColumnarFlat:
		sites, _ := raw.(*payload.Dict).Get(ColumnSite)
		list, _ := sites.([]any)
		return uniqueSorted(list)
	case ShapeRecords, ShapeTabular:
		var sites []any
		for _, rec := range ToRecords(raw) {
			if v, ok := rec.Get(ColumnSite); ok {
				sites = append(sites, v)
			}
		}
		return uniqueSorted(sites)
	default:
		return []string{}
	}
}

func uniqueSorted(values []any) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
