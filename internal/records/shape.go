// Package records reshapes measurement payload sections into uniform lists
// of records. Four historical layouts are recognised:
//
//	Tabular          *payload.Table, already row oriented
//	Records          a list of mappings, passed through
//	ColumnarFlat     {"Site": [...], "ITEM": [...], ...}
//	ColumnarByGroup  {"1_UL": {"Point No": [...], ...}, ...}
//
// Anything else classifies as ShapeUnknown and normalizes to no records.
package records

import (
	"github.com/sells-group/afm-api/internal/payload"
)

// Shape identifies the layout of a payload section.
type Shape int

// Known section layouts.
const (
	ShapeUnknown Shape = iota
	ShapeTabular
	ShapeRecords
	ShapeColumnarFlat
	ShapeColumnarByGroup
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeTabular:
		return "tabular"
	case ShapeRecords:
		return "records"
	case ShapeColumnarFlat:
		return "columnar_flat"
	case ShapeColumnarByGroup:
		return "columnar_by_group"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classify decides the layout of raw. Sequences are checked before
// mappings, and a mapping with both Site and ITEM columns is flat even if
// some of its values are themselves mappings.
func Classify(raw any) Shape {
	switch v := raw.(type) {
	case *payload.Table:
		return ShapeTabular
	case []any:
		return ShapeRecords
	case *payload.Dict:
		if v == nil || v.Len() == 0 {
			return ShapeUnknown
		}
		_, hasSite := v.Get(ColumnSite)
		_, hasItem := v.Get(ColumnItem)
		if hasSite && hasItem {
			return ShapeColumnarFlat
		}
		for pair := v.Oldest(); pair != nil; pair = pair.Next() {
			if _, ok := pair.Value.(*payload.Dict); ok {
				return ShapeColumnarByGroup
			}
		}
		return ShapeUnknown
	default:
		return ShapeUnknown
	}
}
