// Package payload decodes measurement payload files (.pkl and .json) into a
// small set of Go value types that keep mapping order:
//
//	dict        -> *Dict (string keys, insertion order)
//	list, tuple -> []any
//	str         -> string
//	int         -> int64
//	float       -> float64
//	bool        -> bool
//	None/null   -> nil
//
// Instances of classes the decoder does not model, such as a pickled
// pandas DataFrame, decode to an opaque *Object naming the class.
//
// A dict holding exactly "columns" and "data" (and optionally "index") lists
// is decoded as a *Table, the split orientation of a data frame.
package payload

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Dict is an insertion-ordered mapping with string keys.
type Dict = orderedmap.OrderedMap[string, any]

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return orderedmap.New[string, any]()
}

// DictOf builds a Dict from alternating key/value arguments.
func DictOf(kv ...any) *Dict {
	d := NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		d.Set(k, kv[i+1])
	}
	return d
}

// Keys returns the keys of d in insertion order.
func Keys(d *Dict) []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, d.Len())
	for pair := d.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Table is row-oriented tabular data.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Records converts the table into one Dict per row. Short rows leave the
// trailing columns unset.
func (t *Table) Records() []*Dict {
	out := make([]*Dict, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := NewDict()
		for i, col := range t.Columns {
			if i < len(row) {
				rec.Set(col, row[i])
			}
		}
		out = append(out, rec)
	}
	return out
}

// MarshalJSON encodes the table in split orientation.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := t.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Data    [][]any  `json:"data"`
	}{t.Columns, rows})
}

// Column returns the values of the named column, or false if absent.
func (t *Table) Column(name string) ([]any, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, nil)
		}
	}
	return out, true
}

// tableFromDict recognizes the split orientation {columns, data[, index]}.
func tableFromDict(d *Dict) (*Table, bool) {
	n := d.Len()
	if n != 2 && n != 3 {
		return nil, false
	}
	rawCols, ok := d.Get("columns")
	if !ok {
		return nil, false
	}
	rawData, ok := d.Get("data")
	if !ok {
		return nil, false
	}
	if n == 3 {
		if _, ok := d.Get("index"); !ok {
			return nil, false
		}
	}

	colList, ok := rawCols.([]any)
	if !ok {
		return nil, false
	}
	rowList, ok := rawData.([]any)
	if !ok {
		return nil, false
	}

	t := &Table{Columns: make([]string, 0, len(colList))}
	for _, c := range colList {
		s, ok := c.(string)
		if !ok {
			return nil, false
		}
		t.Columns = append(t.Columns, s)
	}
	for _, r := range rowList {
		row, ok := r.([]any)
		if !ok {
			return nil, false
		}
		t.Rows = append(t.Rows, row)
	}
	return t, true
}

// Object is a pickled instance of a class that has no Go counterpart. Only
// the qualified class name is kept.
type Object struct {
	Class string
}

// MarshalJSON encodes the object as its class name.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal("<" + o.Class + ">")
}
