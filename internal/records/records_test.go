package records

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/payload"
)

func groupedFixture() *payload.Dict {
	return payload.DictOf(
		"2_UR", payload.DictOf(
			"Point No", []any{int64(1), int64(2), nil},
			"Left_H (nm)", []any{10.5, 11.5, 12.5},
			"unit", "nm",
		),
		"1_UL", payload.DictOf(
			"Point No", []any{int64(1), int64(2), int64(3)},
			"Left_H (nm)", []any{1.5, 2.5},
		),
	)
}

func flatFixture() *payload.Dict {
	return payload.DictOf(
		"Site", []any{"1_UL", "2_UR", "1_UL"},
		"ITEM", []any{"MEAN", "MEAN", "STDEV"},
		"Left_H (nm)", []any{129.61, 93.46},
	)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Shape
	}{
		{"table", &payload.Table{Columns: []string{"Site"}}, ShapeTabular},
		{"list", []any{payload.DictOf("Site", "1_UL")}, ShapeRecords},
		{"empty list", []any{}, ShapeRecords},
		{"flat", flatFixture(), ShapeColumnarFlat},
		{"grouped", groupedFixture(), ShapeColumnarByGroup},
		{"flat wins over grouped", payload.DictOf("Site", []any{"a"}, "ITEM", []any{"b"}, "g", payload.NewDict()), ShapeColumnarFlat},
		{"site without item", payload.DictOf("Site", []any{"a"}), ShapeUnknown},
		{"empty dict", payload.NewDict(), ShapeUnknown},
		{"nil", nil, ShapeUnknown},
		{"scalar", "text", ShapeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw))
		})
	}
}

func TestToRecords_Tabular(t *testing.T) {
	tbl := &payload.Table{
		Columns: []string{"Site", "ITEM", "Value"},
		Rows:    [][]any{{"1_UL", "MEAN", 1.0}, {"2_UR", "MEAN", 2.0}},
	}
	recs := ToRecords(tbl)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"Site", "ITEM", "Value"}, payload.Keys(recs[1]))
	v, _ := recs[1].Get("Value")
	assert.Equal(t, 2.0, v)
}

func TestToRecords_Passthrough(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	before := testutil.ToFloat64(metrics.MalformedPayloadTotal.WithLabelValues("record"))

	a := payload.DictOf("Site", "1_UL", "v", int64(1))
	recs := ToRecords([]any{a, "stray", int64(3), payload.DictOf("Site", "2_UR")})
	require.Len(t, recs, 2)
	assert.Same(t, a, recs[0])

	entries := logs.FilterMessage("records: dropped non-mapping records").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["dropped"])
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.MalformedPayloadTotal.WithLabelValues("record")))
}

func TestToRecords_PassthroughAllMappings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	recs := ToRecords([]any{payload.DictOf("Site", "1_UL")})
	assert.Len(t, recs, 1)
	assert.Zero(t, logs.Len())
}

func TestFromPayload_OpaqueFrame(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	frame := &payload.Object{Class: "pandas.core.frame.DataFrame"}
	assert.Equal(t, ShapeUnknown, Classify(frame))

	d := FromPayload(payload.DictOf("info", payload.DictOf("tool", "MAP608"), "summary", frame, "data", frame))
	assert.True(t, d.Malformed())
	assert.Empty(t, d.Summary)
	assert.Empty(t, d.Data)
	assert.Equal(t, []string{"tool"}, payload.Keys(d.Information))

	warned := logs.FilterMessage("records: unrecognised summary shape").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "object pandas.core.frame.DataFrame", warned[0].ContextMap()["type"])
}

func TestToRecords_ColumnarFlat(t *testing.T) {
	recs := ToRecords(flatFixture())
	require.Len(t, recs, 3)

	assert.Equal(t, []string{"Site", "ITEM", "Left_H (nm)"}, payload.Keys(recs[0]))
	// The short column only fills the rows it has values for.
	assert.Equal(t, []string{"Site", "ITEM"}, payload.Keys(recs[2]))

	item, _ := recs[2].Get("ITEM")
	assert.Equal(t, "STDEV", item)
}

func TestToRecords_ColumnarByGroup(t *testing.T) {
	recs := ToRecords(groupedFixture())

	// 2_UR: three rows but the third has no Point No. 1_UL: truncated to two.
	require.Len(t, recs, 4)

	assert.Equal(t, []string{"measurement_point", "Point No", "Left_H (nm)"}, payload.Keys(recs[0]))

	mp, _ := recs[0].Get(FieldMeasurementPoint)
	assert.Equal(t, "2_UR", mp)
	mp, _ = recs[3].Get(FieldMeasurementPoint)
	assert.Equal(t, "1_UL", mp)

	v, _ := recs[3].Get("Left_H (nm)")
	assert.Equal(t, 2.5, v)
}

func TestToRecords_GroupWithoutDefiningColumn(t *testing.T) {
	raw := payload.DictOf("1_UL", payload.DictOf("a", []any{nil, int64(2)}, "b", []any{int64(3), int64(4), int64(5)}))
	recs := ToRecords(raw)
	require.Len(t, recs, 2)
	a, _ := recs[0].Get("a")
	assert.Nil(t, a)
}

func TestToRecords_ItemDefinesRows(t *testing.T) {
	raw := payload.DictOf("1_UL", payload.DictOf(
		"ITEM", []any{"MEAN", nil, "MAX"},
		"Left_H (nm)", []any{1.0, 2.0, 3.0},
	))
	recs := ToRecords(raw)
	require.Len(t, recs, 2)
	item, _ := recs[1].Get("ITEM")
	assert.Equal(t, "MAX", item)
}

func TestToRecords_Unknown(t *testing.T) {
	for _, raw := range []any{nil, "x", int64(3), payload.NewDict(), payload.DictOf("a", int64(1))} {
		recs := ToRecords(raw)
		assert.NotNil(t, recs)
		assert.Empty(t, recs)
	}
}

func TestAvailablePoints(t *testing.T) {
	assert.Equal(t, []string{"1_UL", "2_UR"}, AvailablePoints(groupedFixture()))
	assert.Equal(t, []string{"1_UL", "2_UR"}, AvailablePoints(flatFixture()))
	assert.Equal(t, []string{"3_C", "4"}, AvailablePoints([]any{
		payload.DictOf("Site", "3_C"),
		payload.DictOf("Site", int64(4)),
		payload.DictOf("Other", "x"),
		payload.DictOf("Site", "3_C"),
	}))
	assert.Equal(t, []string{}, AvailablePoints("nothing"))
}

func TestFromPayload(t *testing.T) {
	raw := payload.DictOf(
		"info", payload.DictOf("tool", "MAP608"),
		"data_status", flatFixture(),
		"summary", []any{payload.DictOf("ignored", true)},
		"data_detail", groupedFixture(),
	)

	d := FromPayload(raw)
	tool, _ := d.Information.Get("tool")
	assert.Equal(t, "MAP608", tool)
	assert.Equal(t, ShapeColumnarFlat, d.SummaryShape)
	assert.Equal(t, ShapeColumnarByGroup, d.DataShape)
	assert.Len(t, d.Summary, 3)
	assert.Len(t, d.Data, 4)
	assert.Equal(t, []string{"1_UL", "2_UR"}, d.AvailablePoints)
	assert.False(t, d.Malformed())
}

func TestFromPayload_LegacyKeys(t *testing.T) {
	raw := payload.DictOf(
		"summary", []any{payload.DictOf("Site", "5_LL")},
		"data", []any{payload.DictOf("x", int64(1))},
	)
	d := FromPayload(raw)
	assert.Len(t, d.Summary, 1)
	assert.Len(t, d.Data, 1)
	// No sites in data, so points come from the summary.
	assert.Equal(t, []string{"5_LL"}, d.AvailablePoints)
	assert.Equal(t, 0, d.Information.Len())
}

func TestFromPayload_Malformed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	before := testutil.ToFloat64(metrics.MalformedPayloadTotal.WithLabelValues("payload"))

	d := FromPayload([]any{int64(1)})
	assert.True(t, d.Malformed())
	assert.Empty(t, d.Summary)
	assert.Empty(t, d.Data)
	assert.NotNil(t, d.Information)
	assert.Equal(t, 1, logs.FilterMessage("records: payload is not a mapping").Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MalformedPayloadTotal.WithLabelValues("payload")))

	d = FromPayload(payload.DictOf("data_status", "oops"))
	assert.Empty(t, d.Summary)
	assert.Equal(t, 1, logs.FilterMessage("records: unrecognised summary shape").Len())
}

func TestProfilePoints(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []Point
		ok   bool
	}{
		{
			name: "list of mappings",
			raw:  []any{payload.DictOf("X", int64(1), "y", 2.5, "Z", nil), payload.DictOf("x", "3")},
			want: []Point{{X: 1, Y: 2.5}, {X: 3}},
			ok:   true,
		},
		{
			name: "wrapped",
			raw:  payload.DictOf("profile", []any{payload.DictOf("x", 1.0, "y", 2.0, "z", 3.0)}),
			want: []Point{{X: 1, Y: 2, Z: 3}},
			ok:   true,
		},
		{
			name: "columnar exact",
			raw:  payload.DictOf("x", []any{1.0, 2.0}, "Y", []any{3.0, 4.0, 5.0}, "z", []any{nil, "bad"}),
			want: []Point{{X: 1, Y: 3}, {X: 2, Y: 4}},
			ok:   true,
		},
		{
			name: "columnar heuristic",
			raw:  payload.DictOf("pos_x", []any{1.0}, "pos_y", []any{2.0}, "Height", []any{3.0}),
			want: []Point{{X: 1, Y: 2, Z: 3}},
			ok:   true,
		},
		{
			name: "scalar columns",
			raw:  payload.DictOf("x", 1.0, "y", 2.0, "z", 3.0),
			want: []Point{{X: 1, Y: 2, Z: 3}},
			ok:   true,
		},
		{
			name: "table",
			raw:  &payload.Table{Columns: []string{"x", "y", "z"}, Rows: [][]any{{1.0, 2.0, 3.0}, {4.0}}},
			want: []Point{{X: 1, Y: 2, Z: 3}, {X: 4}},
			ok:   true,
		},
		{
			name: "no coordinates",
			raw:  payload.DictOf("a", []any{1.0}),
			ok:   false,
		},
		{
			name: "scalar",
			raw:  "nope",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProfilePoints(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestShapeString(t *testing.T) {
	b, err := ShapeColumnarByGroup.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "columnar_by_group", string(b))
	assert.Equal(t, "unknown", Shape(42).String())
}
