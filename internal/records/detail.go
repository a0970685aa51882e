package records

import (
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/payload"
)

// Payload keys of a measurement data file. Newer files use data_status and
// data_detail; older ones summary and data.
const (
	KeyInfo       = "info"
	KeyDataStatus = "data_status"
	KeySummary    = "summary"
	KeyDataDetail = "data_detail"
	KeyData       = "data"
)

// Detail is the normalized content of a measurement data file.
type Detail struct {
	Information     *payload.Dict `json:"information"`
	Summary         []Record      `json:"summary"`
	Data            []Record      `json:"data"`
	AvailablePoints []string      `json:"available_points"`

	SummaryShape Shape `json:"-"`
	DataShape    Shape `json:"-"`
}

// Malformed reports whether neither section had a recognised shape.
func (d Detail) Malformed() bool {
	return d.SummaryShape == ShapeUnknown && d.DataShape == ShapeUnknown
}

// FromPayload normalizes a decoded measurement data file. It never fails:
// unexpected content produces empty sections and a warning.
func FromPayload(raw any) Detail {
	log := zap.L().With(zap.String("component", "records"))

	d := Detail{
		Information:     payload.NewDict(),
		Summary:         []Record{},
		Data:            []Record{},
		AvailablePoints: []string{},
	}

	root, ok := raw.(*payload.Dict)
	if !ok {
		metrics.MalformedPayloadTotal.WithLabelValues("payload").Inc()
		log.Warn("records: payload is not a mapping", zap.String("type", typeName(raw)))
		return d
	}

	if info, ok := root.Get(KeyInfo); ok {
		if m, ok := info.(*payload.Dict); ok {
			d.Information = m
		}
	}

	summary, hasSummary := first(root, KeyDataStatus, KeySummary)
	detail, hasDetail := first(root, KeyDataDetail, KeyData)

	d.SummaryShape = Classify(summary)
	d.DataShape = Classify(detail)
	d.Summary = ToRecords(summary)
	d.Data = ToRecords(detail)

	if hasSummary && d.SummaryShape == ShapeUnknown {
		metrics.MalformedPayloadTotal.WithLabelValues("summary").Inc()
		log.Warn("records: unrecognised summary shape", zap.String("type", typeName(summary)))
	}
	if hasDetail && d.DataShape == ShapeUnknown {
		metrics.MalformedPayloadTotal.WithLabelValues("data").Inc()
		log.Warn("records: unrecognised data shape", zap.String("type", typeName(detail)))
	}

	d.AvailablePoints = AvailablePoints(detail)
	if len(d.AvailablePoints) == 0 {
		d.AvailablePoints = AvailablePoints(summary)
	}
	return d
}

// first returns the value of the first present key.
func first(d *payload.Dict, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := d.Get(k); ok {
			return v, true
		}
	}
	return nil, false
}

func typeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case *payload.Dict:
		return "mapping"
	case *payload.Table:
		return "table"
	case []any:
		return "list"
	case string:
		return "string"
	case int64, float64:
		return "number"
	case bool:
		return "bool"
	case *payload.Object:
		return "object " + x.Class
	default:
		return "other"
	}
}
