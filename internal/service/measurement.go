package service

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/afm-api/internal/metrics"
	"github.com/sells-group/afm-api/internal/records"
	"github.com/sells-group/afm-api/internal/resolve"
)

// Detail is the normalized content of one measurement.
type Detail struct {
	Filename       string `json:"filename"`
	Tool           string `json:"tool"`
	PickleFilename string `json:"pickle_filename"`

	records.Detail
}

// Detail loads and normalizes the data pickle of filename.
func (s *Service) Detail(toolName, filename string) (*Detail, error) {
	tool, err := s.Tool(toolName)
	if err != nil {
		return nil, err
	}
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	path, err := s.resolver.DataFile(tool, filename)
	if err != nil {
		return nil, err
	}
	raw, err := s.payloads.Load(path)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Filename:       filename,
		Tool:           tool.Name,
		PickleFilename: filepath.Base(path),
		Detail:         records.FromPayload(raw),
	}
	s.log.Debug("measurement loaded",
		zap.String("tool", tool.Name),
		zap.String("filename", filename),
		zap.Stringer("summary_shape", d.SummaryShape),
		zap.Stringer("data_shape", d.DataShape),
		zap.Int("summary", len(d.Summary)),
		zap.Int("data", len(d.Data)),
	)
	return d, nil
}

// Profile is the height profile of one measurement point.
type Profile struct {
	Points []records.Point `json:"points"`
	Match  resolve.Match   `json:"match"`
}

// Profile resolves and decodes the profile pickle of a point. A payload
// with no coordinate layout yields no points.
func (s *Service) Profile(toolName, filename string, sel resolve.SiteSelector) (*Profile, error) {
	tool, err := s.Tool(toolName)
	if err != nil {
		return nil, err
	}
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	m, err := s.resolver.Point(tool, filename, sel, resolve.KindProfile)
	if err != nil {
		return nil, err
	}
	raw, err := s.payloads.Load(m.Path)
	if err != nil {
		return nil, err
	}

	points, ok := records.ProfilePoints(raw)
	if !ok {
		metrics.MalformedPayloadTotal.WithLabelValues("profile").Inc()
		s.log.Warn("profile payload has no coordinate layout",
			zap.String("tool", tool.Name),
			zap.String("path", m.Path),
		)
		points = []records.Point{}
	}
	return &Profile{Points: points, Match: m}, nil
}

// PointAvailability reports which per-point files resolve.
type PointAvailability struct {
	Point   string `json:"point"`
	Profile string `json:"profile,omitempty"`
	Image   string `json:"image,omitempty"`

	HasProfile bool     `json:"has_profile"`
	HasImage   bool     `json:"has_image"`
	Shadowed   []string `json:"shadowed,omitempty"`
}

// Availability lists the files backing one measurement.
type Availability struct {
	Filename         string              `json:"filename"`
	Tool             string              `json:"tool"`
	PickleDataExists bool                `json:"pickle_data_exists"`
	PickleFilename   string              `json:"pickle_filename,omitempty"`
	Points           []PointAvailability `json:"points"`
}

// Availability checks the data pickle of filename and, for every point it
// lists, whether a profile and an image resolve. Every candidate is probed
// so shadowed duplicates are listed per point. A missing pickle is reported,
// not returned as an error.
func (s *Service) Availability(toolName, filename string) (*Availability, error) {
	tool, err := s.Tool(toolName)
	if err != nil {
		return nil, err
	}
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	av := &Availability{Filename: filename, Tool: tool.Name, Points: []PointAvailability{}}

	path, err := s.resolver.DataFile(tool, filename)
	if eris.Is(err, resolve.ErrNotFound) {
		return av, nil
	}
	if err != nil {
		return nil, err
	}
	av.PickleDataExists = true
	av.PickleFilename = filepath.Base(path)

	raw, err := s.payloads.Load(path)
	if err != nil {
		return nil, err
	}
	detail := records.FromPayload(raw)

	for _, point := range detail.AvailablePoints {
		pa := PointAvailability{Point: point}
		sel := resolve.SiteSelector{SiteID: point}
		for _, kind := range []resolve.Kind{resolve.KindProfile, resolve.KindImage} {
			m, err := s.resolver.PointAudited(tool, filename, sel, kind)
			if eris.Is(err, resolve.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			pa.Shadowed = append(pa.Shadowed, m.Shadowed...)
			if kind == resolve.KindProfile {
				pa.HasProfile, pa.Profile = true, m.Name
			} else {
				pa.HasImage, pa.Image = true, m.Name
			}
		}
		av.Points = append(av.Points, pa)
	}
	return av, nil
}
