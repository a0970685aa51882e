// Package naming decodes AFM measurement file names into canonical keys.
//
// A measurement file name has the shape
//
//	#<date>#<recipe>#<lot_id>[_time|[time]]#<slot>[_<measured_info>]#.<ext>
//
// for example "#250609#FSOXCMP_DISHING_9PT#T7HQR42TA_250709#21_1#.csv".
package naming

import (
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMeasuredInfo is used when the slot segment carries no measured info.
const DefaultMeasuredInfo = "standard"

const minSegments = 4

// ErrUnparsable is returned when a file name has fewer than four segments.
var ErrUnparsable = eris.New("naming: unparsable filename")

// knownExts are stripped from the end of a file name before splitting.
var knownExts = []string{".csv", ".pkl"}

// Key is the canonical identity derived from a measurement file name.
type Key struct {
	Filename      string `json:"filename" yaml:"filename"`
	Date          string `json:"date" yaml:"date"`
	FormattedDate string `json:"formatted_date" yaml:"formatted_date"`
	RecipeName    string `json:"recipe_name" yaml:"recipe_name"`
	LotID         string `json:"lot_id" yaml:"lot_id"`
	SlotNumber    string `json:"slot_number" yaml:"slot_number"`
	MeasuredInfo  string `json:"measured_info" yaml:"measured_info"`

	// Fallbacks records which fields were filled by a default instead of
	// being read from the name.
	Fallbacks Fallbacks `json:"-" yaml:"-"`
}

// Fallbacks flags best-effort fields in a Key.
type Fallbacks struct {
	MeasuredInfo bool // slot segment had no "_<info>" suffix
	Date         bool // date is not a valid YYMMDD, FormattedDate is the raw date
}

// Any reports whether any field of the key was defaulted.
func (f Fallbacks) Any() bool {
	return f.MeasuredInfo || f.Date
}

// StripExt removes trailing .csv/.pkl extensions, repeatedly.
func StripExt(name string) string {
	for {
		trimmed := name
		for _, ext := range knownExts {
			trimmed = strings.TrimSuffix(trimmed, ext)
		}
		if trimmed == name {
			return name
		}
		name = trimmed
	}
}

// Parse decodes a measurement file name. It never panics; names with fewer
// than four non-empty '#' segments return an error wrapping ErrUnparsable.
func Parse(filename string) (Key, error) {
	var parts []string
	for _, p := range strings.Split(StripExt(filename), "#") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < minSegments {
		return Key{}, eris.Wrapf(ErrUnparsable, "%q has %d segments", filename, len(parts))
	}

	key := Key{
		Filename:   filename,
		Date:       parts[0],
		RecipeName: parts[1],
		LotID:      lotID(parts[2]),
	}

	slot, info, ok := strings.Cut(parts[3], "_")
	key.SlotNumber = slot
	if ok {
		key.MeasuredInfo = info
	} else {
		key.MeasuredInfo = DefaultMeasuredInfo
		key.Fallbacks.MeasuredInfo = true
	}

	formatted, ok := FormatDate(key.Date)
	key.FormattedDate = formatted
	key.Fallbacks.Date = !ok

	return key, nil
}

// lotID strips a trailing "[time]" or "_time" suffix from the lot segment.
func lotID(segment string) string {
	if i := strings.Index(segment, "["); i >= 0 {
		return segment[:i]
	}
	if i := strings.Index(segment, "_"); i >= 0 {
		return segment[:i]
	}
	return segment
}

// FormatDate renders a YYMMDD date as YYYY-MM-DD by slicing the digits.
// The calendar is not checked, so "250631" gives "2025-06-31". A date that
// is not six digits is returned unchanged with ok=false.
func FormatDate(date string) (formatted string, ok bool) {
	if len(date) != 6 {
		return date, false
	}
	for _, c := range date {
		if c < '0' || c > '9' {
			return date, false
		}
	}
	return "20" + date[:2] + "-" + date[2:4] + "-" + date[4:], true
}

// Canonical reassembles the key as "#date#recipe#lot#slot[_info]#". The time
// suffix of the lot segment is not part of the key and is not reproduced.
func (k Key) Canonical() string {
	slot := k.SlotNumber
	if !k.Fallbacks.MeasuredInfo {
		slot += "_" + k.MeasuredInfo
	}
	return "#" + strings.Join([]string{k.Date, k.RecipeName, k.LotID, slot}, "#") + "#"
}

// GroupKey returns the "<lot>_<slot>_<info>" identifier used by older clients.
func (k Key) GroupKey() string {
	return k.LotID + "_" + k.SlotNumber + "_" + k.MeasuredInfo
}

// Identity is the tuple two keys must share to refer to the same measurement.
type Identity struct {
	LotID        string
	SlotNumber   string
	MeasuredInfo string
	RecipeName   string
}

// Identity returns the key's matching tuple.
func (k Key) Identity() Identity {
	return Identity{
		LotID:        k.LotID,
		SlotNumber:   k.SlotNumber,
		MeasuredInfo: k.MeasuredInfo,
		RecipeName:   k.RecipeName,
	}
}

// SameMeasurement reports whether two keys share lot, slot, measured info
// and recipe.
func (k Key) SameMeasurement(other Key) bool {
	return k.Identity() == other.Identity()
}
