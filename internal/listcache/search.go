package listcache

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/afm-api/internal/naming"
)

// Search returns the entries whose lot, recipe, measured info, formatted
// date, slot or file name contains query, ignoring case. A blank query
// matches everything.
func Search(entries []Entry, query string) []Entry {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return entries
	}

	out := make([]Entry, 0)
	for _, e := range entries {
		for _, field := range []string{e.LotID, e.RecipeName, e.MeasuredInfo, e.FormattedDate, e.SlotNumber, e.Filename} {
			if strings.Contains(fold.String(field), q) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Find returns the entry listed under filename, comparing names without
// their extensions.
func Find(entries []Entry, filename string) (Entry, bool) {
	want := strings.TrimSpace(filename)
	for _, e := range entries {
		if e.Filename == want || naming.StripExt(e.Filename) == naming.StripExt(want) {
			return e, true
		}
	}
	return Entry{}, false
}
