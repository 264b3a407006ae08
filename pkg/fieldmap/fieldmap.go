// Package fieldmap helps fill in an excel_field_mapping form: it lists the
// data fields of a doctype and ranks them against what the user typed.
package fieldmap

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cipl-app/xlimport/pkg/frappe"
)

// layoutTypes hold no data and can never be a mapping target.
var layoutTypes = map[string]bool{
	"Section Break": true,
	"Column Break":  true,
	"Tab Break":     true,
	"HTML":          true,
	"Heading":       true,
	"Button":        true,
	"Fold":          true,
	"Image":         true,
	"Table":         true,
}

var titleCaser = cases.Title(language.English)

// Field is a candidate doctype_field_name.
type Field struct {
	Name     string
	Label    string
	Type     string
	Required bool
	Unique   bool
}

// Display returns the label, or a title-cased fieldname when the field has none.
func (f Field) Display() string {
	if f.Label != "" {
		return f.Label
	}
	return Humanize(f.Name)
}

// Humanize turns a fieldname such as "customer_name" into "Customer Name".
func Humanize(fieldname string) string {
	return titleCaser.String(strings.ReplaceAll(fieldname, "_", " "))
}

// Targets keeps the fields that can receive a column value, in form order.
func Targets(fields []frappe.DocField) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Fieldname == "" || layoutTypes[f.Fieldtype] {
			continue
		}
		out = append(out, Field{
			Name:     f.Fieldname,
			Label:    f.Label,
			Type:     f.Fieldtype,
			Required: f.Reqd == 1,
			Unique:   f.Unique == 1,
		})
	}
	return out
}

// Suggest ranks fields against query, matching either the fieldname or the
// label. An empty query returns fields unchanged. At most limit results are
// returned; limit <= 0 means no limit.
func Suggest(query string, fields []Field, limit int) []Field {
	query = strings.TrimSpace(query)
	if query == "" {
		return clip(fields, limit)
	}

	// best rank distance per field, across both the name and the label
	best := make(map[int]int)
	words := make([]string, 0, 2*len(fields))
	owner := make([]int, 0, 2*len(fields))
	for i, f := range fields {
		words = append(words, f.Name)
		owner = append(owner, i)
		if f.Label != "" {
			words = append(words, f.Label)
			owner = append(owner, i)
		}
	}
	for _, r := range fuzzy.RankFindNormalizedFold(query, words) {
		i := owner[r.OriginalIndex]
		if d, ok := best[i]; !ok || r.Distance < d {
			best[i] = r.Distance
		}
	}

	idx := make([]int, 0, len(best))
	for i := range best {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if best[idx[a]] != best[idx[b]] {
			return best[idx[a]] < best[idx[b]]
		}
		return idx[a] < idx[b]
	})

	out := make([]Field, 0, len(idx))
	for _, i := range idx {
		out = append(out, fields[i])
	}
	return clip(out, limit)
}

// Match pairs each Excel column header with its best field, for a first
// draft of a mapping. Columns with no candidate map to "".
func Match(headers []string, fields []Field) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if h == "" {
			continue
		}
		out[h] = ""
		if s := Suggest(h, fields, 1); len(s) == 1 {
			out[h] = s[0].Name
		}
	}
	return out
}

func clip(fields []Field, limit int) []Field {
	if limit > 0 && len(fields) > limit {
		return fields[:limit]
	}
	return fields
}
