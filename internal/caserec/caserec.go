// Package caserec defines the case record model and parses CRM case
// exports into validated records.
package caserec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// Priority labels accepted from exports. Anything else is normalized
// to PriorityDefault.
const (
	PriorityHigh    = "High"
	PriorityNormal  = "Normal"
	PriorityMedium  = "Medium"
	PriorityLow     = "Low"
	PriorityDefault = PriorityMedium
)

// Record is one open case from a CRM export. Records are immutable
// once parsed; ownership does not change within a processing run.
type Record struct {
	CaseID    string    `json:"case_id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	Priority  string    `json:"priority"`
}

// AgeDays reports the whole days elapsed between the record's creation
// and now.
func (r Record) AgeDays(now time.Time) int {
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// Report describes what the parser dropped or repaired while reading
// an export. It is informational; the caller decides whether to log or
// reject based on it.
type Report struct {
	Rows             int `json:"rows"`
	DroppedRows      int `json:"dropped_rows"`
	DefaultedColumns int `json:"defaulted_columns"`
	FixedPriorities  int `json:"fixed_priorities"`
}

// columnAliases maps normalized export column names to internal names.
// CRM exports are inconsistent about these.
var columnAliases = map[string]string{
	"(do_not_modify)_case": "case_id",
	"case":                 "case_id",
	"case_id":              "case_id",
	"case_title":           "title",
	"title":                "title",
	"owner":                "owner",
	"owner_name":           "owner",
	"created_on":           "created_at",
	"created_date":         "created_at",
	"created_at":           "created_at",
	"priority":             "priority",
}

var validPriorities = map[string]bool{
	PriorityHigh:   true,
	PriorityNormal: true,
	PriorityMedium: true,
	PriorityLow:    true,
}

// dateLayouts are tried in order when parsing created-at values.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02 Jan 2006",
	"01/02/2006",
}

// ParseCSV reads a CRM case export. Column names are normalized
// (lowercased, spaces to underscores) and mapped through columnAliases,
// so exports from different CRM views parse the same way. Rows missing
// a case ID or owner are dropped and counted in the report rather than
// failing the whole export. The priority column is optional and
// normalized to the known label set.
func ParseCSV(r io.Reader) ([]Record, *Report, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty export: no header row")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{}
	for i, col := range header {
		norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
		if name, ok := columnAliases[norm]; ok {
			if _, dup := idx[name]; !dup {
				idx[name] = i
			}
		}
	}

	for _, required := range []string{"case_id", "title", "owner", "created_at"} {
		if _, ok := idx[required]; !ok {
			return nil, nil, fmt.Errorf("export is missing required column %q (found: %s)",
				required, strings.Join(header, ", "))
		}
	}

	report := &Report{}
	_, hasPriority := idx["priority"]
	if !hasPriority {
		report.DefaultedColumns++
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", report.Rows+2, err)
		}
		report.Rows++

		rec := Record{
			CaseID: field(row, idx, "case_id"),
			Title:  field(row, idx, "title"),
			Owner:  field(row, idx, "owner"),
		}
		if rec.CaseID == "" || rec.Owner == "" {
			report.DroppedRows++
			continue
		}

		created, err := parseDate(field(row, idx, "created_at"))
		if err != nil {
			report.DroppedRows++
			continue
		}
		rec.CreatedAt = created

		rec.Priority = PriorityDefault
		if hasPriority {
			p := normalizePriority(field(row, idx, "priority"))
			if !validPriorities[p] {
				report.FixedPriorities++
				p = PriorityDefault
			}
			rec.Priority = p
		}

		records = append(records, rec)
	}

	return records, report, nil
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// normalizePriority capitalizes the first letter and lowercases the
// rest, matching how exports mangle the label casing.
func normalizePriority(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return PriorityDefault
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
