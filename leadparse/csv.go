package leadparse

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/nurturemesh/core"
)

// CSVParser reads a CSV export with a header row. Recognized columns:
// id, first_name, last_name, email, company, job_title, industry,
// pain_points, tags. List-valued columns use ';' as the separator.
// Unknown columns are ignored; rows without an email are skipped.
type CSVParser struct{}

// Parse reads all records from r.
func (p *CSVParser) Parse(r io.Reader) ([]core.Lead, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["email"]; !ok {
		return nil, fmt.Errorf("csv source missing required column %q", "email")
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var leads []core.Lead
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if field(row, "email") == "" {
			continue
		}
		leads = append(leads, normalize(core.Lead{
			ID:         field(row, "id"),
			FirstName:  field(row, "first_name"),
			LastName:   field(row, "last_name"),
			Email:      field(row, "email"),
			Company:    field(row, "company"),
			JobTitle:   field(row, "job_title"),
			Industry:   field(row, "industry"),
			PainPoints: splitList(field(row, "pain_points")),
			Tags:       splitList(field(row, "tags")),
		}))
	}
	return leads, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Interface compliance (compile-time assertion)
var _ Parser = (*CSVParser)(nil)
