package leadparse

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hupe1980/nurturemesh/core"
)

// JSONParser reads a JSON array of lead records in the interchange format:
// stable id, contact fields and optional prior-history entries.
type JSONParser struct{}

// Parse decodes all records from r.
func (p *JSONParser) Parse(r io.Reader) ([]core.Lead, error) {
	var records []core.Lead
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode lead records: %w", err)
	}
	out := make([]core.Lead, len(records))
	for i, rec := range records {
		out[i] = normalize(rec)
	}
	return out, nil
}

// Write encodes leads in the interchange format, the inverse of Parse.
func Write(w io.Writer, leads []core.Lead) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(leads)
}

// Interface compliance (compile-time assertion)
var _ Parser = (*JSONParser)(nil)
