package leadparse

import (
	"fmt"
	"io"

	"github.com/hupe1980/nurturemesh/core"
)

// SourceType identifies the format of a lead source.
type SourceType string

const (
	// SourceCSV is a comma-separated export with a header row.
	SourceCSV SourceType = "csv"
	// SourceJSON is a JSON array of lead records.
	SourceJSON SourceType = "json"
)

// Parser extracts normalized leads from a raw source.
type Parser interface {
	Parse(r io.Reader) ([]core.Lead, error)
}

// New returns the parser for the given source type.
func New(sourceType SourceType) (Parser, error) {
	switch sourceType {
	case SourceCSV:
		return &CSVParser{}, nil
	case SourceJSON:
		return &JSONParser{}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
}

// normalize fills defaults shared by all parsers: generated IDs for
// records without a stable external id and the new stage for records
// without one.
func normalize(lead core.Lead) core.Lead {
	if lead.ID == "" {
		lead.ID = core.NewID()
	}
	if lead.Stage == "" {
		lead.Stage = core.StageNew
	}
	return lead
}
