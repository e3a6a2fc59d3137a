// Package leadparse turns raw lead sources into normalized Lead records:
// CSV exports with a header row and JSON record files. Parsed records are
// the interchange format consumed by the nurture command; parsing is an
// ingestion collaborator and performs no nurturing decisions itself.
package leadparse
