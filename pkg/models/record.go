// Package models provides the data structures that flow through a
// forcetap pipeline. A Record is one extracted row keyed by field name;
// values are the string form delivered by the platform's CSV export.
package models

import "time"

// Record represents a single extracted row
type Record struct {
	// Stream is the source stream (sObject) name
	Stream string `json:"stream"`

	// Data maps field names to their extracted values
	Data map[string]string `json:"data"`

	// Metadata carries extraction provenance
	Metadata RecordMetadata `json:"metadata"`
}

// RecordMetadata carries provenance for a record
type RecordMetadata struct {
	// Source identifies the connector that produced the record
	Source string `json:"source"`

	// JobID is the bulk job the record was exported by
	JobID string `json:"job_id,omitempty"`

	// BatchID is the bulk batch within the job
	BatchID string `json:"batch_id,omitempty"`

	// ExtractedAt is when the record was read from the result stream
	ExtractedAt time.Time `json:"extracted_at"`
}

// NewRecord creates a record for the given stream with the given data
func NewRecord(stream string, data map[string]string) *Record {
	return &Record{
		Stream: stream,
		Data:   data,
		Metadata: RecordMetadata{
			ExtractedAt: time.Now().UTC(),
		},
	}
}

// Get returns the value for a field and whether it was present
func (r *Record) Get(field string) (string, bool) {
	v, ok := r.Data[field]
	return v, ok
}
