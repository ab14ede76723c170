// Package catalog defines the stream metadata and replication state the
// extraction core consumes. Catalog entries are read-only to the core;
// the state map is read for bookmarks and advanced by the caller after
// it has consumed the streamed records.
package catalog

// Inclusion controls whether a field participates in extraction.
type Inclusion string

const (
	// InclusionAvailable means the field is extracted only when selected
	InclusionAvailable Inclusion = "available"
	// InclusionAutomatic means the field is always extracted
	InclusionAutomatic Inclusion = "automatic"
	// InclusionUnsupported means the field cannot be extracted
	InclusionUnsupported Inclusion = "unsupported"
)

// Property is one field of a stream's schema.
type Property struct {
	Name      string    `json:"name"`
	Selected  bool      `json:"selected"`
	Inclusion Inclusion `json:"inclusion"`
}

// Entry describes one stream (sObject) to extract.
type Entry struct {
	// Stream is the sObject API name
	Stream string `json:"stream"`

	// Properties holds the stream's fields in catalog-declared order
	Properties []Property `json:"properties"`

	// ReplicationKey is the field used for incremental extraction;
	// empty means every run is a full extract
	ReplicationKey string `json:"replication_key,omitempty"`
}

// SelectedFields returns the fields marked selected, unioned with fields
// marked automatic, preserving catalog-declared order. Unsupported
// fields are never returned even if selected.
func (e *Entry) SelectedFields() []string {
	fields := make([]string, 0, len(e.Properties))
	for _, p := range e.Properties {
		if p.Inclusion == InclusionUnsupported {
			continue
		}
		if p.Selected || p.Inclusion == InclusionAutomatic {
			fields = append(fields, p.Name)
		}
	}
	return fields
}

// State maps stream name to replication key to the last-seen bookmark
// value. The core reads bookmarks; writing new ones is the caller's
// responsibility after consuming streamed records.
type State map[string]map[string]string

// Bookmark returns the bookmark for a stream's replication key and
// whether one exists.
func (s State) Bookmark(stream, replicationKey string) (string, bool) {
	if s == nil {
		return "", false
	}
	keys, ok := s[stream]
	if !ok {
		return "", false
	}
	v, ok := keys[replicationKey]
	return v, ok && v != ""
}

// SetBookmark records a bookmark value, creating the nested map as
// needed. Provided for callers; the extraction core never calls it.
func (s State) SetBookmark(stream, replicationKey, value string) {
	keys, ok := s[stream]
	if !ok {
		keys = make(map[string]string)
		s[stream] = keys
	}
	keys[replicationKey] = value
}
