// Package schema translates platform field types into portable schema
// properties. The translation is a closed enumeration: every known
// platform type label maps to exactly one schema kind, and an unknown
// label is a hard error rather than a silent fallthrough.
package schema

import (
	gojson "github.com/goccy/go-json"

	"github.com/datastreamhq/forcetap/pkg/errors"
)

// Kind is the closed set of schema shapes a platform type can map to.
type Kind int

const (
	// KindString covers id, picklist, textarea, and the other
	// string-like platform types
	KindString Kind = iota
	// KindDateTime is a string with date-time format
	KindDateTime
	// KindBoolean is a boolean
	KindBoolean
	// KindNumber covers double, currency, and percent
	KindNumber
	// KindInteger is an integer
	KindInteger
	// KindAny carries no type constraint (platform anyType)
	KindAny
	// KindUnsupported marks fields that cannot be extracted (base64)
	KindUnsupported
)

// stringTypes are the platform labels that map to a plain string.
// email and complexvalue are carried on trust from upstream metadata;
// they have not been observed in exports.
var stringTypes = map[string]struct{}{
	"id":              {},
	"string":          {},
	"picklist":        {},
	"textarea":        {},
	"phone":           {},
	"url":             {},
	"reference":       {},
	"multipicklist":   {},
	"combobox":        {},
	"encryptedstring": {},
	"email":           {},
	"complexvalue":    {},
	// address is a compound field approximated as a string
	"address": {},
	// time has no portable representation beyond its string form
	"time": {},
}

var numberTypes = map[string]struct{}{
	"double":   {},
	"currency": {},
	"percent":  {},
}

var dateTypes = map[string]struct{}{
	"datetime": {},
	"date":     {},
}

// Translate maps a platform field-type label to its schema kind.
// Unknown labels fail fast with an unsupported-type error.
func Translate(fieldType string) (Kind, error) {
	if _, ok := stringTypes[fieldType]; ok {
		return KindString, nil
	}
	if _, ok := dateTypes[fieldType]; ok {
		return KindDateTime, nil
	}
	if _, ok := numberTypes[fieldType]; ok {
		return KindNumber, nil
	}
	switch fieldType {
	case "boolean":
		return KindBoolean, nil
	case "int":
		return KindInteger, nil
	case "anyType":
		return KindAny, nil
	case "base64":
		return KindUnsupported, nil
	}
	return 0, errors.Newf(errors.ErrorTypeUnsupportedType, "found unsupported type: %s", fieldType)
}

// Property is a portable JSON-schema-like description of one field.
type Property struct {
	// Types holds the allowed JSON types; a single entry marshals as
	// a scalar, multiple entries as an array
	Types TypeList `json:"type,omitempty"`

	// Format carries "date-time" for temporal fields
	Format string `json:"format,omitempty"`

	// Inclusion is "available", "automatic", or "unsupported"
	Inclusion string `json:"inclusion,omitempty"`

	// Selected mirrors the catalog selection flag
	Selected bool `json:"selected,omitempty"`
}

// TypeList marshals as a bare string when it has one element and as an
// array otherwise, matching the JSON-schema shorthand.
type TypeList []string

// MarshalJSON implements json.Marshaler
func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return gojson.Marshal(t[0])
	}
	return gojson.Marshal([]string(t))
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TypeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := gojson.Unmarshal(data, &single); err == nil {
		*t = TypeList{single}
		return nil
	}
	var many []string
	if err := gojson.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = TypeList(many)
	return nil
}

// ToProperty translates a platform field into a schema property. When
// the field is nillable the type widens to allow null alongside the
// mapped type. anyType yields no constraint at all, and base64 yields
// an unsupported inclusion regardless of the inclusion passed in.
func ToProperty(fieldType string, nillable bool, inclusion string, selected bool) (Property, error) {
	kind, err := Translate(fieldType)
	if err != nil {
		return Property{}, err
	}

	prop := Property{
		Inclusion: inclusion,
		Selected:  selected,
	}

	switch kind {
	case KindString:
		prop.Types = TypeList{"string"}
	case KindDateTime:
		prop.Types = TypeList{"string"}
		prop.Format = "date-time"
	case KindBoolean:
		prop.Types = TypeList{"boolean"}
	case KindNumber:
		prop.Types = TypeList{"number"}
	case KindInteger:
		prop.Types = TypeList{"integer"}
	case KindAny:
		// No type constraint
		return prop, nil
	case KindUnsupported:
		prop.Inclusion = "unsupported"
		return prop, nil
	}

	if nillable {
		prop.Types = append(TypeList{"null"}, prop.Types...)
	}

	return prop, nil
}
