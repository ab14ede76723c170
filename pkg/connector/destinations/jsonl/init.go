package jsonl

import (
	"github.com/datastreamhq/forcetap/pkg/connector/registry"
)

// init registers the JSON Lines destination connector
func init() {
	if err := registry.RegisterDestination("jsonl", NewJSONLDestination); err != nil {
		panic("failed to register jsonl destination: " + err.Error())
	}
}
