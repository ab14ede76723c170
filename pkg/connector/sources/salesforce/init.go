package salesforce

import (
	"github.com/datastreamhq/forcetap/pkg/connector/registry"
)

// init registers the Salesforce source connector
func init() {
	if err := registry.RegisterSource("salesforce", NewSalesforceSource); err != nil {
		panic("failed to register salesforce source: " + err.Error())
	}
}
