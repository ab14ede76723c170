package salesforce

import (
	"context"

	gojson "github.com/goccy/go-json"

	"github.com/datastreamhq/forcetap/pkg/errors"
)

// SObjectSummary is one entry of the global describe listing.
type SObjectSummary struct {
	Name      string `json:"name"`
	Queryable bool   `json:"queryable"`
}

// GlobalDescribe lists the org's sObjects.
type GlobalDescribe struct {
	SObjects []SObjectSummary `json:"sobjects"`
}

// FieldDescribe is the slice of a field's describe metadata the schema
// translation consumes.
type FieldDescribe struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nillable bool   `json:"nillable"`
}

// ObjectDescribe holds one sObject's field metadata.
type ObjectDescribe struct {
	Name   string          `json:"name"`
	Fields []FieldDescribe `json:"fields"`
}

// DescribeGlobal lists the sObjects available in the org.
func (c *Client) DescribeGlobal(ctx context.Context) (*GlobalDescribe, error) {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.dataURL(instanceURL, "sobjects"), restHeaders(accessToken))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var global GlobalDescribe
	if err := gojson.NewDecoder(resp.Body).Decode(&global); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode global describe")
	}
	return &global, nil
}

// DescribeObject fetches the field metadata for one sObject.
func (c *Client) DescribeObject(ctx context.Context, name string) (*ObjectDescribe, error) {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.dataURL(instanceURL, "sobjects/"+name+"/describe"), restHeaders(accessToken))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var describe ObjectDescribe
	if err := gojson.NewDecoder(resp.Body).Decode(&describe); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "failed to decode describe for %s", name)
	}
	return &describe, nil
}
