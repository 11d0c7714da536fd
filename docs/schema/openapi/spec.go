// Package openapi embeds the OpenAPI document for the unitledger HTTP API.
package openapi

import _ "embed"

// HTTPSpec contains the OpenAPI 3 document served at /openapi.yaml.
//
//go:embed unitledger.yaml
var HTTPSpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), HTTPSpec...)
}
