// Package openapi embeds the estate API OpenAPI document.
package openapi

import _ "embed"

// EstateAPISpec is the OpenAPI 3 description of the /api/v1 surface.
//
//go:embed estate-api.yaml
var EstateAPISpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), EstateAPISpec...)
}
