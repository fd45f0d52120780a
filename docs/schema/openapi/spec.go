// Package openapi embeds the OpenAPI description of the City Builder HTTP
// API so the server can publish it.
package openapi

import _ "embed"

// Document is the OpenAPI YAML for the HTTP API.
//
//go:embed citybuilder.yaml
var Document []byte

// Spec returns a copy of the embedded document.
func Spec() []byte {
	return append([]byte(nil), Document...)
}
