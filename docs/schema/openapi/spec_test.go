package openapi

import (
	"bytes"
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSpecReturnsCopyAndMatchesFile(t *testing.T) {
	want, err := os.ReadFile("citybuilder.yaml")
	if err != nil {
		t.Fatalf("read citybuilder.yaml: %v", err)
	}

	spec := Spec()
	if !bytes.Equal(spec, want) {
		t.Fatalf("Spec does not match embedded document")
	}
	spec[0] ^= 0xFF
	if bytes.Equal(spec, Document) {
		t.Fatalf("Spec did not return a copy")
	}
	if !bytes.Equal(Spec(), want) {
		t.Fatalf("Spec mutation leaked into embedded content")
	}
}

func TestDocumentDescribesEveryRoute(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(Document, &doc); err != nil {
		t.Fatalf("parse document: %v", err)
	}
	if doc.OpenAPI == "" {
		t.Fatal("missing openapi version")
	}
	routes := map[string][]string{
		"/healthz":                             {"get"},
		"/api/v1/houses":                       {"get", "post"},
		"/api/v1/houses/reorder":               {"post"},
		"/api/v1/houses/{id}":                  {"get", "patch", "delete"},
		"/api/v1/houses/{id}/duplicate":        {"post"},
		"/api/v1/houses/{id}/floors":           {"put"},
		"/api/v1/houses/{id}/floors/{floorId}": {"put"},
		"/api/v1/palette":                      {"get"},
		"/api/v1/weather":                      {"get"},
		"/api/v1/weather/cities":               {"get"},
		"/api/v1/city.png":                     {"get"},
		"/api/v1/exports":                      {"get", "post"},
		"/api/v1/exports/{id}":                 {"get"},
		"/api/v1/openapi.yaml":                 {"get"},
	}
	for path, methods := range routes {
		item, ok := doc.Paths[path]
		if !ok {
			t.Errorf("path %s not documented", path)
			continue
		}
		for _, m := range methods {
			if _, ok := item[m]; !ok {
				t.Errorf("%s %s not documented", m, path)
			}
		}
	}
}
