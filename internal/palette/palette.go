// Package palette holds the fixed set of named house colors.
package palette

import "citybuilder/pkg/domain"

// Entry pairs a palette key with its display value.
type Entry struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

var entries = []Entry{
	{Name: "Orange", Hex: "#FFA500"},
	{Name: "Alizarin", Hex: "#E32636"},
	{Name: "Amber", Hex: "#FFBF00"},
	{Name: "Amethyst", Hex: "#9966CC"},
	{Name: "Azure", Hex: "#007FFF"},
	{Name: "Emerald", Hex: "#50C878"},
	{Name: "Jade", Hex: "#00A86B"},
	{Name: "Sapphire", Hex: "#0F52BA"},
	{Name: "Slate", Hex: "#708090"},
	{Name: "Teal", Hex: "#008080"},
}

var byName = func() map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Hex
	}
	return m
}()

// Lookup returns the display value for a palette key.
func Lookup(name string) (string, bool) {
	hex, ok := byName[name]
	return hex, ok
}

// Resolve returns the display value for name, falling back to the default
// house color for keys outside the palette.
func Resolve(name string) string {
	if hex, ok := byName[name]; ok {
		return hex
	}
	return byName[domain.DefaultColor]
}

// Names lists the palette keys in display order.
func Names() []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// Entries returns a copy of the palette in display order.
func Entries() []Entry {
	return append([]Entry(nil), entries...)
}
