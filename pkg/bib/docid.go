package bib

import "strings"

// DocID is a typed document identifier, e.g. {ID: "RFC 1918", Type: "IETF"}.
type DocID struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Scope   string `json:"scope,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// Key returns a stable identity key for grouping. Scoped identifiers
// (scope != "") never participate in identity matching and return "".
func (d DocID) Key() string {
	if d.Scope != "" || d.ID == "" || d.Type == "" {
		return ""
	}
	return d.Type + "\x00" + d.ID
}

// Usable reports whether the identifier can serve as a primary docid.
func (d DocID) Usable() bool {
	return d.ID != "" && d.Type != "" && d.Scope == ""
}

// DocidsFromBody extracts the docid list from a raw record body. Entries
// missing an id or type are kept (callers filter via Key/Usable) so that
// validation can report on them.
func DocidsFromBody(body map[string]any) []DocID {
	raw, ok := body["docid"]
	if !ok {
		return nil
	}

	// A single docid object is accepted as well as a list of them.
	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries = []any{v}
	default:
		return nil
	}

	docids := make([]DocID, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		d := DocID{
			ID:   asString(m["id"]),
			Type: asString(m["type"]),
		}
		if s, ok := m["scope"].(string); ok {
			d.Scope = s
		}
		if p, ok := m["primary"].(bool); ok {
			d.Primary = p
		}
		docids = append(docids, d)
	}
	return docids
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// NormalizeID lowercases an identifier and strips punctuation and spacing,
// for fuzzy comparison between legacy anchors and indexed identifiers.
func NormalizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch r {
		case ' ', '.', '-', '_', '/', ':':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
