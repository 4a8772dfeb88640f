package bib

import (
	"encoding/json"
	"fmt"
)

// Title is one title variant of a document.
type Title struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	Format  string `json:"format,omitempty"`
}

// Date is a typed document date, e.g. {Type: "published", Value: "1996-02"}.
type Date struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Link is an external URL attached to a document.
type Link struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// VersionInfo carries the draft revision for versioned series
// (Internet-Drafts).
type VersionInfo struct {
	Draft string `json:"draft,omitempty"`
}

// Item is the structured view of a bibliographic record body. Known fields
// are typed; everything else is preserved verbatim in Extras so merged
// bodies keep data the struct does not model.
type Item struct {
	Type    string        `json:"type,omitempty"`
	Docid   []DocID       `json:"docid,omitempty"`
	Title   []Title       `json:"title,omitempty"`
	Date    []Date        `json:"date,omitempty"`
	Link    []Link        `json:"link,omitempty"`
	Version []VersionInfo `json:"version,omitempty"`

	Extras map[string]json.RawMessage `json:"-"`
}

var itemKnownFields = map[string]bool{
	"type": true, "docid": true, "title": true,
	"date": true, "link": true, "version": true,
}

// UnmarshalJSON decodes known fields into their typed form and stashes
// unknown fields in Extras.
func (it *Item) UnmarshalJSON(data []byte) error {
	type alias Item
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*it = Item(known)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if itemKnownFields[k] {
			continue
		}
		if it.Extras == nil {
			it.Extras = map[string]json.RawMessage{}
		}
		it.Extras[k] = v
	}
	return nil
}

// MarshalJSON re-emits known fields alongside the preserved extras.
func (it Item) MarshalJSON() ([]byte, error) {
	type alias Item
	base, err := json.Marshal(alias(it))
	if err != nil {
		return nil, err
	}
	if len(it.Extras) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range it.Extras {
		if _, clash := merged[k]; !clash {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ParseItem decodes a raw record body into an Item and reports structural
// problems. The returned Item is usable even when a ValidationError is
// returned; only a decode failure yields a nil Item.
func ParseItem(body map[string]any) (*Item, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode record body: %w", err)
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("failed to decode record body: %w", err)
	}

	var problems []string
	if len(it.Docid) == 0 {
		problems = append(problems, "missing docid")
	}
	primaries := 0
	for i, d := range it.Docid {
		if d.ID == "" {
			problems = append(problems, fmt.Sprintf("docid[%d]: empty id", i))
		}
		if d.Type == "" {
			problems = append(problems, fmt.Sprintf("docid[%d]: empty type", i))
		}
		if d.Primary && d.Scope == "" {
			primaries++
		}
	}
	if primaries > 1 {
		problems = append(problems, fmt.Sprintf("%d identifiers marked primary", primaries))
	}
	if len(it.Title) == 0 {
		problems = append(problems, "missing title")
	}

	if len(problems) > 0 {
		return &it, &ValidationError{Problems: problems}
	}
	return &it, nil
}
