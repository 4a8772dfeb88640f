package xml2rfc

import (
	"context"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
)

// FuzzyAdapter serves namespaces whose legacy filenames encode an
// identifier loosely (misc, W3C, 3GPP, IANA): the anchor's dot-separated
// form is matched against indexed ids with punctuation normalized away.
type FuzzyAdapter struct {
	store RecordStore

	// DocidType is the identifier namespace matched and emitted, empty
	// for the mixed "misc" directory.
	DocidType string

	// AnchorPrefix is stripped from the request anchor and re-applied on
	// formatting, e.g. "W3C." for bibxml4.
	AnchorPrefix string
}

func NewFuzzyAdapter(store RecordStore, docidType, anchorPrefix string) *FuzzyAdapter {
	return &FuzzyAdapter{store: store, DocidType: docidType, AnchorPrefix: anchorPrefix}
}

// ResolveDocid reconstructs a best-effort identifier by swapping the
// legacy dot separators for spaces. The result is advisory; matching is
// done fuzzily by FetchRefs.
func (a *FuzzyAdapter) ResolveDocid(anchor string) *bib.DocID {
	rest := anchor
	if a.AnchorPrefix != "" {
		if !strings.HasPrefix(anchor, a.AnchorPrefix) {
			return nil
		}
		rest = strings.TrimPrefix(anchor, a.AnchorPrefix)
	}
	if rest == "" {
		return nil
	}
	id := strings.ReplaceAll(rest, ".", " ")
	if a.DocidType != "" {
		id = a.DocidType + " " + id
	}
	return &bib.DocID{ID: id, Type: a.DocidType}
}

func (a *FuzzyAdapter) FetchRefs(ctx context.Context, anchor string) ([]database.RefData, error) {
	docid := a.ResolveDocid(anchor)
	if docid == nil {
		return nil, nil
	}
	return fetchFuzzy(ctx, a.store, docid.ID)
}

func (a *FuzzyAdapter) FormatAnchor(item *compose.Item) string {
	id := itemDocidValue(item, a.DocidType)
	if id == "" {
		return ""
	}
	anchor := strings.ReplaceAll(id, " ", ".")
	if a.AnchorPrefix != "" && !strings.HasPrefix(anchor, a.AnchorPrefix) {
		anchor = a.AnchorPrefix + strings.TrimPrefix(anchor, a.DocidType+".")
	}
	return anchor
}

func (a *FuzzyAdapter) Reverse(item *compose.Item) []ReverseEntry {
	anchor := a.FormatAnchor(item)
	if anchor == "" {
		return nil
	}
	return []ReverseEntry{{Anchor: anchor, Note: "fuzzy legacy filename, may shadow similarly named documents"}}
}

// FallbackOnlyAdapter serves namespaces whose historical filenames do not
// map back to identifiers reliably (legacy IEEE, historical NIST). It
// never resolves, so requests go straight to the archived snapshot.
type FallbackOnlyAdapter struct{}

func NewFallbackOnlyAdapter() *FallbackOnlyAdapter { return &FallbackOnlyAdapter{} }

func (a *FallbackOnlyAdapter) ResolveDocid(string) *bib.DocID { return nil }

func (a *FallbackOnlyAdapter) FetchRefs(context.Context, string) ([]database.RefData, error) {
	return nil, nil
}

func (a *FallbackOnlyAdapter) FormatAnchor(*compose.Item) string { return "" }

func (a *FallbackOnlyAdapter) Reverse(*compose.Item) []ReverseEntry { return nil }
