package xml2rfc

import (
	"context"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
)

// DoiFetcher is the slice of the DOI registry client the adapter needs.
type DoiFetcher interface {
	FetchByDOI(ctx context.Context, doi string) (map[string]any, error)
}

// DoiAdapter serves bibxml7. The record store is bypassed entirely: the
// DOI registry API is the only source for this namespace, so its failure
// is surfaced (not-found or upstream error), never silently skipped.
type DoiAdapter struct {
	client DoiFetcher
}

func NewDoiAdapter(client DoiFetcher) *DoiAdapter {
	return &DoiAdapter{client: client}
}

func (a *DoiAdapter) ResolveDocid(anchor string) *bib.DocID {
	if !strings.HasPrefix(anchor, "DOI.") {
		return nil
	}
	value := strings.TrimPrefix(anchor, "DOI.")
	if value == "" {
		return nil
	}
	return &bib.DocID{ID: value, Type: "DOI"}
}

func (a *DoiAdapter) FetchRefs(context.Context, string) ([]database.RefData, error) {
	// Store never consulted for DOIs.
	return nil, nil
}

// ResolveItem fetches the DOI from the registry and wraps it as a
// single-source composite item.
func (a *DoiAdapter) ResolveItem(ctx context.Context, anchor string) (*compose.Item, error) {
	docid := a.ResolveDocid(anchor)
	if docid == nil {
		return nil, bib.ErrNotFound
	}

	body, err := a.client.FetchByDOI(ctx, docid.ID)
	if err != nil {
		return nil, err
	}

	item := &compose.Item{
		Body: body,
		Sources: map[string]compose.SourceProvenance{
			docid.ID + "@doi": {
				Source: compose.SourceMeta{ID: "doi", HomeURL: "https://www.doi.org"},
				IndexedObject: compose.IndexedObjectMeta{
					Name:        docid.ID,
					ExternalURL: "https://doi.org/" + docid.ID,
				},
				Raw: body,
			},
		},
		PrimaryDocid: &bib.DocID{ID: docid.ID, Type: "DOI", Primary: true},
	}
	if parsed, _ := bib.ParseItem(body); parsed != nil {
		item.Bibitem = parsed
	}
	return item, nil
}

func (a *DoiAdapter) FormatAnchor(item *compose.Item) string {
	id := itemDocidValue(item, "DOI")
	if id == "" {
		return ""
	}
	return "DOI." + id
}

func (a *DoiAdapter) Reverse(item *compose.Item) []ReverseEntry {
	anchor := a.FormatAnchor(item)
	if anchor == "" {
		return nil
	}
	return []ReverseEntry{{Anchor: anchor, Note: "resolved live from the DOI registry"}}
}
