package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/database"
)

// RecordStore is the slice of the record store the merge engine reads.
type RecordStore interface {
	QueryContainment(ctx context.Context, fragment map[string]any, limit int) ([]database.RefData, error)
	QueryPathPredicate(ctx context.Context, fieldPath, predicate string, limit int) ([]database.RefData, error)
}

// SourceMeta describes one indexed dataset for provenance display.
type SourceMeta struct {
	ID        string `json:"id"`
	HomeURL   string `json:"homeURL,omitempty"`
	IssuesURL string `json:"issuesURL,omitempty"`
}

// IndexedObjectMeta points back at the raw indexed object behind one
// provenance entry.
type IndexedObjectMeta struct {
	Name        string `json:"name"`
	ExternalURL string `json:"externalURL,omitempty"`
}

// SourceMetaProvider resolves dataset ids to display metadata.
type SourceMetaProvider interface {
	SourceMeta(ctx context.Context, dataset string) (SourceMeta, error)
	IndexedObjectMeta(ctx context.Context, dataset, ref string) (IndexedObjectMeta, error)
}

// SourceProvenance records where one contributing record came from and
// whether its body passed strict validation.
type SourceProvenance struct {
	Source           SourceMeta        `json:"source"`
	IndexedObject    IndexedObjectMeta `json:"indexedObject"`
	Raw              map[string]any    `json:"raw,omitempty"`
	ValidationErrors []string          `json:"validationErrors,omitempty"`
}

// Item is a composite bibliographic item: the deduplicated merge of every
// indexed record sharing an identifier. Built on demand, never persisted.
type Item struct {
	Body         map[string]any              `json:"body"`
	Bibitem      *bib.Item                   `json:"bibitem,omitempty"`
	Sources      map[string]SourceProvenance `json:"sources"`
	PrimaryDocid *bib.DocID                  `json:"primaryDocid,omitempty"`
}

// Service builds composite items from the record store. It is stateless;
// every call is an independent unit of work.
type Service struct {
	store RecordStore
	meta  SourceMetaProvider
	limit int
}

// NewService returns a merge engine over the given store. limit bounds
// every candidate query.
func NewService(store RecordStore, meta SourceMetaProvider, limit int) *Service {
	if limit <= 0 {
		limit = 100
	}
	return &Service{store: store, meta: meta, limit: limit}
}

// GetByDocid builds the composite item for a seed identifier. typ may be
// empty to match the id under any identifier type.
func (s *Service) GetByDocid(ctx context.Context, id, typ string) (*Item, error) {
	candidates, err := s.findCandidates(ctx, id, typ)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, bib.ErrNotFound
	}

	primary, ok := primaryDocid(candidates)
	if ok {
		// Second pass: records indexed only under the primary id.
		widened, err := s.findCandidates(ctx, primary.ID, primary.Type)
		if err != nil {
			return nil, err
		}
		candidates = unionRecords(candidates, widened)
	}

	item, err := s.buildComposite(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if ok {
		item.PrimaryDocid = &primary
	}
	return item, nil
}

// BuildSearchResults merges a raw search result set into composite items,
// one per alias-closure group. A group whose records collide on
// identifier types is dropped with a warning rather than failing the
// whole page.
func (s *Service) BuildSearchResults(ctx context.Context, records []database.RefData) ([]*Item, error) {
	var items []*Item
	for _, group := range GroupRecords(records) {
		members := make([]database.RefData, 0, len(group))
		for _, i := range group {
			members = append(members, records[i])
		}
		item, err := s.buildComposite(ctx, members)
		if err != nil {
			var ambiguous *bib.AmbiguousInputError
			if errors.As(err, &ambiguous) {
				slog.Warn("Skipping search result group with identifier collision", "error", err)
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// findCandidates queries by exact containment first and falls back to a
// case-insensitive regex predicate over docid id/type.
func (s *Service) findCandidates(ctx context.Context, id, typ string) ([]database.RefData, error) {
	docid := map[string]any{"id": id}
	if typ != "" {
		docid["type"] = typ
	}
	fragment := map[string]any{"docid": []any{docid}}

	records, err := s.store.QueryContainment(ctx, fragment, s.limit)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return records, nil
	}

	predicate := fmt.Sprintf(`@.id like_regex "^%s$" flag "i"`, quoteForJSONPath(id))
	if typ != "" {
		predicate += fmt.Sprintf(` && @.type like_regex "^%s$" flag "i"`, quoteForJSONPath(typ))
	}
	return s.store.QueryPathPredicate(ctx, "$.docid[*]", predicate, s.limit)
}

// buildComposite merges a set of records known to belong to one group.
func (s *Service) buildComposite(ctx context.Context, records []database.RefData) (*Item, error) {
	bodies := make([]map[string]any, len(records))
	for i, r := range records {
		bodies[i] = map[string]any(r.Body)
	}

	if err := checkDocidCollisions(bodies); err != nil {
		return nil, err
	}

	item := &Item{
		Body:    MergeBodies(bodies),
		Sources: map[string]SourceProvenance{},
	}

	for i, record := range records {
		prov := SourceProvenance{Raw: bodies[i]}

		meta, err := s.meta.SourceMeta(ctx, record.Dataset)
		if err != nil {
			slog.Warn("No source metadata for dataset", "dataset", record.Dataset, "error", err)
			meta = SourceMeta{ID: record.Dataset}
		}
		prov.Source = meta

		objMeta, err := s.meta.IndexedObjectMeta(ctx, record.Dataset, record.Ref)
		if err != nil {
			objMeta = IndexedObjectMeta{Name: record.Ref}
		}
		prov.IndexedObject = objMeta

		// A record failing strict validation stays in, flagged.
		if _, err := bib.ParseItem(bodies[i]); err != nil {
			var verr *bib.ValidationError
			if errors.As(err, &verr) {
				prov.ValidationErrors = verr.Problems
			} else {
				prov.ValidationErrors = []string{err.Error()}
			}
		}

		item.Sources[fmt.Sprintf("%s@%s", record.Ref, meta.ID)] = prov
	}

	// Best-effort structured view of the merged body; a merge that does
	// not decode cleanly still returns its raw body.
	if parsed, _ := bib.ParseItem(item.Body); parsed != nil {
		item.Bibitem = parsed
	}

	return item, nil
}

// primaryDocid returns the unique usable identifier marked primary across
// the candidate set. Conflicting primaries are logged and ignored, so the
// caller proceeds with the seed-based set only.
func primaryDocid(records []database.RefData) (bib.DocID, bool) {
	var found bib.DocID
	var has bool
	for _, record := range records {
		for _, d := range bib.DocidsFromBody(map[string]any(record.Body)) {
			if !d.Primary || !d.Usable() {
				continue
			}
			if has && (found.ID != d.ID || found.Type != d.Type) {
				slog.Warn("Multiple conflicting primary identifiers, ignoring all",
					"first", found.ID, "second", d.ID)
				return bib.DocID{}, false
			}
			found, has = d, true
		}
	}
	return found, has
}

func unionRecords(a, b []database.RefData) []database.RefData {
	seen := map[string]bool{}
	var union []database.RefData
	for _, list := range [][]database.RefData{a, b} {
		for _, r := range list {
			key := r.Ref + "\x00" + r.Dataset
			if seen[key] {
				continue
			}
			seen[key] = true
			union = append(union, r)
		}
	}
	return union
}

var jsonPathMeta = regexp.MustCompile(`[\\^$.|?*+()\[\]{}"]`)

// quoteForJSONPath regex-quotes a literal value for like_regex inside a
// jsonpath string literal. Regex escapes are doubled because the string
// literal consumes one level of backslashes.
func quoteForJSONPath(s string) string {
	return jsonPathMeta.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case `"`:
			return `\"`
		case `\`:
			return `\\\\`
		default:
			return `\\` + m
		}
	})
}
