package xml2rfc

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
)

// RecordStore is the slice of the record store the legacy path machinery
// reads.
type RecordStore interface {
	QueryContainment(ctx context.Context, fragment map[string]any, limit int) ([]database.RefData, error)
	QueryPathPredicate(ctx context.Context, fieldPath, predicate string, limit int) ([]database.RefData, error)
	GetXml2rfcMapping(ctx context.Context, subpath string) (*database.Xml2rfcMapping, error)
	GetXml2rfcArchivedRef(ctx context.Context, subpath string) (*database.Xml2rfcArchivedRef, error)
}

// Composer builds composite items from identifiers or raw record sets.
// *compose.Service satisfies it.
type Composer interface {
	GetByDocid(ctx context.Context, id, typ string) (*compose.Item, error)
	BuildSearchResults(ctx context.Context, records []database.RefData) ([]*compose.Item, error)
}

// ReverseEntry is one legacy anchor that would resolve back to an item.
type ReverseEntry struct {
	Anchor string
	Note   string
}

// Adapter is the per-namespace strategy translating between legacy
// xml2rfc anchors and document identifiers.
type Adapter interface {
	// ResolveDocid parses the anchor into a canonical identifier,
	// best-effort. Namespaces with unreliable legacy naming return nil to
	// force the archived fallback.
	ResolveDocid(anchor string) *bib.DocID

	// FetchRefs queries the record store for records matching the anchor.
	FetchRefs(ctx context.Context, anchor string) ([]database.RefData, error)

	// FormatAnchor canonicalizes the anchor for the response, which may
	// differ from the requested one (e.g. a versionless draft request
	// formatted with its resolved version).
	FormatAnchor(item *compose.Item) string

	// Reverse enumerates every legacy anchor that resolves to the item.
	// Deterministic and side-effect-free.
	Reverse(item *compose.Item) []ReverseEntry
}

// ItemResolver is an optional adapter capability for namespaces that
// build the composite item themselves instead of returning store records
// (DOI goes straight to the registry API; Internet-Drafts cross-check the
// datatracker).
type ItemResolver interface {
	ResolveItem(ctx context.Context, anchor string) (*compose.Item, error)
}

const fetchLimit = 20

// fetchExact is the default FetchRefs for namespaces whose legacy anchors
// map to canonical identifiers: an exact containment query on the parsed
// docid.
func fetchExact(ctx context.Context, store RecordStore, docid *bib.DocID) ([]database.RefData, error) {
	if docid == nil {
		return nil, nil
	}
	fragment := map[string]any{
		"docid": []any{map[string]any{"id": docid.ID, "type": docid.Type}},
	}
	return store.QueryContainment(ctx, fragment, fetchLimit)
}

// fetchFuzzy is the default FetchRefs for namespaces with loose legacy
// naming: a case-insensitive regex over punctuation-normalized id parts.
// Records whose identifier matches the request exactly after
// normalization are ranked ahead of looser matches.
func fetchFuzzy(ctx context.Context, store RecordStore, id string) ([]database.RefData, error) {
	pattern := fuzzyIDPattern(id)
	if pattern == "" {
		return nil, nil
	}
	predicate := fmt.Sprintf(`@.id like_regex "%s" flag "i"`, pattern)
	records, err := store.QueryPathPredicate(ctx, "$.docid[*]", predicate, fetchLimit)
	if err != nil {
		return nil, err
	}

	want := bib.NormalizeID(id)
	sort.SliceStable(records, func(i, j int) bool {
		return fuzzyRank(records[i], want) < fuzzyRank(records[j], want)
	})
	return records, nil
}

func fuzzyRank(record database.RefData, want string) int {
	for _, d := range bib.DocidsFromBody(map[string]any(record.Body)) {
		if d.ID != "" && bib.NormalizeID(d.ID) == want {
			return 0
		}
	}
	return 1
}

var idTokens = regexp.MustCompile(`[A-Za-z0-9]+`)

// fuzzyIDPattern turns "FIPS.186-4" into "^fips[^a-zA-Z0-9]*186[^a-zA-Z0-9]*4$",
// so separators in the anchor and in indexed ids do not have to agree.
func fuzzyIDPattern(id string) string {
	tokens := idTokens.FindAllString(id, -1)
	if len(tokens) == 0 {
		return ""
	}
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return "^" + strings.Join(tokens, "[^a-zA-Z0-9]*") + "$"
}

// itemDocidValue returns the item's best identifier of the given type:
// the primary docid when it matches, else the first non-scoped docid of
// that type.
func itemDocidValue(item *compose.Item, typ string) string {
	if item == nil {
		return ""
	}
	if item.PrimaryDocid != nil && (typ == "" || item.PrimaryDocid.Type == typ) {
		return item.PrimaryDocid.ID
	}
	for _, d := range bib.DocidsFromBody(item.Body) {
		if d.Scope != "" || d.ID == "" {
			continue
		}
		if typ == "" || d.Type == typ {
			return d.ID
		}
	}
	return ""
}
