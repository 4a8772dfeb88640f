package xml2rfc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
	"github.com/iziplay/bibref-api/pkg/datatracker"
)

var draftVersionSuffix = regexp.MustCompile(`^(draft-.+)-(\d{2})$`)

// DraftTracker is the slice of the datatracker client the adapter needs.
type DraftTracker interface {
	FetchDraftInfo(ctx context.Context, name string) (*datatracker.DraftInfo, error)
}

// InternetDraftsAdapter serves bibxml3. A fully versioned anchor must
// match the indexed version exactly; an unversioned "umbrella" anchor
// means "give me the latest", cross-checked against the datatracker,
// whose answer wins when the indexed data is missing or behind.
type InternetDraftsAdapter struct {
	store    RecordStore
	composer Composer
	tracker  DraftTracker
}

func NewInternetDraftsAdapter(store RecordStore, composer Composer, tracker DraftTracker) *InternetDraftsAdapter {
	return &InternetDraftsAdapter{store: store, composer: composer, tracker: tracker}
}

// parseAnchor splits an "I-D.draft-foo-bar-05" or "I-D.foo-bar" anchor
// into the draft name and the pinned version ("" when unversioned).
func (a *InternetDraftsAdapter) parseAnchor(anchor string) (name, version string, ok bool) {
	if !strings.HasPrefix(anchor, "I-D.") {
		return "", "", false
	}
	rest := strings.TrimPrefix(anchor, "I-D.")
	if rest == "" {
		return "", "", false
	}
	if !strings.HasPrefix(rest, "draft-") {
		rest = "draft-" + rest
	}
	if m := draftVersionSuffix.FindStringSubmatch(rest); m != nil {
		return m[1], m[2], true
	}
	return rest, "", true
}

func (a *InternetDraftsAdapter) ResolveDocid(anchor string) *bib.DocID {
	name, version, ok := a.parseAnchor(anchor)
	if !ok {
		return nil
	}
	id := name
	if version != "" {
		id = name + "-" + version
	}
	return &bib.DocID{ID: id, Type: "Internet-Draft"}
}

func (a *InternetDraftsAdapter) FetchRefs(ctx context.Context, anchor string) ([]database.RefData, error) {
	name, version, ok := a.parseAnchor(anchor)
	if !ok {
		return nil, nil
	}
	if version != "" {
		return fetchExact(ctx, a.store, &bib.DocID{ID: name + "-" + version, Type: "Internet-Draft"})
	}
	// Umbrella request: any version of the draft.
	predicate := fmt.Sprintf(`@.type == "Internet-Draft" && @.id like_regex "^%s(-[0-9]{2})?$"`, regexp.QuoteMeta(name))
	return a.store.QueryPathPredicate(ctx, "$.docid[*]", predicate, fetchLimit)
}

// ResolveItem resolves the anchor to one composite item. A pinned version
// is exact-match only: if the indexed data does not have it, the result
// is not-found, never a substituted version.
func (a *InternetDraftsAdapter) ResolveItem(ctx context.Context, anchor string) (*compose.Item, error) {
	name, version, ok := a.parseAnchor(anchor)
	if !ok {
		return nil, bib.ErrNotFound
	}

	if version != "" {
		return a.composer.GetByDocid(ctx, name+"-"+version, "Internet-Draft")
	}

	indexedVersion, err := a.latestIndexedVersion(ctx, name)
	if err != nil {
		return nil, err
	}

	trackerVersion := ""
	var trackerInfo *datatracker.DraftInfo
	if a.tracker != nil {
		info, err := a.tracker.FetchDraftInfo(ctx, name)
		switch {
		case err == nil:
			trackerInfo = info
			trackerVersion = info.Rev
		case errors.Is(err, bib.ErrNotFound):
			// Tracker does not know the draft; indexed data decides.
		default:
			slog.Warn("Datatracker unavailable, using indexed data only", "draft", name, "error", err)
		}
	}

	// The tracker's answer wins whenever the index is missing or behind.
	if trackerVersion != "" && trackerVersion != indexedVersion {
		versioned := name + "-" + trackerVersion
		item, err := a.composer.GetByDocid(ctx, versioned, "Internet-Draft")
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, bib.ErrNotFound) {
			return nil, err
		}
		// Not indexed yet: serve a minimal item from tracker metadata.
		return draftItemFromTracker(trackerInfo), nil
	}

	if indexedVersion == "" {
		return nil, bib.ErrNotFound
	}
	return a.composer.GetByDocid(ctx, name+"-"+indexedVersion, "Internet-Draft")
}

// latestIndexedVersion returns the highest indexed version of a draft
// ("" when nothing is indexed).
func (a *InternetDraftsAdapter) latestIndexedVersion(ctx context.Context, name string) (string, error) {
	predicate := fmt.Sprintf(`@.type == "Internet-Draft" && @.id like_regex "^%s-[0-9]{2}$"`, regexp.QuoteMeta(name))
	records, err := a.store.QueryPathPredicate(ctx, "$.docid[*]", predicate, fetchLimit)
	if err != nil {
		return "", err
	}

	latest := ""
	for _, record := range records {
		for _, d := range bib.DocidsFromBody(map[string]any(record.Body)) {
			if d.Type != "Internet-Draft" || d.Scope != "" {
				continue
			}
			m := draftVersionSuffix.FindStringSubmatch(d.ID)
			if m == nil || m[1] != name {
				continue
			}
			if m[2] > latest {
				latest = m[2]
			}
		}
	}
	return latest, nil
}

func draftItemFromTracker(info *datatracker.DraftInfo) *compose.Item {
	versioned := info.Name + "-" + info.Rev
	body := map[string]any{
		"type": "draft",
		"docid": []any{
			map[string]any{"id": versioned, "type": "Internet-Draft", "primary": true},
		},
		"version": []any{map[string]any{"draft": info.Rev}},
	}
	if info.Title != "" {
		body["title"] = []any{map[string]any{"content": info.Title}}
	}
	item := &compose.Item{
		Body: body,
		Sources: map[string]compose.SourceProvenance{
			versioned + "@datatracker": {
				Source: compose.SourceMeta{ID: "datatracker", HomeURL: "https://datatracker.ietf.org"},
				IndexedObject: compose.IndexedObjectMeta{
					Name:        versioned,
					ExternalURL: "https://datatracker.ietf.org/doc/" + info.Name + "/",
				},
				Raw: body,
			},
		},
		PrimaryDocid: &bib.DocID{ID: versioned, Type: "Internet-Draft", Primary: true},
	}
	if parsed, _ := bib.ParseItem(body); parsed != nil {
		item.Bibitem = parsed
	}
	return item
}

func (a *InternetDraftsAdapter) FormatAnchor(item *compose.Item) string {
	id := itemDocidValue(item, "Internet-Draft")
	if id == "" {
		return ""
	}
	return "I-D." + id
}

func (a *InternetDraftsAdapter) Reverse(item *compose.Item) []ReverseEntry {
	id := itemDocidValue(item, "Internet-Draft")
	if id == "" {
		return nil
	}
	entries := []ReverseEntry{{Anchor: "I-D." + id}}
	if m := draftVersionSuffix.FindStringSubmatch(id); m != nil {
		entries = append(entries, ReverseEntry{
			Anchor: "I-D." + m[1],
			Note:   "unversioned, resolves to the latest version",
		})
	}
	return entries
}
