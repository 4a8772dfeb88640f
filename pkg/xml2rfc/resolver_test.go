package xml2rfc

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
	"github.com/iziplay/bibref-api/pkg/datatracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeStore struct {
	records  []database.RefData
	mappings map[string]string
	archived map[string]*database.Xml2rfcArchivedRef
}

func (s *fakeStore) QueryContainment(_ context.Context, fragment map[string]any, limit int) ([]database.RefData, error) {
	wanted, _ := fragment["docid"].([]any)
	var matched []database.RefData
	for _, record := range s.records {
		if recordHasDocids(record, wanted) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

var (
	predicateRegex = regexp.MustCompile(`like_regex "([^"]*)"`)
	predicateType  = regexp.MustCompile(`@\.type == "([^"]*)"`)
)

// QueryPathPredicate interprets the predicates the adapters actually
// build: an optional type equality plus an id like_regex.
func (s *fakeStore) QueryPathPredicate(_ context.Context, _, predicate string, _ int) ([]database.RefData, error) {
	m := predicateRegex.FindStringSubmatch(predicate)
	if m == nil {
		return nil, nil
	}
	pattern := m[1]
	if strings.Contains(predicate, `flag "i"`) {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	wantType := ""
	if tm := predicateType.FindStringSubmatch(predicate); tm != nil {
		wantType = tm[1]
	}

	var matched []database.RefData
	for _, record := range s.records {
		for _, d := range bib.DocidsFromBody(map[string]any(record.Body)) {
			if wantType != "" && d.Type != wantType {
				continue
			}
			if re.MatchString(d.ID) {
				matched = append(matched, record)
				break
			}
		}
	}
	return matched, nil
}

func (s *fakeStore) GetXml2rfcMapping(_ context.Context, subpath string) (*database.Xml2rfcMapping, error) {
	docid, ok := s.mappings[subpath]
	if !ok {
		return nil, bib.ErrNotFound
	}
	return &database.Xml2rfcMapping{Subpath: subpath, Docid: docid}, nil
}

func (s *fakeStore) GetXml2rfcArchivedRef(_ context.Context, subpath string) (*database.Xml2rfcArchivedRef, error) {
	archived, ok := s.archived[subpath]
	if !ok {
		return nil, bib.ErrNotFound
	}
	return archived, nil
}

func recordHasDocids(record database.RefData, wanted []any) bool {
	docids := bib.DocidsFromBody(map[string]any(record.Body))
	for _, w := range wanted {
		wm, _ := w.(map[string]any)
		found := false
		for _, d := range docids {
			if id, _ := wm["id"].(string); id != "" && d.ID != id {
				continue
			}
			if typ, _ := wm["type"].(string); typ != "" && d.Type != typ {
				continue
			}
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

type fakeComposer struct {
	items map[string]*compose.Item
}

func (c *fakeComposer) GetByDocid(_ context.Context, id, _ string) (*compose.Item, error) {
	item, ok := c.items[id]
	if !ok {
		return nil, bib.ErrNotFound
	}
	return item, nil
}

func (c *fakeComposer) BuildSearchResults(_ context.Context, records []database.RefData) ([]*compose.Item, error) {
	var items []*compose.Item
	for _, record := range records {
		items = append(items, &compose.Item{Body: map[string]any(record.Body)})
	}
	return items, nil
}

type fakeTracker struct {
	info  *datatracker.DraftInfo
	err   error
	calls int
}

func (t *fakeTracker) FetchDraftInfo(context.Context, string) (*datatracker.DraftInfo, error) {
	t.calls++
	return t.info, t.err
}

type fakeDoi struct {
	body map[string]any
	err  error
}

func (f *fakeDoi) FetchByDOI(context.Context, string) (map[string]any, error) {
	return f.body, f.err
}

func draftRecord(id string) database.RefData {
	return database.RefData{
		Ref: id, Dataset: "ids",
		Body: datatypes.JSONMap{
			"docid": []any{map[string]any{"id": id, "type": "Internet-Draft"}},
			"title": []any{map[string]any{"content": "A Draft"}},
		},
	}
}

func rfcItem(id string) *compose.Item {
	return &compose.Item{
		Body: map[string]any{
			"docid": []any{map[string]any{"id": id, "type": "IETF"}},
		},
	}
}

func newTestResolver(store *fakeStore, composer *fakeComposer, tracker DraftTracker) *Resolver {
	registry := NewDefaultRegistry(store, composer, nil, tracker)
	return NewResolver(store, composer, registry)
}

func TestResolvePathManualMappingWins(t *testing.T) {
	// Both a manual mapping and an adapter-resolvable path exist and
	// point at different items; the mapping wins.
	store := &fakeStore{
		records:  []database.RefData{},
		mappings: map[string]string{"bibxml/reference.RFC.1918.xml": "RFC 4193"},
	}
	composer := &fakeComposer{items: map[string]*compose.Item{
		"RFC 4193": rfcItem("RFC 4193"),
		"RFC 1918": rfcItem("RFC 1918"),
	}}
	resolver := newTestResolver(store, composer, nil)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml", "RFC.1918", "")
	require.NoError(t, err)
	assert.Equal(t, "manual_mapping", outcome.Method)
	assert.Equal(t, "RFC 4193", outcome.Item.Body["docid"].([]any)[0].(map[string]any)["id"])
	require.Len(t, outcome.Trace, 1)
	assert.Equal(t, "RFC 4193", outcome.Trace[0].Config)
}

func TestResolvePathFailedMappingFallsThrough(t *testing.T) {
	store := &fakeStore{
		records: []database.RefData{{
			Ref: "RFC1918", Dataset: "rfcs",
			Body: datatypes.JSONMap{
				"docid": []any{map[string]any{"id": "RFC 1918", "type": "IETF"}},
			},
		}},
		mappings: map[string]string{"bibxml/reference.RFC.1918.xml": "RFC 9999"},
	}
	composer := &fakeComposer{items: map[string]*compose.Item{}}
	resolver := newTestResolver(store, composer, nil)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml", "RFC.1918", "")
	require.NoError(t, err)
	assert.Equal(t, "auto_adapter", outcome.Method)
	require.Len(t, outcome.Trace, 2)
	assert.Contains(t, outcome.Trace[0].Error, "failed to resolve")
	assert.Empty(t, outcome.Trace[1].Error)
}

func TestResolvePathArchivedFallback(t *testing.T) {
	store := &fakeStore{
		archived: map[string]*database.Xml2rfcArchivedRef{
			"bibxml6/reference.IEEE.802.11.xml": {
				Subpath: "bibxml6/reference.IEEE.802.11.xml",
				XML:     `<reference anchor="IEEE.802.11"><front/></reference>`,
			},
		},
	}
	resolver := newTestResolver(store, &fakeComposer{}, nil)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml6", "IEEE.802.11", "")
	require.NoError(t, err)
	assert.Equal(t, "archived_fallback", outcome.Method)
	assert.Nil(t, outcome.Item)
	assert.Contains(t, outcome.XML, `anchor="IEEE.802.11"`)
	require.Len(t, outcome.Trace, 3)
}

func TestResolvePathArchivedAnchorOverride(t *testing.T) {
	store := &fakeStore{
		archived: map[string]*database.Xml2rfcArchivedRef{
			"bibxml6/reference.IEEE.802.11.xml": {
				Subpath: "bibxml6/reference.IEEE.802.11.xml",
				XML:     `<reference anchor="IEEE.802.11"><x anchor="inner"/></reference>`,
			},
		},
	}
	resolver := newTestResolver(store, &fakeComposer{}, nil)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml6", "IEEE.802.11", "ieee80211")
	require.NoError(t, err)
	assert.Contains(t, outcome.XML, `anchor="ieee80211"`)
	// Only the first anchor attribute is rewritten.
	assert.Contains(t, outcome.XML, `anchor="inner"`)
	assert.Equal(t, "ieee80211", outcome.Anchor)
}

func TestResolvePathArchivedInvalidSkipped(t *testing.T) {
	store := &fakeStore{
		archived: map[string]*database.Xml2rfcArchivedRef{
			"bibxml6/reference.IEEE.802.11.xml": {
				Subpath: "bibxml6/reference.IEEE.802.11.xml",
				XML:     `<reference anchor="IEEE.802.11"/>`,
				Sidecar: datatypes.JSONMap{"invalid": true},
			},
		},
	}
	resolver := newTestResolver(store, &fakeComposer{}, nil)

	_, err := resolver.ResolvePath(context.Background(), "bibxml6", "IEEE.802.11", "")
	assert.ErrorIs(t, err, bib.ErrNotFound)
}

func TestResolvePathExhaustedNotFound(t *testing.T) {
	resolver := newTestResolver(&fakeStore{}, &fakeComposer{}, nil)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml", "RFC.9999", "")
	assert.ErrorIs(t, err, bib.ErrNotFound)
	require.NotNil(t, outcome)
	require.Len(t, outcome.Trace, 3)
	for _, attempt := range outcome.Trace {
		assert.NotEmpty(t, attempt.Error)
	}
}

func TestResolvePathAliasDirname(t *testing.T) {
	store := &fakeStore{
		mappings: map[string]string{"bibxml/reference.RFC.1918.xml": "RFC 1918"},
	}
	composer := &fakeComposer{items: map[string]*compose.Item{
		"RFC 1918": rfcItem("RFC 1918"),
	}}
	resolver := newTestResolver(store, composer, nil)

	// The alias normalizes to bibxml, where the mapping lives.
	outcome, err := resolver.ResolvePath(context.Background(), "bibxml-rfcs", "RFC.1918", "")
	require.NoError(t, err)
	assert.Equal(t, "manual_mapping", outcome.Method)
	assert.Equal(t, "RFC.1918", outcome.Anchor)
}

// A version pinned by the request must match the index exactly, even
// when the datatracker reports a newer one.
func TestResolveDraftPinnedVersionNeverSubstituted(t *testing.T) {
	store := &fakeStore{records: []database.RefData{draftRecord("draft-foo-bar-05")}}
	composer := &fakeComposer{items: map[string]*compose.Item{
		"draft-foo-bar-05": {Body: map[string]any{
			"docid": []any{map[string]any{"id": "draft-foo-bar-05", "type": "Internet-Draft"}},
		}},
	}}
	tracker := &fakeTracker{info: &datatracker.DraftInfo{Name: "draft-foo-bar", Rev: "07"}}
	resolver := newTestResolver(store, composer, tracker)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml3", "I-D.draft-foo-bar-05", "")
	require.NoError(t, err)
	assert.Equal(t, "auto_adapter", outcome.Method)
	assert.Equal(t, "I-D.draft-foo-bar-05", outcome.Anchor)
	assert.Zero(t, tracker.calls, "a pinned version never consults the datatracker")
}

func TestResolveDraftPinnedMissingVersionNotFound(t *testing.T) {
	store := &fakeStore{records: []database.RefData{draftRecord("draft-foo-bar-05")}}
	composer := &fakeComposer{items: map[string]*compose.Item{}}
	tracker := &fakeTracker{info: &datatracker.DraftInfo{Name: "draft-foo-bar", Rev: "07"}}
	resolver := newTestResolver(store, composer, tracker)

	_, err := resolver.ResolvePath(context.Background(), "bibxml3", "I-D.draft-foo-bar-04", "")
	assert.ErrorIs(t, err, bib.ErrNotFound)
}

func TestResolveDraftUmbrellaPrefersTrackerVersion(t *testing.T) {
	store := &fakeStore{records: []database.RefData{draftRecord("draft-foo-bar-05")}}
	composer := &fakeComposer{items: map[string]*compose.Item{
		"draft-foo-bar-05": {Body: map[string]any{
			"docid": []any{map[string]any{"id": "draft-foo-bar-05", "type": "Internet-Draft"}},
		}},
	}}
	tracker := &fakeTracker{info: &datatracker.DraftInfo{Name: "draft-foo-bar", Rev: "07", Title: "A Draft"}}
	resolver := newTestResolver(store, composer, tracker)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml3", "I-D.draft-foo-bar", "")
	require.NoError(t, err)
	// 07 is not indexed yet: a minimal item is served from tracker data,
	// and the response anchor carries the resolved version.
	assert.Equal(t, "I-D.draft-foo-bar-07", outcome.Anchor)
	assert.Contains(t, outcome.Item.Sources, "draft-foo-bar-07@datatracker")
}

func TestResolveDraftUmbrellaTrackerUnavailable(t *testing.T) {
	store := &fakeStore{records: []database.RefData{draftRecord("draft-foo-bar-05")}}
	composer := &fakeComposer{items: map[string]*compose.Item{
		"draft-foo-bar-05": {Body: map[string]any{
			"docid": []any{map[string]any{"id": "draft-foo-bar-05", "type": "Internet-Draft"}},
		}},
	}}
	tracker := &fakeTracker{err: &bib.UpstreamUnavailableError{Service: "datatracker"}}
	resolver := newTestResolver(store, composer, tracker)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml3", "I-D.draft-foo-bar", "")
	require.NoError(t, err)
	assert.Equal(t, "I-D.draft-foo-bar-05", outcome.Anchor)
}

func TestResolveDoiSuccess(t *testing.T) {
	store := &fakeStore{}
	doiClient := &fakeDoi{body: map[string]any{
		"docid": []any{map[string]any{"id": "10.1000_182", "type": "DOI", "primary": true}},
		"title": []any{map[string]any{"content": "The DOI Handbook"}},
	}}
	registry := NewDefaultRegistry(store, &fakeComposer{}, doiClient, nil)
	resolver := NewResolver(store, &fakeComposer{}, registry)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml7", "DOI.10.1000_182", "")
	require.NoError(t, err)
	assert.Equal(t, "auto_adapter", outcome.Method)
	assert.Equal(t, "DOI.10.1000_182", outcome.Anchor)
	assert.Contains(t, outcome.Item.Sources, "10.1000_182@doi")
}

// The registry API is the only source for DOIs: its outage ends the
// pipeline instead of advancing to the archived fallback.
func TestResolveDoiUpstreamFailureIsTerminal(t *testing.T) {
	store := &fakeStore{
		archived: map[string]*database.Xml2rfcArchivedRef{
			"bibxml7/reference.DOI.10.1000_182.xml": {
				Subpath: "bibxml7/reference.DOI.10.1000_182.xml",
				XML:     `<reference anchor="DOI.10.1000_182"/>`,
			},
		},
	}
	doiClient := &fakeDoi{err: &bib.UpstreamUnavailableError{Service: "doi"}}
	registry := NewDefaultRegistry(store, &fakeComposer{}, doiClient, nil)
	resolver := NewResolver(store, &fakeComposer{}, registry)

	outcome, err := resolver.ResolvePath(context.Background(), "bibxml7", "DOI.10.1000_182", "")
	var upstream *bib.UpstreamUnavailableError
	assert.ErrorAs(t, err, &upstream)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.Trace, 2)
	assert.Empty(t, outcome.XML)
}

func TestReversePaths(t *testing.T) {
	resolver := newTestResolver(&fakeStore{}, &fakeComposer{}, nil)

	item := &compose.Item{
		Body: map[string]any{
			"docid": []any{map[string]any{"id": "RFC 1918", "type": "IETF"}},
		},
	}
	paths := resolver.ReversePaths(item)
	require.NotEmpty(t, paths)
	assert.Equal(t, "bibxml/reference.RFC.1918.xml", paths[0].Path)
}
