package query

import (
	"context"
	"errors"
	"testing"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// fakeStore routes each query kind to a configurable function.
type fakeStore struct {
	containment   func(fragment map[string]any, limit int) ([]database.RefData, error)
	pathPredicate func(fieldPath, predicate string, limit int) ([]database.RefData, error)
	fullText      func(text string, limit int) ([]database.RefData, error)
}

func (s *fakeStore) QueryContainment(_ context.Context, fragment map[string]any, limit int) ([]database.RefData, error) {
	if s.containment == nil {
		return nil, nil
	}
	return s.containment(fragment, limit)
}

func (s *fakeStore) QueryPathPredicate(_ context.Context, fieldPath, predicate string, limit int) ([]database.RefData, error) {
	if s.pathPredicate == nil {
		return nil, nil
	}
	return s.pathPredicate(fieldPath, predicate, limit)
}

func (s *fakeStore) QueryFullText(_ context.Context, text string, limit int) ([]database.RefData, error) {
	if s.fullText == nil {
		return nil, nil
	}
	return s.fullText(text, limit)
}

func record(ref, dataset string) database.RefData {
	return database.RefData{Ref: ref, Dataset: dataset, Body: datatypes.JSONMap{}}
}

func TestParseDocidRegexRejectsOtherDialects(t *testing.T) {
	_, err := Parse("$.docid[*].id", FormatDocidRegex)
	assert.Error(t, err)

	_, err = Parse(`"private internets"`, FormatDocidRegex)
	assert.Error(t, err)

	_, err = Parse("networking -addressing", FormatDocidRegex)
	assert.Error(t, err)

	_, err = Parse("RFC OR BCP", FormatDocidRegex)
	assert.Error(t, err)

	parsed, err := Parse("RFC ?1918", FormatDocidRegex)
	require.NoError(t, err)
	assert.Equal(t, "RFC ?1918", parsed.Regex)
}

func TestParseJSONStruct(t *testing.T) {
	parsed, err := Parse(`{"docid": [{"id": "RFC 1918"}]}`, FormatJSONStruct)
	require.NoError(t, err)
	assert.Contains(t, parsed.Fragment, "docid")

	_, err = Parse("RFC 1918", FormatJSONStruct)
	assert.Error(t, err)

	_, err = Parse(`["not", "an", "object"]`, FormatJSONStruct)
	assert.Error(t, err)
}

func TestParsePermissiveFormats(t *testing.T) {
	parsed, err := Parse(`$.docid[*] ? (@.id == "RFC 1918")`, FormatJSONPath)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.Path)

	parsed, err = Parse(`"private internets" -BCP`, FormatWebSearch)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.Text)
}

func TestExecuteDocidRegexUnionsFieldGroups(t *testing.T) {
	store := &fakeStore{
		pathPredicate: func(_, predicate string, _ int) ([]database.RefData, error) {
			// The same record matches on both id and type; it must appear
			// once.
			return []database.RefData{record("ref1", "rfcs")}, nil
		},
	}

	parsed, err := Parse("RFC", FormatDocidRegex)
	require.NoError(t, err)

	records, err := Execute(context.Background(), store, parsed, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExecuteSwallowsBenignErrors(t *testing.T) {
	store := &fakeStore{
		pathPredicate: func(_, _ string, _ int) ([]database.RefData, error) {
			return nil, &bib.BenignQueryError{Query: "RFC [", Err: errors.New("invalid regular expression")}
		},
	}

	parsed, err := Parse("RFC [", FormatDocidRegex)
	require.NoError(t, err)

	records, err := Execute(context.Background(), store, parsed, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecutePropagatesFatalErrors(t *testing.T) {
	fatal := errors.New("connection refused")
	store := &fakeStore{
		fullText: func(_ string, _ int) ([]database.RefData, error) {
			return nil, fatal
		},
	}

	parsed, err := Parse("private internets", FormatWebSearch)
	require.NoError(t, err)

	_, err = Execute(context.Background(), store, parsed, 10)
	assert.ErrorIs(t, err, fatal)
}

func TestSearchWithFallbackFixedOrder(t *testing.T) {
	var predicates []string
	store := &fakeStore{
		pathPredicate: func(_, predicate string, _ int) ([]database.RefData, error) {
			predicates = append(predicates, predicate)
			return nil, nil
		},
		fullText: func(_ string, _ int) ([]database.RefData, error) {
			return []database.RefData{record("ref9", "misc")}, nil
		},
	}

	// Invalid JSON, valid as a plain regex: json_struct is skipped at
	// parse time, docid_regex runs first, websearch finally matches.
	records, used, err := SearchWithFallback(context.Background(), store, "private internets", 10)
	require.NoError(t, err)
	assert.Equal(t, FormatWebSearch, used)
	assert.Len(t, records, 1)

	// docid_regex ran before anything else: two field groups, then the
	// permissive json_path pass-through.
	require.NotEmpty(t, predicates)
	assert.Contains(t, predicates[0], "@.id like_regex")
}

func TestSearchWithFallbackStopsAtFirstMatch(t *testing.T) {
	fullTextCalled := false
	store := &fakeStore{
		pathPredicate: func(_, _ string, _ int) ([]database.RefData, error) {
			return []database.RefData{record("ref1", "rfcs")}, nil
		},
		fullText: func(_ string, _ int) ([]database.RefData, error) {
			fullTextCalled = true
			return nil, nil
		},
	}

	records, used, err := SearchWithFallback(context.Background(), store, "RFC 1918", 10)
	require.NoError(t, err)
	assert.Equal(t, FormatDocidRegex, used)
	assert.Len(t, records, 1)
	assert.False(t, fullTextCalled)
}

func TestSearchWithFallbackExhausted(t *testing.T) {
	records, used, err := SearchWithFallback(context.Background(), &fakeStore{}, "nothing matches", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, Format(""), used)
}
