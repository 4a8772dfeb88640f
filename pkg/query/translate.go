package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/database"
)

// Format identifies one of the supported query dialects.
type Format string

const (
	FormatDocidRegex Format = "docid_regex"
	FormatJSONStruct Format = "json_struct"
	FormatJSONPath   Format = "json_path"
	FormatWebSearch  Format = "websearch"
)

// FallbackOrder is the fixed preference order used when fallback is
// enabled, fastest and most precise first.
var FallbackOrder = []Format{
	FormatDocidRegex,
	FormatJSONStruct,
	FormatJSONPath,
	FormatWebSearch,
}

// RecordStore is the slice of the record store the translator executes
// against.
type RecordStore interface {
	QueryContainment(ctx context.Context, fragment map[string]any, limit int) ([]database.RefData, error)
	QueryPathPredicate(ctx context.Context, fieldPath, predicate string, limit int) ([]database.RefData, error)
	QueryFullText(ctx context.Context, text string, limit int) ([]database.RefData, error)
}

// Parsed is a query validated against one format, ready to execute.
type Parsed struct {
	Format Format

	// Exactly one of the following is populated, per Format.
	Regex    string
	Fragment map[string]any
	Path     string
	Text     string
}

// Parse validates a raw query against the given format.
//
// The docid_regex parser rejects input recognizable as another dialect
// (leading "$." means json_path; quotes, -tokens or OR mean websearch) so
// a misdeclared query fails early instead of matching nothing. The
// json_path and websearch parsers are permissive pass-throughs; the store
// reports their syntax errors.
func Parse(raw string, format Format) (*Parsed, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty query")
	}

	switch format {
	case FormatDocidRegex:
		if strings.HasPrefix(raw, "$.") {
			return nil, fmt.Errorf("query %q looks like a JSON path, not an identifier pattern", raw)
		}
		if looksLikeWebSearch(raw) {
			return nil, fmt.Errorf("query %q looks like a web search, not an identifier pattern", raw)
		}
		return &Parsed{Format: format, Regex: raw}, nil

	case FormatJSONStruct:
		var fragment map[string]any
		if err := json.Unmarshal([]byte(raw), &fragment); err != nil {
			return nil, fmt.Errorf("query is not a JSON object: %w", err)
		}
		return &Parsed{Format: format, Fragment: fragment}, nil

	case FormatJSONPath:
		return &Parsed{Format: format, Path: raw}, nil

	case FormatWebSearch:
		return &Parsed{Format: format, Text: raw}, nil

	default:
		return nil, fmt.Errorf("unknown query format %q", format)
	}
}

func looksLikeWebSearch(raw string) bool {
	if strings.Contains(raw, `"`) {
		return true
	}
	for _, token := range strings.Fields(raw) {
		if token == "OR" || (len(token) > 1 && strings.HasPrefix(token, "-")) {
			return true
		}
	}
	return false
}

// Execute runs a parsed query against the store. Field predicates within
// one group are ANDed; multiple groups are each bounded by limit and
// ORed (unioned) afterwards. Malformed user-supplied patterns surface as
// an empty result, never as an error.
func Execute(ctx context.Context, store RecordStore, parsed *Parsed, limit int) ([]database.RefData, error) {
	var (
		records []database.RefData
		err     error
	)

	switch parsed.Format {
	case FormatDocidRegex:
		records, err = executeDocidRegex(ctx, store, parsed.Regex, limit)
	case FormatJSONStruct:
		records, err = store.QueryContainment(ctx, parsed.Fragment, limit)
	case FormatJSONPath:
		records, err = store.QueryPathPredicate(ctx, parsed.Path, "", limit)
	case FormatWebSearch:
		records, err = store.QueryFullText(ctx, parsed.Text, limit)
	default:
		return nil, fmt.Errorf("unknown query format %q", parsed.Format)
	}

	var benign *bib.BenignQueryError
	if errors.As(err, &benign) {
		slog.Debug("Swallowing benign query error", "format", parsed.Format, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// executeDocidRegex matches the pattern case-insensitively against
// docid[*].id and docid[*].type, one limit-bounded group per field,
// unioned.
func executeDocidRegex(ctx context.Context, store RecordStore, pattern string, limit int) ([]database.RefData, error) {
	escaped := escapeJSONPathString(pattern)

	var merged []database.RefData
	seen := map[string]bool{}
	for _, field := range []string{"id", "type"} {
		predicate := fmt.Sprintf(`@.%s like_regex "%s" flag "i"`, field, escaped)
		records, err := store.QueryPathPredicate(ctx, "$.docid[*]", predicate, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			key := r.Ref + "\x00" + r.Dataset
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
		}
	}
	return merged, nil
}

// escapeJSONPathString escapes a pattern for embedding in a jsonpath
// double-quoted string literal.
func escapeJSONPathString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
