package database

import (
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
)

// benignSyntaxFragments are PostgreSQL error-message substrings produced
// by malformed user-supplied patterns (regexes, jsonpath, tsquery). These
// are PostgreSQL-specific; review this list if the backing store changes.
var benignSyntaxFragments = []string{
	"invalid regular expression",
	"syntax error",
	"unexpected end of input",
	"invalid input syntax",
}

// classifyStoreError wraps errors caused by malformed user-supplied
// patterns as bib.BenignQueryError so the query translator can absorb
// them into an empty result. Anything unrecognized propagates unchanged.
func classifyStoreError(query string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, fragment := range benignSyntaxFragments {
		if strings.Contains(msg, fragment) {
			return &bib.BenignQueryError{Query: query, Err: err}
		}
	}
	return err
}
