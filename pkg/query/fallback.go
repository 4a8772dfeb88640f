package query

import (
	"context"

	"github.com/iziplay/bibref-api/pkg/database"
)

// Search runs the query in the declared format only. A parse failure is
// returned to the caller as an input error.
func Search(ctx context.Context, store RecordStore, raw string, format Format, limit int) ([]database.RefData, error) {
	parsed, err := Parse(raw, format)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, store, parsed, limit)
}

// SearchWithFallback tries formats strictly in FallbackOrder, regardless
// of which format the caller declared, and stops at the first format
// yielding at least one record. A format whose parser rejects the query
// is skipped. Exhausting all formats yields an empty result, not an
// error.
func SearchWithFallback(ctx context.Context, store RecordStore, raw string, limit int) ([]database.RefData, Format, error) {
	for _, format := range FallbackOrder {
		parsed, err := Parse(raw, format)
		if err != nil {
			continue
		}
		records, err := Execute(ctx, store, parsed, limit)
		if err != nil {
			return nil, format, err
		}
		if len(records) > 0 {
			return records, format, nil
		}
	}
	return nil, "", nil
}
