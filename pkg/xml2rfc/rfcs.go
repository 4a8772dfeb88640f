package xml2rfc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/compose"
	"github.com/iziplay/bibref-api/pkg/database"
)

var rfcAnchor = regexp.MustCompile(`^RFC\.(\d{1,4})$`)

// RfcAdapter serves the bibxml directory: anchors like "RFC.1918"
// (zero-padded in filenames) matched exactly against "RFC 1918" docids.
type RfcAdapter struct {
	store RecordStore
}

func NewRfcAdapter(store RecordStore) *RfcAdapter {
	return &RfcAdapter{store: store}
}

func (a *RfcAdapter) ResolveDocid(anchor string) *bib.DocID {
	m := rfcAnchor.FindStringSubmatch(anchor)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &bib.DocID{ID: fmt.Sprintf("RFC %d", n), Type: "IETF"}
}

func (a *RfcAdapter) FetchRefs(ctx context.Context, anchor string) ([]database.RefData, error) {
	return fetchExact(ctx, a.store, a.ResolveDocid(anchor))
}

func (a *RfcAdapter) FormatAnchor(item *compose.Item) string {
	id := itemDocidValue(item, "IETF")
	n, ok := rfcNumber(id)
	if !ok {
		return ""
	}
	return fmt.Sprintf("RFC.%04d", n)
}

func (a *RfcAdapter) Reverse(item *compose.Item) []ReverseEntry {
	anchor := a.FormatAnchor(item)
	if anchor == "" {
		return nil
	}
	return []ReverseEntry{{Anchor: anchor}}
}

func rfcNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, "RFC ") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, "RFC "))
	if err != nil {
		return 0, false
	}
	return n, true
}

var subseriesAnchor = regexp.MustCompile(`^(BCP|STD|FYI)\.(\d{1,4})$`)

// SubseriesAdapter serves bibxml9: RFC subseries (BCP, STD, FYI) anchors,
// zero-padded, matched exactly.
type SubseriesAdapter struct {
	store RecordStore
}

func NewSubseriesAdapter(store RecordStore) *SubseriesAdapter {
	return &SubseriesAdapter{store: store}
}

func (a *SubseriesAdapter) ResolveDocid(anchor string) *bib.DocID {
	m := subseriesAnchor.FindStringSubmatch(anchor)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	return &bib.DocID{ID: fmt.Sprintf("%s %d", m[1], n), Type: "IETF"}
}

func (a *SubseriesAdapter) FetchRefs(ctx context.Context, anchor string) ([]database.RefData, error) {
	return fetchExact(ctx, a.store, a.ResolveDocid(anchor))
}

func (a *SubseriesAdapter) FormatAnchor(item *compose.Item) string {
	id := itemDocidValue(item, "IETF")
	parts := strings.SplitN(id, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	series := parts[0]
	if series != "BCP" && series != "STD" && series != "FYI" {
		return ""
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s.%04d", series, n)
}

func (a *SubseriesAdapter) Reverse(item *compose.Item) []ReverseEntry {
	anchor := a.FormatAnchor(item)
	if anchor == "" {
		return nil
	}
	return []ReverseEntry{{Anchor: anchor}}
}
