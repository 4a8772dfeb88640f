package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "IETF\x00RFC 1918", DocID{ID: "RFC 1918", Type: "IETF"}.Key())
	assert.Equal(t, "", DocID{ID: "1918", Type: "IETF", Scope: "anchor"}.Key())
	assert.Equal(t, "", DocID{ID: "RFC 1918"}.Key())
	assert.Equal(t, "", DocID{Type: "IETF"}.Key())
}

func TestUsable(t *testing.T) {
	assert.True(t, DocID{ID: "RFC 1918", Type: "IETF"}.Usable())
	assert.False(t, DocID{ID: "rfc1918", Type: "IETF", Scope: "trademark"}.Usable())
	assert.False(t, DocID{ID: "RFC 1918"}.Usable())
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "rfc1918", NormalizeID("RFC 1918"))
	assert.Equal(t, "ieee80211", NormalizeID("IEEE 802.11"))
	assert.Equal(t, "w3crecxml", NormalizeID("W3C.REC-xml"))
	assert.Equal(t, "nistsp80053", NormalizeID("NIST SP 800-53"))
}

func TestDocidsFromBody(t *testing.T) {
	body := map[string]any{
		"docid": []any{
			map[string]any{"id": "RFC 1918", "type": "IETF", "primary": true},
			map[string]any{"id": "1918", "type": "IETF", "scope": "anchor"},
			map[string]any{"id": "10.17487/RFC1918", "type": "DOI"},
		},
	}
	docids := DocidsFromBody(body)
	assert.Len(t, docids, 3)
	assert.Equal(t, DocID{ID: "RFC 1918", Type: "IETF", Primary: true}, docids[0])
	assert.Equal(t, "anchor", docids[1].Scope)
	assert.Equal(t, "DOI", docids[2].Type)
}

func TestDocidsFromBodySingleObject(t *testing.T) {
	body := map[string]any{
		"docid": map[string]any{"id": "BCP 5", "type": "IETF"},
	}
	docids := DocidsFromBody(body)
	assert.Len(t, docids, 1)
	assert.Equal(t, "BCP 5", docids[0].ID)
}

func TestDocidsFromBodyMissing(t *testing.T) {
	assert.Nil(t, DocidsFromBody(map[string]any{"title": "no ids here"}))
	assert.Nil(t, DocidsFromBody(map[string]any{"docid": "not structured"}))
}
