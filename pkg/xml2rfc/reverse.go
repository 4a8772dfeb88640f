package xml2rfc

import (
	"fmt"

	"github.com/iziplay/bibref-api/pkg/compose"
)

// PathEntry is one legacy path that would resolve to an item.
type PathEntry struct {
	Path string `json:"path"`
	Note string `json:"note,omitempty"`
}

// ReversePaths enumerates every legacy xml2rfc path that resolves back to
// the item, across all registered namespaces, in registration order.
// Used for cross-linking from other views of the same document.
func (r *Resolver) ReversePaths(item *compose.Item) []PathEntry {
	if item == nil {
		return nil
	}

	var paths []PathEntry
	for _, dirname := range r.registry.Dirnames() {
		adapter, ok := r.registry.Adapter(dirname)
		if !ok {
			continue
		}
		for _, entry := range adapter.Reverse(item) {
			if entry.Anchor == "" {
				continue
			}
			paths = append(paths, PathEntry{
				Path: fmt.Sprintf("%s/reference.%s.xml", dirname, entry.Anchor),
				Note: entry.Note,
			})
		}
	}
	return paths
}
