package compose

import (
	"github.com/iziplay/bibref-api/pkg/bib"
	"github.com/iziplay/bibref-api/pkg/database"
)

// GroupRecords partitions a result set into disjoint groups of record
// indexes connected by alias closure: two records join the same group
// when they share a non-scoped identifier, directly or transitively
// through identifiers co-occurring in the same record.
func GroupRecords(records []database.RefData) [][]int {
	var keyOrder []string
	recordsByKey := map[string][]int{}
	aliasesByKey := map[string]map[string]bool{}

	for i, record := range records {
		docids := bib.DocidsFromBody(map[string]any(record.Body))

		var keys []string
		for _, d := range docids {
			if k := d.Key(); k != "" {
				keys = append(keys, k)
			}
		}
		for _, k := range keys {
			if _, seen := recordsByKey[k]; !seen {
				keyOrder = append(keyOrder, k)
				aliasesByKey[k] = map[string]bool{}
			}
			recordsByKey[k] = append(recordsByKey[k], i)
			// Every identifier co-occurring in this record is an alias.
			for _, other := range keys {
				aliasesByKey[k][other] = true
			}
		}
	}

	processed := map[string]bool{}
	var groups [][]int
	for _, seed := range keyOrder {
		if processed[seed] {
			continue
		}

		// Sweep every key transitively reachable through alias sets.
		memberSet := map[int]bool{}
		frontier := []string{seed}
		processed[seed] = true
		for len(frontier) > 0 {
			key := frontier[0]
			frontier = frontier[1:]
			for _, idx := range recordsByKey[key] {
				memberSet[idx] = true
			}
			for alias := range aliasesByKey[key] {
				if !processed[alias] {
					processed[alias] = true
					frontier = append(frontier, alias)
				}
			}
		}

		// Keep members in record order for deterministic merges.
		var members []int
		for i := range records {
			if memberSet[i] {
				members = append(members, i)
			}
		}
		groups = append(groups, members)
	}

	// Records with no usable identifier each form a singleton group.
	grouped := map[int]bool{}
	for _, g := range groups {
		for _, i := range g {
			grouped[i] = true
		}
	}
	for i := range records {
		if !grouped[i] {
			groups = append(groups, []int{i})
		}
	}

	return groups
}
