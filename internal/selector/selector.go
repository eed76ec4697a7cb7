// Package selector partitions a scan's worth of filenames into the single
// newest export per call number and everything superseded or undecodable.
package selector

import (
	"sort"

	"cad_ingest/internal/filename"
)

// Result is the outcome of one selection pass. The three slices partition
// the input exactly: Latest holds one name per decodable call number, Skip
// the superseded snapshots, Undecodable everything that failed to decode.
// All slices and group values are sorted for deterministic output.
type Result struct {
	Groups      map[string][]string
	Latest      []string
	Skip        []string
	Undecodable []string
}

// Select groups names by call number and picks the newest file per group.
// Ties on the 16-digit timestamp are broken by the lexicographically
// greater name so the choice never depends on map iteration order.
func Select(names []string) Result {
	res := Result{Groups: make(map[string][]string)}
	decoded := make(map[string]filename.Decoded, len(names))

	for _, name := range names {
		d, err := filename.Decode(name)
		if err != nil {
			res.Undecodable = append(res.Undecodable, name)
			continue
		}
		decoded[name] = d
		res.Groups[d.CallNumber] = append(res.Groups[d.CallNumber], name)
	}

	for _, group := range res.Groups {
		sort.Strings(group)
		best := group[0]
		for _, name := range group[1:] {
			if newer(decoded[name], decoded[best], name, best) {
				best = name
			}
		}
		res.Latest = append(res.Latest, best)
		for _, name := range group {
			if name != best {
				res.Skip = append(res.Skip, name)
			}
		}
	}

	sort.Strings(res.Latest)
	sort.Strings(res.Skip)
	sort.Strings(res.Undecodable)
	return res
}

func newer(a, b filename.Decoded, nameA, nameB string) bool {
	if a.TimestampInt != b.TimestampInt {
		return a.TimestampInt > b.TimestampInt
	}
	return nameA > nameB
}
