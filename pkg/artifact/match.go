package artifact

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kannich/kannich/pkg/types"
)

// match returns the subset of files selected by spec: every file
// matching at least one include pattern and no exclude pattern,
// sorted for deterministic output regardless of listing order
// (spec.md §4.6). A malformed pattern is treated as matching nothing
// rather than aborting the whole collection.
func match(files []string, spec types.ArtifactSpec) []string {
	var out []string
	for _, f := range files {
		if !matchesAny(spec.Includes, f) {
			continue
		}
		if matchesAny(spec.Excludes, f) {
			continue
		}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func matchesAny(patterns []string, f string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, f); err == nil && ok {
			return true
		}
	}
	return false
}
