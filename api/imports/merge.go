package imports

import (
	"sort"
	"strings"
)

// Merge resolution strategies. There is no default: when DiffMappings is
// non-empty the caller must pick one or nothing is committed.
const (
	ResolutionMerge   = "merge"
	ResolutionReplace = "replace"
)

// DiffMappings returns the target fields that carry a non-empty header in
// old but are absent or empty in new, sorted for reproducible output.
func DiffMappings(old, new map[string]string) []string {
	dropped := make([]string, 0)
	for field, header := range old {
		if strings.TrimSpace(header) == "" {
			continue
		}
		if strings.TrimSpace(new[field]) == "" {
			dropped = append(dropped, field)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// MergeMappings unions both mappings; on key collision the new value wins.
func MergeMappings(old, new map[string]string) map[string]string {
	merged := make(map[string]string, len(old)+len(new))
	for field, header := range old {
		merged[field] = header
	}
	for field, header := range new {
		merged[field] = header
	}
	return merged
}

// ResolveMappings applies the chosen strategy. An unknown or empty strategy
// returns false so the caller can refuse to commit anything.
func ResolveMappings(old, new map[string]string, strategy string) (map[string]string, bool) {
	switch strategy {
	case ResolutionMerge:
		return MergeMappings(old, new), true
	case ResolutionReplace:
		out := make(map[string]string, len(new))
		for field, header := range new {
			out[field] = header
		}
		return out, true
	}
	return nil, false
}
