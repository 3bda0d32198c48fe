package utils

import (
	"maps"
	"sort"
)

// HasTag checks if a tag map has the given key
func HasTag(tags map[string]string, key string) bool {
	_, ok := tags[key]
	return ok
}

// HasTagWithValue checks if a tag map has the given key and value
func HasTagWithValue(tags map[string]string, key, value string) bool {
	v, ok := tags[key]
	return ok && v == value
}

// MergeTags returns a new map with overlay applied on top of base. Also used for
// environment variables, which share the same shape.
func MergeTags(base, overlay map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(overlay))
	maps.Copy(result, base)
	maps.Copy(result, overlay)
	return result
}

// SortedKeys returns map keys in ascending order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
