package conf

// MergeDefaults merges the maps into one, prefixing every key with
// ns and the key delimiter. An empty ns keeps the keys as they are.
// Later maps win on duplicate keys.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) M {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	merged := make(M, size)
	for _, m := range maps {
		for key, val := range m {
			if ns != "" {
				key = ns + "." + key
			}
			merged[key] = val
		}
	}

	return merged
}
