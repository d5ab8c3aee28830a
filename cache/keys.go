package cache

import (
	"sort"
	"strings"
)

// Key builds a stable cache key from a path-like name and optional
// params. Params are sorted so equivalent lookups share one key.
func Key(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return path + "?" + strings.Join(parts, "&")
}
