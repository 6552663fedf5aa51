package cache

import (
	"encoding/hex"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// NormalizeQuery canonicalizes query text for cache keying: trimmed,
// lowercased, inner whitespace collapsed.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// attributeSet flattens a context map into a set of "key=value" strings,
// the unit of Jaccard comparison.
func attributeSet(ctx map[string]string) map[string]struct{} {
	set := make(map[string]struct{}, len(ctx))
	for k, v := range ctx {
		if v == "" {
			continue
		}
		set[strings.ToLower(k)+"="+strings.ToLower(v)] = struct{}{}
	}
	return set
}

// ContextDigest returns a stable blake3 digest of the context attribute
// set. Equal contexts always produce equal digests regardless of map
// iteration order.
func ContextDigest(ctx map[string]string) string {
	attrs := attributeSet(ctx)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := blake3.New(32, nil)
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// jaccard computes |a∩b| / |a∪b| over two attribute sets. Two empty sets
// are identical (1.0).
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
