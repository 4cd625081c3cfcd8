// Package wildcard implements suffix-wildcard matching over segmented
// permission keys.
//
// A key is a string of segments joined by a single separator, either '.'
// or ':' (e.g. "endpoint.users.delete" or "page:home"). A wildcard
// pattern is a key prefix followed by the separator and the wildcard
// token '*'; it matches the prefix itself and every key nested under it.
// The bare token '*' is the universal pattern and matches every key.
package wildcard

import "strings"

// Token is the wildcard token terminating a pattern.
const Token = "*"

// Separators recognised in permission keys, in detection order.
var separators = []string{".", ":"}

// Separator returns the separator character used by key, inspecting the
// key itself. Keys with no separator default to ".". Behaviour for keys
// mixing both separators is undefined; the first separator found wins.
func Separator(key string) string {
	for _, sep := range separators {
		if strings.Contains(key, sep) {
			return sep
		}
	}
	return separators[0]
}

// Matches reports whether pattern covers key. A pattern covers a key when
// it is the universal pattern, equals the key exactly, or ends in a
// wildcard suffix whose prefix equals the key or is a proper segment
// prefix of it. Wildcard suffixes are probed under both separator
// spellings so a stored pattern still matches callers using the other
// convention.
func Matches(pattern, key string) bool {
	if pattern == Token {
		return true
	}
	if pattern == key {
		return true
	}
	for _, sep := range separators {
		suffix := sep + Token
		if !strings.HasSuffix(pattern, suffix) {
			continue
		}
		prefix := strings.TrimSuffix(pattern, suffix)
		if key == prefix {
			return true
		}
		// The key may nest under the prefix using either separator, not
		// just the one the pattern was stored with.
		for _, keySep := range separators {
			if strings.HasPrefix(key, prefix+keySep) {
				return true
			}
		}
	}
	return false
}

// Ancestors returns the wildcard patterns covering key, most specific
// first, ending with the universal pattern. The exact key itself is not
// included. A key of N segments yields N patterns; a single-segment key
// yields only the universal pattern.
func Ancestors(key string) []string {
	sep := Separator(key)
	segments := strings.Split(key, sep)
	patterns := make([]string, 0, len(segments))
	for i := len(segments) - 1; i >= 1; i-- {
		patterns = append(patterns, strings.Join(segments[:i], sep)+sep+Token)
	}
	return append(patterns, Token)
}
