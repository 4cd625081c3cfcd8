package wildcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesUniversal(t *testing.T) {
	for _, key := range []string{"a", "a.b", "endpoint.users.delete", "page:home", ""} {
		assert.True(t, Matches("*", key), "universal pattern must match %q", key)
	}
}

func TestMatchesExact(t *testing.T) {
	assert.True(t, Matches("endpoint.users.delete", "endpoint.users.delete"))
	assert.False(t, Matches("endpoint.users.delete", "endpoint.users.list"))
}

func TestMatchesWildcardSuffix(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"endpoint.*", "endpoint", true},
		{"endpoint.*", "endpoint.users", true},
		{"endpoint.*", "endpoint.users.delete", true},
		{"endpoint.*", "endpoints", false},
		{"endpoint.*", "endpointsuffix", false},
		{"endpoint.users.*", "endpoint.users.delete", true},
		{"endpoint.users.*", "endpoint.admin.delete", false},
		{"page:*", "page:home", true},
		{"page:*", "page", true},
		{"page:*", "pages", false},
		// Mixed conventions: stored pattern uses '.', caller uses ':'.
		{"page.*", "page:home", true},
		{"page:*", "page.home", true},
		{"page.*", "page:admin:settings", true},
		{"page:*", "page.admin.settings", true},
		{"page.*", "pages:home", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Matches(tt.pattern, tt.key), "Matches(%q, %q)", tt.pattern, tt.key)
	}
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"a.b.*", "a.*", "*"}, Ancestors("a.b.c"))
	assert.Equal(t, []string{"a.b.c.*", "a.b.*", "a.*", "*"}, Ancestors("a.b.c.d"))
	assert.Equal(t, []string{"page:*", "*"}, Ancestors("page:home"))
	assert.Equal(t, []string{"*"}, Ancestors("dashboard"))
}

func TestAncestorsAllMatchKey(t *testing.T) {
	key := "endpoint.users.delete"
	for _, pattern := range Ancestors(key) {
		assert.True(t, Matches(pattern, key), "ancestor %q must match its own key", pattern)
	}
}

func TestSeparator(t *testing.T) {
	assert.Equal(t, ".", Separator("a.b.c"))
	assert.Equal(t, ":", Separator("a:b"))
	assert.Equal(t, ".", Separator("solo"))
}
