package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/threadlens/threadlens/types"
)

func TestDeriveSearchKey_NormalizesQuery(t *testing.T) {
	opts := types.SearchOptions{Community: "golang", Sort: "hot", Page: 1, Limit: 20}

	base := DeriveSearchKey("rust vs go", opts)

	tests := []struct {
		name  string
		query string
	}{
		{"uppercase", "RUST VS GO"},
		{"mixed case", "Rust vs Go"},
		{"leading and trailing whitespace", "  rust vs go  "},
		{"collapsed internal whitespace", "rust\t vs \n go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, base, DeriveSearchKey(tt.query, opts))
		})
	}
}

func TestDeriveSearchKey_DistinguishesOptions(t *testing.T) {
	base := types.SearchOptions{Community: "golang", Sort: "hot", Page: 1, Limit: 20}

	tests := []struct {
		name string
		opts types.SearchOptions
	}{
		{"different community", types.SearchOptions{Community: "rust", Sort: "hot", Page: 1, Limit: 20}},
		{"different sort", types.SearchOptions{Community: "golang", Sort: "new", Page: 1, Limit: 20}},
		{"different page", types.SearchOptions{Community: "golang", Sort: "hot", Page: 2, Limit: 20}},
		{"different limit", types.SearchOptions{Community: "golang", Sort: "hot", Page: 1, Limit: 50}},
	}

	baseKey := DeriveSearchKey("concurrency", base)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, baseKey, DeriveSearchKey("concurrency", tt.opts))
		})
	}
}

func TestDeriveSearchKey_DistinguishesQueries(t *testing.T) {
	opts := types.SearchOptions{Sort: "hot", Page: 1, Limit: 20}

	assert.NotEqual(t,
		DeriveSearchKey("generics", opts),
		DeriveSearchKey("goroutines", opts))
}

func TestDeriveSearchKey_Prefix(t *testing.T) {
	key := DeriveSearchKey("anything", types.SearchOptions{})

	assert.True(t, strings.HasPrefix(key, SearchKeyPrefix))
	assert.Greater(t, len(key), len(SearchKeyPrefix))
}
