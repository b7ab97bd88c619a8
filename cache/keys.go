package cache

import (
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

// SearchKeyPrefix namespaces derived search keys before the service-wide
// namespace is applied by the Store.
const SearchKeyPrefix = "search:"

// DeriveSearchKey produces a stable cache key for a query/options pair.
// Queries differing only in case or internal whitespace runs collide on
// purpose. The hash is FNV-1a 32-bit rendered base-36: collisions would
// serve one query's results for another, which is acceptable only because
// they are astronomically unlikely for this input space.
func DeriveSearchKey(query string, opts types.SearchOptions) string {
	normalized := utils.NormalizeQuery(query)

	serialized := fmt.Sprintf("community=%s&sort=%s&page=%d&limit=%d",
		opts.Community, opts.Sort, opts.Page, opts.Limit)

	h := fnv.New32a()
	h.Write([]byte(normalized))
	h.Write([]byte{':'})
	h.Write([]byte(serialized))

	return SearchKeyPrefix + strconv.FormatUint(uint64(h.Sum32()), 36)
}
