package services

import (
	"sort"
	"strings"
	"time"

	"lessontalk/internal/models"
	"lessontalk/internal/utils"
)

// OrderPolicy decides how root remarks are ranked.
type OrderPolicy string

const (
	OrderRecency  OrderPolicy = "recency"
	OrderHot      OrderPolicy = "hot"
	OrderTrending OrderPolicy = "trending"
)

// trendingWindow bounds the candidate set the feed scores in memory. Roots
// older than the window never appear under trending, so a feed whose
// discussion has all gone quiet for a week comes back empty in that order
// while recency and hot still list it.
const trendingWindow = 7 * 24 * time.Hour

// ParseOrderPolicy maps a query value to a policy; empty means recency.
func ParseOrderPolicy(raw string) (OrderPolicy, error) {
	switch p := OrderPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return OrderRecency, nil
	case OrderRecency, OrderHot, OrderTrending:
		return p, nil
	default:
		return "", validationf("unknown order policy %q", raw)
	}
}

// newerFirst is the shared tie-break: created_at descending, then id so
// equal timestamps still sort deterministically.
func newerFirst(a, b *models.Remark) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// less reports whether a ranks ahead of b under the policy.
func (p OrderPolicy) less(a, b *models.Remark, now time.Time) bool {
	switch p {
	case OrderHot:
		if a.Net() != b.Net() {
			return a.Net() > b.Net()
		}
	case OrderTrending:
		sa := utils.TrendingScore(a.CreatedAt, a.Upvotes, a.Downvotes, now)
		sb := utils.TrendingScore(b.CreatedAt, b.Upvotes, b.Downvotes, now)
		if sa != sb {
			return sa > sb
		}
	}
	return newerFirst(a, b)
}

// sortRemarks orders remarks in place; key extracts the remark from each element.
func sortRemarks[T any](items []T, policy OrderPolicy, now time.Time, key func(*T) *models.Remark) {
	sort.SliceStable(items, func(i, j int) bool {
		return policy.less(key(&items[i]), key(&items[j]), now)
	})
}
