package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lessontalk/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultFeedLimit = 30
	MaxFeedLimit     = 100

	// trendingCandidates caps how many recent roots the trending feed scores.
	trendingCandidates = 500
)

type FeedQuery struct {
	Order       OrderPolicy
	Limit       int
	ContentType models.ContentType
	ScopeKind   models.ScopeKind
	ViewerID    string
}

// FeedItem is a root remark enriched with where it lives.
type FeedItem struct {
	RemarkView
	Scope      models.Scope `json:"scope"`
	ScopeLabel string       `json:"scope_label"`
	ReplyCount int          `json:"reply_count"`
}

// Aggregator lists root remarks across every scope for discovery pages.
type Aggregator struct {
	db           *gorm.DB
	labeler      Labeler
	ledger       *VoteLedger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
	logger       *slog.Logger
}

func NewAggregator(db *gorm.DB, labeler Labeler, ledger *VoteLedger, defaultLimit, maxLimit int, logger *slog.Logger) *Aggregator {
	if defaultLimit <= 0 {
		defaultLimit = DefaultFeedLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = max(defaultLimit, MaxFeedLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		db:           db,
		labeler:      labeler,
		ledger:       ledger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

func (a *Aggregator) clampLimit(limit int) int {
	if limit <= 0 {
		return a.defaultLimit
	}
	return min(limit, a.maxLimit)
}

// List returns live root remarks ordered by q.Order, each labelled with its
// scope. Replies never appear as rows; they only count towards ReplyCount.
func (a *Aggregator) List(ctx context.Context, q FeedQuery) ([]FeedItem, error) {
	policy := q.Order
	if policy == "" {
		policy = OrderRecency
	}
	if _, err := ParseOrderPolicy(string(policy)); err != nil {
		return nil, err
	}
	if q.ContentType != "" && !q.ContentType.Valid() {
		return nil, validationf("unknown content type %q", q.ContentType)
	}
	limit := a.clampLimit(q.Limit)
	now := a.now()

	query := a.db.WithContext(ctx).Model(&models.Remark{}).
		Where("parent_id IS NULL AND is_deleted = ?", false)
	if q.ContentType != "" {
		query = query.Where("content_type = ?", q.ContentType)
	}
	switch q.ScopeKind {
	case "":
	case models.ScopeCourse:
		query = query.Where("course_id IS NOT NULL")
	case models.ScopeLesson:
		query = query.Where("lesson_id IS NOT NULL")
	default:
		return nil, validationf("unknown scope kind %q", q.ScopeKind)
	}

	switch policy {
	case OrderHot:
		query = query.Order("(upvotes - downvotes) DESC").Order("created_at DESC").Order("id DESC").Limit(limit)
	case OrderTrending:
		query = query.Where("created_at >= ?", now.Add(-trendingWindow)).
			Order("created_at DESC").Order("id DESC").
			Limit(max(trendingCandidates, limit))
	default:
		query = query.Order("created_at DESC").Order("id DESC").Limit(limit)
	}

	var remarks []models.Remark
	if err := query.Find(&remarks).Error; err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	if policy == OrderTrending {
		sortRemarks(remarks, policy, now, func(r *models.Remark) *models.Remark { return r })
		if len(remarks) > limit {
			remarks = remarks[:limit]
		}
	}

	items := make([]FeedItem, len(remarks))
	for i, r := range remarks {
		items[i] = FeedItem{RemarkView: newView(r), Scope: r.Scope()}
	}
	if len(items) == 0 {
		return items, nil
	}

	if err := a.fillReplyCounts(ctx, items); err != nil {
		return nil, err
	}
	if err := a.fillLabels(ctx, items); err != nil {
		return nil, err
	}
	if q.ViewerID != "" && a.ledger != nil {
		ids := make([]string, len(items))
		for i := range items {
			ids[i] = items[i].ID
		}
		votes, err := a.ledger.ViewerVotes(ctx, q.ViewerID, ids)
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i].ViewerVote = votes[items[i].ID]
		}
	}
	return items, nil
}

func (a *Aggregator) fillReplyCounts(ctx context.Context, items []FeedItem) error {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	var results []struct {
		ParentID string
		Count    int
	}
	err := a.db.WithContext(ctx).Model(&models.Remark{}).
		Select("parent_id, COUNT(*) as count").
		Where("parent_id IN ? AND is_deleted = ?", ids, false).
		Group("parent_id").
		Scan(&results).Error
	if err != nil {
		return fmt.Errorf("count replies: %w", err)
	}

	counts := make(map[string]int, len(results))
	for _, r := range results {
		counts[r.ParentID] = r.Count
	}
	for i := range items {
		items[i].ReplyCount = counts[items[i].ID]
	}
	return nil
}

// fillLabels names each item's scope, falling back to "kind:id" when the
// catalog has no title.
func (a *Aggregator) fillLabels(ctx context.Context, items []FeedItem) error {
	labels := map[models.Scope]string{}
	if a.labeler != nil {
		scopes := make([]models.Scope, len(items))
		for i := range items {
			scopes[i] = items[i].Scope
		}
		var err error
		labels, err = a.labeler.Labels(ctx, scopes)
		if err != nil {
			a.logger.Error("scope label lookup failed", "error", err)
			return err
		}
	}
	for i := range items {
		if label, ok := labels[items[i].Scope]; ok {
			items[i].ScopeLabel = label
		} else {
			items[i].ScopeLabel = items[i].Scope.String()
		}
	}
	return nil
}
