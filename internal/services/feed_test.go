package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"lessontalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T, e *engine, labeler Labeler) *Aggregator {
	t.Helper()
	agg := NewAggregator(e.db, labeler, e.ledger, 2, 3, quietLogger)
	agg.now = func() time.Time { return e.clock.t }
	return agg
}

func feedIDs(items []FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFeedListsRootsAcrossScopes(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.db.Create(&models.Course{ID: "go-101", Title: "Go Basics"}).Error)
	require.NoError(t, e.db.Create(&models.Lesson{ID: "l-7", CourseID: "go-101", Title: "Channels"}).Error)

	a := e.root(t, models.CourseScope("go-101"), "alice", "course remark")
	e.reply(t, a, "bob", "reply one")
	gone := e.reply(t, a, "bob", "reply two")
	b := e.root(t, models.LessonScope("l-7"), "carol", "lesson remark")
	c := e.root(t, models.LessonScope("unlisted"), "dave", "no catalog entry")
	require.NoError(t, e.store.SoftDelete(ctx, gone.ID, Caller{UserID: "bob"}))

	labeler, err := NewCatalogLabeler(e.db, 10, 0, quietLogger)
	require.NoError(t, err)
	agg := NewAggregator(e.db, labeler, e.ledger, 10, 20, quietLogger)

	items, err := agg.List(ctx, FeedQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{c.ID, b.ID, a.ID}, feedIDs(items))

	assert.Equal(t, "lesson:unlisted", items[0].ScopeLabel)
	assert.Equal(t, "Channels", items[1].ScopeLabel)
	assert.Equal(t, models.LessonScope("l-7"), items[1].Scope)
	assert.Equal(t, "Go Basics", items[2].ScopeLabel)
	assert.Equal(t, 1, items[2].ReplyCount)
	assert.Equal(t, 0, items[0].ReplyCount)
}

func TestFeedOrderAndLimit(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	course := models.CourseScope("C")
	r1 := e.root(t, course, "a", "one")
	r2 := e.root(t, course, "a", "two")
	r3 := e.root(t, course, "a", "three")
	r4 := e.root(t, course, "a", "four")
	e.vote(t, "x", r2, models.VoteUp)
	e.vote(t, "y", r2, models.VoteUp)
	e.vote(t, "x", r1, models.VoteUp)
	e.vote(t, "x", r4, models.VoteDown)

	agg := newTestAggregator(t, e, nil)

	items, err := agg.List(ctx, FeedQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{r4.ID, r3.ID}, feedIDs(items), "default limit")

	items, err = agg.List(ctx, FeedQuery{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, items, 3, "clamped to max")

	items, err = agg.List(ctx, FeedQuery{Order: OrderHot, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{r2.ID, r1.ID, r3.ID}, feedIDs(items))

	items, err = agg.List(ctx, FeedQuery{Order: OrderTrending, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{r2.ID, r1.ID}, feedIDs(items))

	_, err = agg.List(ctx, FeedQuery{Order: "random"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFeedFilters(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	q, err := e.store.Create(ctx, CreateRemarkInput{
		AuthorID: "a", Scope: models.CourseScope("C"), Content: "how?", ContentType: models.ContentQuestion,
	})
	require.NoError(t, err)
	lq, err := e.store.Create(ctx, CreateRemarkInput{
		AuthorID: "a", Scope: models.LessonScope("L"), Content: "why?", ContentType: models.ContentQuestion,
	})
	require.NoError(t, err)
	e.root(t, models.CourseScope("C"), "a", "plain")

	agg := NewAggregator(e.db, nil, e.ledger, 10, 10, quietLogger)

	items, err := agg.List(ctx, FeedQuery{ContentType: models.ContentQuestion})
	require.NoError(t, err)
	assert.Equal(t, []string{lq.ID, q.ID}, feedIDs(items))

	items, err = agg.List(ctx, FeedQuery{ContentType: models.ContentQuestion, ScopeKind: models.ScopeCourse})
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, feedIDs(items))

	_, err = agg.List(ctx, FeedQuery{ContentType: "meme"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = agg.List(ctx, FeedQuery{ScopeKind: "module"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFeedViewerVotes(t *testing.T) {
	e := newEngine(t)
	r := e.root(t, models.CourseScope("C"), "a", "hello")
	e.vote(t, "viewer", r, models.VoteUp)

	agg := NewAggregator(e.db, nil, e.ledger, 10, 10, quietLogger)
	items, err := agg.List(context.Background(), FeedQuery{ViewerID: "viewer"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "up", items[0].ViewerVote)
	assert.Equal(t, 1, items[0].Net)
}

func TestFeedTrendingSkipsOldRoots(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	old := e.root(t, models.CourseScope("C"), "a", "last spring")
	e.vote(t, "x", old, models.VoteUp)

	agg := newTestAggregator(t, e, nil)
	later := e.clock.t.Add(8 * 24 * time.Hour)
	agg.now = func() time.Time { return later }

	items, err := agg.List(ctx, FeedQuery{Order: OrderTrending})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = agg.List(ctx, FeedQuery{Order: OrderHot})
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, feedIDs(items))

	e.clock.t = later.Add(-time.Hour)
	fresh := e.root(t, models.CourseScope("C"), "b", "this week")
	items, err = agg.List(ctx, FeedQuery{Order: OrderTrending})
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID}, feedIDs(items))
}

type failingLabeler struct{}

func (failingLabeler) Labels(context.Context, []models.Scope) (map[models.Scope]string, error) {
	return nil, errors.New("catalog offline")
}

func TestFeedPropagatesLabelerFailure(t *testing.T) {
	e := newEngine(t)
	e.root(t, models.CourseScope("C"), "a", "hello")

	agg := NewAggregator(e.db, failingLabeler{}, e.ledger, 10, 10, quietLogger)
	_, err := agg.List(context.Background(), FeedQuery{})
	assert.EqualError(t, err, "catalog offline")
}
