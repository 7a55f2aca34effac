package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"lessontalk/internal/db"
	"lessontalk/internal/lock"
	"lessontalk/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type engine struct {
	db     *gorm.DB
	store  *RemarkStore
	tally  *Tally
	ledger *VoteLedger
	tree   *TreeAssembler
	clock  *fakeClock
}

// fakeClock hands out strictly increasing timestamps so created_at ordering
// is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(db.TypeSQLite, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	conn := newTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	store := NewRemarkStore(conn, 200, quietLogger)
	store.now = clock.Now
	tally := NewTally(conn, quietLogger)
	ledger := NewVoteLedger(conn, tally, lock.NewLocal(2*time.Second), 3, quietLogger)
	tree := NewTreeAssembler(store, ledger, quietLogger)
	tree.now = func() time.Time { return clock.t }

	return &engine{db: conn, store: store, tally: tally, ledger: ledger, tree: tree, clock: clock}
}

func (e *engine) root(t *testing.T, scope models.Scope, author, content string) *models.Remark {
	t.Helper()
	r, err := e.store.Create(context.Background(), CreateRemarkInput{
		AuthorID: author, Scope: scope, Content: content, ContentType: models.ContentPlain,
	})
	require.NoError(t, err)
	return r
}

func (e *engine) reply(t *testing.T, parent *models.Remark, author, content string) *models.Remark {
	t.Helper()
	r, err := e.store.Create(context.Background(), CreateRemarkInput{
		AuthorID: author, Scope: parent.Scope(), ParentID: parent.ID, Content: content,
	})
	require.NoError(t, err)
	return r
}

func (e *engine) vote(t *testing.T, user string, r *models.Remark, vt models.VoteType) ToggleResult {
	t.Helper()
	res, err := e.ledger.Toggle(context.Background(), user, r.ID, vt)
	require.NoError(t, err)
	return res
}

func (e *engine) reload(t *testing.T, id string) models.Remark {
	t.Helper()
	var r models.Remark
	require.NoError(t, e.db.Where("id = ?", id).Take(&r).Error)
	return r
}

func (e *engine) voteRows(t *testing.T, user, remarkID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Vote{}).
		Where("user_id = ? AND remark_id = ?", user, remarkID).Count(&n).Error)
	return n
}

func users(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user-%02d", i)
	}
	return out
}
