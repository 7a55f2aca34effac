package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lessontalk/internal/db"
	"lessontalk/internal/lock"
	"lessontalk/internal/middleware"
	"lessontalk/internal/models"
	"lessontalk/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t       *testing.T
	engine  *gin.Engine
	cookies map[string][]*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	conn, err := db.Open(db.TypeSQLite, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	require.NoError(t, conn.Create(&models.Course{ID: "go-101", Title: "Go Basics"}).Error)

	store := services.NewRemarkStore(conn, 1000, logger)
	tally := services.NewTally(conn, logger)
	ledger := services.NewVoteLedger(conn, tally, lock.NewLocal(time.Second), 3, logger)
	labeler, err := services.NewCatalogLabeler(conn, 10, time.Minute, logger)
	require.NoError(t, err)

	r := New(Services{
		DB:      conn,
		Remarks: store,
		Votes:   ledger,
		Tree:    services.NewTreeAssembler(store, ledger, logger),
		Feed:    services.NewAggregator(conn, labeler, ledger, 10, 50, logger),
	}, Options{
		SessionName:   "test_session",
		SessionSecret: "test-secret",
		ElevatedRoles: []string{"moderator"},
		Logger:        logger,
	})

	// stands in for the sign-in service that shares the cookie store
	r.POST("/test/login/:id/:role", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(middleware.SessionUserID, c.Param("id"))
		s.Set(middleware.SessionRole, c.Param("role"))
		if err := s.Save(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	return &testServer{t: t, engine: r, cookies: map[string][]*http.Cookie{}}
}

func (s *testServer) login(user, role string) {
	w := s.do("", http.MethodPost, "/test/login/"+user+"/"+role, nil)
	require.Equal(s.t, http.StatusNoContent, w.Code)
	s.cookies[user] = w.Result().Cookies()
}

func (s *testServer) do(user, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range s.cookies[user] {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type remarkJSON struct {
	ID          string       `json:"id"`
	ParentID    string       `json:"parent_id"`
	Content     string       `json:"content"`
	ContentType string       `json:"content_type"`
	Upvotes     int          `json:"upvotes"`
	Downvotes   int          `json:"downvotes"`
	Net         int          `json:"net"`
	IsDeleted   bool         `json:"is_deleted"`
	ViewerVote  string       `json:"viewer_vote"`
	Replies     []remarkJSON `json:"replies"`
	ScopeLabel  string       `json:"scope_label"`
	ReplyCount  int          `json:"reply_count"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do("", http.MethodGet, "/api/health", nil).Code)

	w := s.do("", http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
}

func TestWritesRequireSession(t *testing.T) {
	s := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/courses/go-101/remarks"},
		{http.MethodPost, "/api/lessons/l1/remarks"},
		{http.MethodDelete, "/api/remarks/x"},
		{http.MethodPost, "/api/remarks/x/votes"},
	} {
		w := s.do("", tc.method, tc.path, map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.path)
		assert.Equal(t, "unauthorized", decode[map[string]any](t, w)["code"])
	}
}

func TestRemarkVoteAndTreeFlow(t *testing.T) {
	s := newTestServer(t)
	s.login("alice", "student")
	s.login("bob", "student")

	w := s.do("alice", http.MethodPost, "/api/courses/go-101/remarks",
		map[string]string{"content": "What is a goroutine?", "content_type": "question"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	root := decode[remarkJSON](t, w)
	assert.Equal(t, "question", root.ContentType)
	assert.Zero(t, root.Upvotes)

	w = s.do("bob", http.MethodPost, "/api/courses/go-101/remarks",
		map[string]string{"content": "A lightweight thread.", "parent_id": root.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reply := decode[remarkJSON](t, w)
	assert.Equal(t, root.ID, reply.ParentID)

	w = s.do("bob", http.MethodPost, "/api/remarks/"+root.ID+"/votes", map[string]string{"vote_type": "up"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"applied":"cast","upvotes":1,"downvotes":0,"net":1,"viewer_vote":"up"}`, w.Body.String())

	w = s.do("bob", http.MethodGet, "/api/courses/go-101/remarks?order=hot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[struct {
		Order   string       `json:"order"`
		Remarks []remarkJSON `json:"remarks"`
	}](t, w)
	assert.Equal(t, "hot", tree.Order)
	require.Len(t, tree.Remarks, 1)
	assert.Equal(t, root.ID, tree.Remarks[0].ID)
	assert.Equal(t, 1, tree.Remarks[0].Net)
	assert.Equal(t, "up", tree.Remarks[0].ViewerVote)
	require.Len(t, tree.Remarks[0].Replies, 1)
	assert.Equal(t, reply.ID, tree.Remarks[0].Replies[0].ID)
	assert.Equal(t, "none", tree.Remarks[0].Replies[0].ViewerVote)

	w = s.do("bob", http.MethodPost, "/api/remarks/"+root.ID+"/votes", map[string]string{"vote_type": "up"})
	assert.JSONEq(t, `{"applied":"retracted","upvotes":0,"downvotes":0,"net":0,"viewer_vote":"none"}`, w.Body.String())

	w = s.do("", http.MethodGet, "/api/discussions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[struct {
		Discussions []remarkJSON `json:"discussions"`
	}](t, w)
	require.Len(t, feed.Discussions, 1)
	assert.Equal(t, "Go Basics", feed.Discussions[0].ScopeLabel)
	assert.Equal(t, 1, feed.Discussions[0].ReplyCount)
	assert.Empty(t, feed.Discussions[0].ViewerVote)
}

func TestDeletePermissions(t *testing.T) {
	s := newTestServer(t)
	s.login("alice", "student")
	s.login("bob", "student")
	s.login("mod", "moderator")

	w := s.do("alice", http.MethodPost, "/api/lessons/l1/remarks", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	r := decode[remarkJSON](t, w)
	w = s.do("bob", http.MethodPost, "/api/lessons/l1/remarks", map[string]string{"content": "reply", "parent_id": r.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do("bob", http.MethodDelete, "/api/remarks/"+r.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode[map[string]any](t, w)["code"])

	w = s.do("mod", http.MethodDelete, "/api/remarks/"+r.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do("alice", http.MethodDelete, "/api/remarks/"+r.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusNotFound, s.do("", http.MethodGet, "/api/remarks/"+r.ID, nil).Code)

	w = s.do("", http.MethodGet, "/api/lessons/l1/remarks", nil)
	tree := decode[struct {
		Remarks []remarkJSON `json:"remarks"`
	}](t, w)
	require.Len(t, tree.Remarks, 1)
	assert.True(t, tree.Remarks[0].IsDeleted)
	assert.Empty(t, tree.Remarks[0].Content)
	assert.Len(t, tree.Remarks[0].Replies, 1)
}

func TestValidationResponses(t *testing.T) {
	s := newTestServer(t)
	s.login("alice", "student")

	w := s.do("alice", http.MethodPost, "/api/courses/go-101/remarks", map[string]string{"content_type": "rant"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Equal(t, "validation", body.Code)
	assert.Equal(t, "is required", body.Fields["content"])
	assert.Contains(t, body.Fields["content_type"], "must be one of")

	w = s.do("alice", http.MethodPost, "/api/courses/go-101/remarks", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("alice", http.MethodPost, "/api/remarks/missing/votes", map[string]string{"vote_type": "up"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("alice", http.MethodPost, "/api/remarks/missing/votes", map[string]string{"vote_type": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("", http.MethodGet, "/api/discussions?order=loudest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("", http.MethodGet, "/api/courses/go-101/remarks?order=loudest", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemarksByQueryScope(t *testing.T) {
	s := newTestServer(t)
	s.login("alice", "student")

	w := s.do("alice", http.MethodPost, "/api/remarks", map[string]string{"lesson_id": "go-101-03", "content": "stuck on closures"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[remarkJSON](t, w)

	w = s.do("", http.MethodGet, "/api/remarks?lesson_id=go-101-03", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Remarks []remarkJSON `json:"remarks"`
	}](t, w)
	require.Len(t, listed.Remarks, 1)
	assert.Equal(t, created.ID, listed.Remarks[0].ID)

	w = s.do("", http.MethodGet, "/api/lessons/go-101-03/remarks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Remarks []remarkJSON `json:"remarks"`
	}](t, w).Remarks, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"list with both ids", http.MethodGet, "/api/remarks?course_id=go-101&lesson_id=go-101-03", nil},
		{"list with no id", http.MethodGet, "/api/remarks", nil},
		{"create with both ids", http.MethodPost, "/api/remarks", map[string]string{"course_id": "go-101", "lesson_id": "go-101-03", "content": "hi"}},
		{"create with no id", http.MethodPost, "/api/remarks", map[string]string{"content": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do("alice", tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestGetRemarkShowsOwnVote(t *testing.T) {
	s := newTestServer(t)
	s.login("alice", "student")
	s.login("bob", "student")

	w := s.do("alice", http.MethodPost, "/api/courses/go-101/remarks", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	r := decode[remarkJSON](t, w)

	w = s.do("bob", http.MethodPost, "/api/remarks/"+r.ID+"/votes", map[string]string{"vote_type": "down"})
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[remarkJSON](t, s.do("bob", http.MethodGet, "/api/remarks/"+r.ID, nil))
	assert.Equal(t, "down", got.ViewerVote)
	assert.Equal(t, -1, got.Net)

	got = decode[remarkJSON](t, s.do("alice", http.MethodGet, "/api/remarks/"+r.ID, nil))
	assert.Equal(t, services.ViewerNone, got.ViewerVote)

	got = decode[remarkJSON](t, s.do("", http.MethodGet, "/api/remarks/"+r.ID, nil))
	assert.Empty(t, got.ViewerVote)
}
