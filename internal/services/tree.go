package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"lessontalk/internal/models"
)

// maxAncestorDepth caps how far a reply chain is followed upwards. Stored
// data is depth 1; anything deeper predates reply flattening.
const maxAncestorDepth = 8

// RemarkView is a remark as a reader sees it.
type RemarkView struct {
	models.Remark
	Net        int    `json:"net"`
	ViewerVote string `json:"viewer_vote,omitempty"`
}

// Thread is a root remark with its replies, oldest reply first.
type Thread struct {
	RemarkView
	Replies []RemarkView `json:"replies"`
}

func newView(r models.Remark) RemarkView {
	if r.IsDeleted {
		r.Content = ""
	}
	return RemarkView{Remark: r, Net: r.Net()}
}

// TreeAssembler turns a scope's flat remarks into a two-level forest.
type TreeAssembler struct {
	store  *RemarkStore
	ledger *VoteLedger
	now    func() time.Time
	logger *slog.Logger
}

func NewTreeAssembler(store *RemarkStore, ledger *VoteLedger, logger *slog.Logger) *TreeAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeAssembler{
		store:  store,
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Assemble builds the forest for a scope. Replies whose root was
// soft-deleted stay under a placeholder for that root with its content
// hidden. viewerID may be empty for anonymous readers.
func (a *TreeAssembler) Assemble(ctx context.Context, scope models.Scope, viewerID string, policy OrderPolicy) ([]Thread, error) {
	if policy == "" {
		policy = OrderRecency
	}
	if _, err := ParseOrderPolicy(string(policy)); err != nil {
		return nil, err
	}

	live, err := a.store.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	known := make(map[string]models.Remark, len(live))
	replies := make([]models.Remark, 0)
	threads := make([]Thread, 0)
	index := make(map[string]int)
	for _, r := range live {
		known[r.ID] = r
		if r.IsReply() {
			replies = append(replies, r)
			continue
		}
		index[r.ID] = len(threads)
		threads = append(threads, Thread{RemarkView: newView(r), Replies: make([]RemarkView, 0)})
	}

	if err := a.resolveAncestors(ctx, replies, known); err != nil {
		return nil, err
	}

	for _, reply := range replies {
		root, ok := rootOf(reply, known)
		if !ok || root.Scope() != scope {
			a.logger.Warn("dropping reply without a resolvable root",
				"remark_id", reply.ID, "parent_id", *reply.ParentID, "scope", scope.String())
			continue
		}
		i, ok := index[root.ID]
		if !ok {
			// root is soft-deleted: keep its position as a placeholder
			i = len(threads)
			index[root.ID] = i
			threads = append(threads, Thread{RemarkView: newView(root), Replies: make([]RemarkView, 0)})
		}
		threads[i].Replies = append(threads[i].Replies, newView(reply))
	}

	for i := range threads {
		sortReplies(threads[i].Replies)
	}
	sortRemarks(threads, policy, a.now(), func(t *Thread) *models.Remark { return &t.Remark })

	if viewerID != "" && a.ledger != nil {
		if err := a.annotate(ctx, threads, viewerID); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

// resolveAncestors loads, soft-deleted rows included, every ancestor the
// replies point at that is not already known.
func (a *TreeAssembler) resolveAncestors(ctx context.Context, replies []models.Remark, known map[string]models.Remark) error {
	for depth := 0; depth < maxAncestorDepth; depth++ {
		missing := make(map[string]struct{})
		for _, reply := range replies {
			cur := reply
			for steps := 0; cur.IsReply() && steps < maxAncestorDepth; steps++ {
				parent, ok := known[*cur.ParentID]
				if !ok {
					missing[*cur.ParentID] = struct{}{}
					break
				}
				cur = parent
			}
		}
		if len(missing) == 0 {
			return nil
		}

		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		found, err := a.store.lookup(ctx, ids)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return nil
		}
		for _, r := range found {
			known[r.ID] = r
		}
	}
	return nil
}

// rootOf follows parent links to the top-most ancestor. Every hop must stay
// in the reply's scope.
func rootOf(reply models.Remark, known map[string]models.Remark) (models.Remark, bool) {
	scope := reply.Scope()
	cur := reply
	for steps := 0; steps < maxAncestorDepth; steps++ {
		parent, ok := known[*cur.ParentID]
		if !ok || parent.Scope() != scope {
			return models.Remark{}, false
		}
		if !parent.IsReply() {
			return parent, true
		}
		cur = parent
	}
	return models.Remark{}, false
}

func sortReplies(replies []RemarkView) {
	sort.SliceStable(replies, func(i, j int) bool {
		a, b := replies[i], replies[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (a *TreeAssembler) annotate(ctx context.Context, threads []Thread, viewerID string) error {
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
		for _, r := range t.Replies {
			ids = append(ids, r.ID)
		}
	}
	votes, err := a.ledger.ViewerVotes(ctx, viewerID, ids)
	if err != nil {
		return err
	}
	for i := range threads {
		threads[i].ViewerVote = votes[threads[i].ID]
		for j := range threads[i].Replies {
			threads[i].Replies[j].ViewerVote = votes[threads[i].Replies[j].ID]
		}
	}
	return nil
}
