package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lessontalk/internal/lock"
	"lessontalk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Applied string

const (
	AppliedCast      Applied = "cast"
	AppliedRetracted Applied = "retracted"
	AppliedFlipped   Applied = "flipped"
)

// ViewerNone is the viewer vote of a user with no row for a remark.
const ViewerNone = "none"

const DefaultVoteMaxAttempts = 3

var lockingUpdate = clause.Locking{Strength: "UPDATE"}

// errRetry marks a conditional write that lost a race; the toggle starts over
// with a fresh read.
var errRetry = errors.New("vote changed concurrently")

type ToggleResult struct {
	Applied    Applied `json:"applied"`
	Upvotes    int     `json:"upvotes"`
	Downvotes  int     `json:"downvotes"`
	ViewerVote string  `json:"viewer_vote"`
}

func (r ToggleResult) Net() int {
	return r.Upvotes - r.Downvotes
}

// VoteLedger holds at most one vote per (user, remark) and flips it through
// the toggle protocol.
type VoteLedger struct {
	db          *gorm.DB
	tally       *Tally
	locker      lock.Locker
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

func NewVoteLedger(db *gorm.DB, tally *Tally, locker lock.Locker, maxAttempts int, logger *slog.Logger) *VoteLedger {
	if maxAttempts < 1 {
		maxAttempts = DefaultVoteMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tally == nil {
		tally = NewTally(db, logger)
	}
	return &VoteLedger{
		db:          db,
		tally:       tally,
		locker:      locker,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

func pairKey(userID, remarkID string) string {
	return "vote:" + userID + ":" + remarkID
}

// Toggle casts, retracts or flips the user's vote on a remark and updates the
// remark's counters in the same transaction.
func (l *VoteLedger) Toggle(ctx context.Context, userID, remarkID string, voteType models.VoteType) (ToggleResult, error) {
	if userID == "" {
		return ToggleResult{}, validationf("user is required")
	}
	if remarkID == "" {
		return ToggleResult{}, validationf("remark is required")
	}
	if !voteType.Valid() {
		return ToggleResult{}, validationf("unknown vote type %q", voteType)
	}

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, pairKey(userID, remarkID))
		if err != nil {
			if errors.Is(err, lock.ErrTimeout) {
				l.logger.Warn("vote toggle lock timeout", "user_id", userID, "remark_id", remarkID)
				return ToggleResult{}, conflictf(err, "another vote on this remark is in progress")
			}
			return ToggleResult{}, fmt.Errorf("acquire vote lock: %w", err)
		}
		defer unlock()
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		result, err := l.toggleOnce(ctx, userID, remarkID, voteType)
		if err == nil {
			l.logger.Info("vote toggled",
				"user_id", userID,
				"remark_id", remarkID,
				"vote_type", voteType,
				"applied", result.Applied,
				"attempt", attempt,
			)
			return result, nil
		}
		if !errors.Is(err, errRetry) {
			return ToggleResult{}, err
		}
		lastErr = err
		l.logger.Debug("vote toggle retry", "user_id", userID, "remark_id", remarkID, "attempt", attempt)
	}

	l.logger.Warn("vote toggle conflict", "user_id", userID, "remark_id", remarkID, "attempts", l.maxAttempts)
	return ToggleResult{}, conflictf(lastErr, "vote could not be applied after %d attempts", l.maxAttempts)
}

func (l *VoteLedger) toggleOnce(ctx context.Context, userID, remarkID string, voteType models.VoteType) (ToggleResult, error) {
	var result ToggleResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var remark models.Remark
		err := tx.Clauses(lockingUpdate).
			Select("id, is_deleted").
			Where("id = ?", remarkID).
			Take(&remark).Error
		if err != nil {
			if isNotFound(err) {
				return validationf("remark %s does not exist", remarkID)
			}
			return fmt.Errorf("load remark: %w", err)
		}
		if remark.IsDeleted {
			return validationf("remark %s is deleted", remarkID)
		}

		var existing models.Vote
		found := true
		err = tx.Where("user_id = ? AND remark_id = ?", userID, remarkID).Take(&existing).Error
		if err != nil {
			if !isNotFound(err) {
				return fmt.Errorf("load vote: %w", err)
			}
			found = false
		}

		now := l.now()
		var oldType models.VoteType
		switch {
		case !found:
			vote := models.Vote{UserID: userID, RemarkID: remarkID, VoteType: voteType, CreatedAt: now, UpdatedAt: now}
			if err := tx.Create(&vote).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errRetry
				}
				return fmt.Errorf("insert vote: %w", err)
			}
			result.Applied = AppliedCast
			result.ViewerVote = string(voteType)

		case existing.VoteType == voteType:
			res := tx.Where("user_id = ? AND remark_id = ? AND vote_type = ?", userID, remarkID, voteType).
				Delete(&models.Vote{})
			if res.Error != nil {
				return fmt.Errorf("delete vote: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errRetry
			}
			oldType = existing.VoteType
			result.Applied = AppliedRetracted
			result.ViewerVote = ViewerNone

		default:
			res := tx.Model(&models.Vote{}).
				Where("user_id = ? AND remark_id = ? AND vote_type = ?", userID, remarkID, existing.VoteType).
				Updates(map[string]any{"vote_type": voteType, "updated_at": now})
			if res.Error != nil {
				return fmt.Errorf("update vote: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errRetry
			}
			oldType = existing.VoteType
			result.Applied = AppliedFlipped
			result.ViewerVote = string(voteType)
		}

		up, down := delta(result.Applied, voteType, oldType)
		counts, err := l.tally.apply(tx, remarkID, up, down)
		if err != nil {
			return err
		}
		result.Upvotes, result.Downvotes = counts.Upvotes, counts.Downvotes
		return nil
	})
	return result, err
}

// VoteOf returns the user's vote on a remark, or ViewerNone.
func (l *VoteLedger) VoteOf(ctx context.Context, userID, remarkID string) (string, error) {
	votes, err := l.ViewerVotes(ctx, userID, []string{remarkID})
	if err != nil {
		return "", err
	}
	return votes[remarkID], nil
}

// ViewerVotes maps every requested remark id to the user's vote on it, with
// ViewerNone for remarks the user has not voted on.
func (l *VoteLedger) ViewerVotes(ctx context.Context, userID string, remarkIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(remarkIDs))
	for _, id := range remarkIDs {
		out[id] = ViewerNone
	}
	if userID == "" || len(remarkIDs) == 0 {
		return out, nil
	}

	var votes []models.Vote
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND remark_id IN ?", userID, remarkIDs).
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("load viewer votes: %w", err)
	}
	for _, v := range votes {
		out[v.RemarkID] = string(v.VoteType)
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
