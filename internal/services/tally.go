package services

import (
	"context"
	"fmt"
	"log/slog"

	"lessontalk/internal/models"

	"gorm.io/gorm"
)

// Tally keeps remarks.upvotes/downvotes equal to the vote rows behind them.
// Toggle calls apply inside its own transaction; Recount repairs drift by
// full aggregation.
type Tally struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewTally(db *gorm.DB, logger *slog.Logger) *Tally {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tally{db: db, logger: logger}
}

// Counts is the stored and the aggregated view of one remark's votes.
type Counts struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

type Drift struct {
	RemarkID string `json:"remark_id"`
	Stored   Counts `json:"stored"`
	Actual   Counts `json:"actual"`
}

func (d Drift) Consistent() bool {
	return d.Stored == d.Actual
}

// delta returns the counter changes an outcome implies.
func delta(applied Applied, newType, oldType models.VoteType) (up, down int) {
	bump := func(t models.VoteType, n int) {
		if t == models.VoteUp {
			up += n
		} else {
			down += n
		}
	}
	switch applied {
	case AppliedCast:
		bump(newType, 1)
	case AppliedRetracted:
		bump(oldType, -1)
	case AppliedFlipped:
		bump(newType.Opposite(), -1)
		bump(newType, 1)
	}
	return up, down
}

// apply shifts the cached counters within tx and returns the new values.
func (t *Tally) apply(tx *gorm.DB, remarkID string, up, down int) (Counts, error) {
	err := tx.Model(&models.Remark{}).
		Where("id = ?", remarkID).
		UpdateColumns(map[string]any{
			"upvotes":   gorm.Expr("upvotes + ?", up),
			"downvotes": gorm.Expr("downvotes + ?", down),
		}).Error
	if err != nil {
		return Counts{}, fmt.Errorf("update tally: %w", err)
	}
	return t.stored(tx, remarkID)
}

func (t *Tally) stored(tx *gorm.DB, remarkID string) (Counts, error) {
	var c Counts
	err := tx.Model(&models.Remark{}).
		Select("upvotes, downvotes").
		Where("id = ?", remarkID).
		Take(&c).Error
	if err != nil {
		return Counts{}, fmt.Errorf("read tally: %w", err)
	}
	return c, nil
}

func (t *Tally) actual(tx *gorm.DB, remarkID string) (Counts, error) {
	var rows []struct {
		VoteType models.VoteType
		Total    int
	}
	err := tx.Model(&models.Vote{}).
		Select("vote_type, count(*) as total").
		Where("remark_id = ?", remarkID).
		Group("vote_type").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, fmt.Errorf("count votes: %w", err)
	}
	var c Counts
	for _, row := range rows {
		switch row.VoteType {
		case models.VoteUp:
			c.Upvotes = row.Total
		case models.VoteDown:
			c.Downvotes = row.Total
		}
	}
	return c, nil
}

// Verify compares a remark's cached counters against its vote rows.
func (t *Tally) Verify(ctx context.Context, remarkID string) (Drift, error) {
	drift := Drift{RemarkID: remarkID}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Remark{}).Where("id = ?", remarkID).Count(&exists).Error; err != nil {
			return fmt.Errorf("find remark: %w", err)
		}
		if exists == 0 {
			return notFoundf("remark %s not found", remarkID)
		}
		var err error
		if drift.Stored, err = t.stored(tx, remarkID); err != nil {
			return err
		}
		drift.Actual, err = t.actual(tx, remarkID)
		return err
	})
	return drift, err
}

// Recount overwrites a remark's counters with the aggregated vote rows.
func (t *Tally) Recount(ctx context.Context, remarkID string) (Drift, error) {
	drift := Drift{RemarkID: remarkID}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var remark models.Remark
		err := tx.Clauses(lockingUpdate).
			Select("id, upvotes, downvotes").
			Where("id = ?", remarkID).
			Take(&remark).Error
		if err != nil {
			if isNotFound(err) {
				return notFoundf("remark %s not found", remarkID)
			}
			return fmt.Errorf("load remark: %w", err)
		}
		drift.Stored = Counts{Upvotes: remark.Upvotes, Downvotes: remark.Downvotes}
		if drift.Actual, err = t.actual(tx, remarkID); err != nil {
			return err
		}
		if drift.Consistent() {
			return nil
		}
		return tx.Model(&models.Remark{}).
			Where("id = ?", remarkID).
			UpdateColumns(map[string]any{
				"upvotes":   drift.Actual.Upvotes,
				"downvotes": drift.Actual.Downvotes,
			}).Error
	})
	if err != nil {
		return drift, err
	}
	if !drift.Consistent() {
		t.logger.Warn("tally repaired",
			"remark_id", remarkID,
			"stored_up", drift.Stored.Upvotes, "stored_down", drift.Stored.Downvotes,
			"actual_up", drift.Actual.Upvotes, "actual_down", drift.Actual.Downvotes,
		)
	}
	return drift, nil
}

// RecountAll walks every remark, soft-deleted ones included, in id batches
// and returns the ones that had drifted.
func (t *Tally) RecountAll(ctx context.Context, batchSize int) ([]Drift, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	repaired := make([]Drift, 0)
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		var ids []string
		err := t.db.WithContext(ctx).Model(&models.Remark{}).
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return repaired, fmt.Errorf("list remark ids: %w", err)
		}
		for _, id := range ids {
			drift, err := t.Recount(ctx, id)
			if err != nil {
				if KindOf(err) == KindNotFound {
					continue
				}
				return repaired, err
			}
			if !drift.Consistent() {
				repaired = append(repaired, drift)
			}
		}
		if len(ids) < batchSize {
			break
		}
		lastID = ids[len(ids)-1]
	}
	t.logger.Info("recount finished", "repaired", len(repaired))
	return repaired, nil
}
