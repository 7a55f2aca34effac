package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"lessontalk/internal/models"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

const DefaultContentMaxLength = 5000

// RemarkStore persists remarks and their soft-delete flag.
type RemarkStore struct {
	db        *gorm.DB
	policy    *bluemonday.Policy
	maxLength int
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

func NewRemarkStore(db *gorm.DB, maxLength int, logger *slog.Logger) *RemarkStore {
	if maxLength <= 0 {
		maxLength = DefaultContentMaxLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemarkStore{
		db:        db,
		policy:    bluemonday.StrictPolicy(),
		maxLength: maxLength,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		logger:    logger,
	}
}

type CreateRemarkInput struct {
	AuthorID    string
	Scope       models.Scope
	ParentID    string
	Content     string
	ContentType models.ContentType
}

// ScopeFromIDs builds a scope from the two optional catalog keys, requiring
// exactly one of them.
func ScopeFromIDs(courseID, lessonID string) (models.Scope, error) {
	courseID, lessonID = strings.TrimSpace(courseID), strings.TrimSpace(lessonID)
	switch {
	case courseID != "" && lessonID != "":
		return models.Scope{}, validationf("scope is ambiguous: both course and lesson given")
	case courseID != "":
		return models.CourseScope(courseID), nil
	case lessonID != "":
		return models.LessonScope(lessonID), nil
	default:
		return models.Scope{}, validationf("scope is required")
	}
}

// Create validates and stores a new remark with zeroed counters. A parent
// that is itself a reply is replaced by that reply's root.
func (s *RemarkStore) Create(ctx context.Context, in CreateRemarkInput) (*models.Remark, error) {
	if strings.TrimSpace(in.AuthorID) == "" {
		return nil, validationf("author is required")
	}
	if !in.Scope.Valid() {
		return nil, validationf("scope is required")
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = models.ContentPlain
	}
	if !contentType.Valid() {
		return nil, validationf("unknown content type %q", in.ContentType)
	}

	content, err := s.cleanContent(in.Content)
	if err != nil {
		return nil, err
	}

	remark := models.Remark{
		ID:          s.newID(),
		AuthorID:    in.AuthorID,
		Content:     content,
		ContentType: contentType,
		CreatedAt:   s.now(),
	}
	in.Scope.Apply(&remark)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID := strings.TrimSpace(in.ParentID); parentID != "" {
			rootID, err := s.resolveParent(tx, parentID, in.Scope)
			if err != nil {
				return err
			}
			remark.ParentID = &rootID
		}
		return tx.Create(&remark).Error
	})
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("create remark: %w", err)
	}

	s.logger.Info("remark created",
		"remark_id", remark.ID,
		"author_id", remark.AuthorID,
		"scope", in.Scope.String(),
		"content_type", remark.ContentType,
		"reply", remark.IsReply(),
	)
	return &remark, nil
}

func (s *RemarkStore) cleanContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", validationf("content is required")
	}
	content, ok := stripMarkup(s.policy, content)
	if !ok {
		return "", validationf("content is nested in too many layers of entities")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", validationf("content is empty once markup is removed")
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return "", validationf("content exceeds %d characters", s.maxLength)
	}
	return content, nil
}

// resolveParent checks the parent is live and in scope and returns the id
// the reply should hang under.
func (s *RemarkStore) resolveParent(tx *gorm.DB, parentID string, scope models.Scope) (string, error) {
	var parent models.Remark
	if err := tx.Where("id = ?", parentID).Take(&parent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", validationf("parent remark %s does not exist", parentID)
		}
		return "", fmt.Errorf("load parent remark: %w", err)
	}
	if parent.IsDeleted {
		return "", validationf("parent remark %s is deleted", parentID)
	}
	if parent.Scope() != scope {
		return "", validationf("parent remark %s belongs to a different scope", parentID)
	}
	if parent.IsReply() {
		return *parent.ParentID, nil
	}
	return parent.ID, nil
}

// Get returns a live remark.
func (s *RemarkStore) Get(ctx context.Context, remarkID string) (*models.Remark, error) {
	var remark models.Remark
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", remarkID, false).
		Take(&remark).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("remark %s not found", remarkID)
		}
		return nil, fmt.Errorf("get remark: %w", err)
	}
	return &remark, nil
}

// SoftDelete flags a remark deleted. Only its author or an elevated caller
// may do so; the row itself is kept.
func (s *RemarkStore) SoftDelete(ctx context.Context, remarkID string, requester Caller) error {
	if requester.Anonymous() {
		return forbiddenf("anonymous callers cannot delete remarks")
	}

	var remark models.Remark
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(lockingUpdate).
			Where("id = ?", remarkID).
			Take(&remark).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && remark.IsDeleted) {
			return notFoundf("remark %s not found", remarkID)
		}
		if err != nil {
			return fmt.Errorf("load remark: %w", err)
		}

		if remark.AuthorID != requester.UserID && !requester.Elevated {
			return forbiddenf("only the author or a moderator may delete this remark")
		}

		now := s.now()
		result := tx.Model(&models.Remark{}).
			Where("id = ? AND is_deleted = ?", remarkID, false).
			Updates(map[string]any{
				"is_deleted": true,
				"deleted_by": requester.UserID,
				"deleted_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("soft delete remark: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFoundf("remark %s not found", remarkID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("remark deleted",
		"remark_id", remarkID,
		"requester_id", requester.UserID,
		"elevated", requester.Elevated && remark.AuthorID != requester.UserID,
	)
	return nil
}

// ListByScope returns the live remarks of a scope in no particular order.
func (s *RemarkStore) ListByScope(ctx context.Context, scope models.Scope) ([]models.Remark, error) {
	if !scope.Valid() {
		return nil, validationf("scope is required")
	}
	remarks := make([]models.Remark, 0)
	err := s.db.WithContext(ctx).
		Where(scope.Column()+" = ? AND is_deleted = ?", scope.ID, false).
		Find(&remarks).Error
	if err != nil {
		return nil, fmt.Errorf("list remarks: %w", err)
	}
	return remarks, nil
}

// lookup loads remarks by id including soft-deleted ones, for back-references.
func (s *RemarkStore) lookup(ctx context.Context, ids []string) ([]models.Remark, error) {
	remarks := make([]models.Remark, 0, len(ids))
	if len(ids) == 0 {
		return remarks, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&remarks).Error; err != nil {
		return nil, fmt.Errorf("lookup remarks: %w", err)
	}
	return remarks, nil
}
