package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lessontalk/internal/models"
	"lessontalk/internal/utils"

	"gorm.io/gorm"
)

// Labeler names scopes for display. Scopes it cannot name are left out of
// the returned map.
type Labeler interface {
	Labels(ctx context.Context, scopes []models.Scope) (map[models.Scope]string, error)
}

// CatalogLabeler reads course and lesson titles from the catalog tables and
// keeps recent hits in a TTL cache. Misses are not cached so a title added
// later shows up without waiting for expiry.
type CatalogLabeler struct {
	db     *gorm.DB
	cache  *utils.Cache[models.Scope, string]
	logger *slog.Logger
}

func NewCatalogLabeler(db *gorm.DB, cacheSize int, ttl time.Duration, logger *slog.Logger) (*CatalogLabeler, error) {
	cache, err := utils.NewCache[models.Scope, string](cacheSize, ttl)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogLabeler{db: db, cache: cache, logger: logger}, nil
}

func (l *CatalogLabeler) Labels(ctx context.Context, scopes []models.Scope) (map[models.Scope]string, error) {
	out := make(map[models.Scope]string, len(scopes))
	var courseIDs, lessonIDs []string
	for _, s := range scopes {
		if _, done := out[s]; done {
			continue
		}
		if label, ok := l.cache.Get(s); ok {
			out[s] = label
			continue
		}
		switch s.Kind {
		case models.ScopeCourse:
			courseIDs = append(courseIDs, s.ID)
		case models.ScopeLesson:
			lessonIDs = append(lessonIDs, s.ID)
		}
	}

	if len(courseIDs) > 0 {
		var courses []models.Course
		if err := l.db.WithContext(ctx).Where("id IN ?", courseIDs).Find(&courses).Error; err != nil {
			return nil, fmt.Errorf("load course titles: %w", err)
		}
		for _, c := range courses {
			l.remember(out, models.CourseScope(c.ID), c.Title)
		}
	}
	if len(lessonIDs) > 0 {
		var lessons []models.Lesson
		if err := l.db.WithContext(ctx).Where("id IN ?", lessonIDs).Find(&lessons).Error; err != nil {
			return nil, fmt.Errorf("load lesson titles: %w", err)
		}
		for _, ls := range lessons {
			l.remember(out, models.LessonScope(ls.ID), ls.Title)
		}
	}
	return out, nil
}

func (l *CatalogLabeler) remember(out map[models.Scope]string, s models.Scope, title string) {
	if title == "" {
		return
	}
	out[s] = title
	l.cache.Set(s, title)
}
