package models

import (
	"time"
)

type ContentType string

const (
	ContentPlain    ContentType = "plain"
	ContentQuestion ContentType = "question"
	ContentInsight  ContentType = "insight"
	ContentBeacon   ContentType = "beacon"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentPlain, ContentQuestion, ContentInsight, ContentBeacon:
		return true
	}
	return false
}

// Remark is a typed comment attached to exactly one course or lesson.
// Replies point at a root remark in the same scope via ParentID.
type Remark struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	AuthorID    string      `gorm:"size:64;not null;index" json:"author_id"`
	CourseID    *string     `gorm:"size:64;index" json:"course_id,omitempty"`
	LessonID    *string     `gorm:"size:64;index" json:"lesson_id,omitempty"`
	ParentID    *string     `gorm:"size:36;index" json:"parent_id,omitempty"` // nil for roots
	Content     string      `gorm:"type:text;not null" json:"content"`
	ContentType ContentType `gorm:"size:20;not null;default:plain" json:"content_type"`
	Upvotes     int         `gorm:"not null;default:0" json:"upvotes"`
	Downvotes   int         `gorm:"not null;default:0" json:"downvotes"`
	IsDeleted   bool        `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedBy   string      `gorm:"size:64" json:"-"`
	DeletedAt   *time.Time  `json:"-"` // audit only, not a gorm soft-delete column
	CreatedAt   time.Time   `gorm:"not null;index" json:"created_at"`
}

func (r Remark) Net() int {
	return r.Upvotes - r.Downvotes
}

func (r Remark) IsReply() bool {
	return r.ParentID != nil && *r.ParentID != ""
}

// Scope returns the content the remark is attached to.
func (r Remark) Scope() Scope {
	if r.CourseID != nil && *r.CourseID != "" {
		return Scope{Kind: ScopeCourse, ID: *r.CourseID}
	}
	if r.LessonID != nil && *r.LessonID != "" {
		return Scope{Kind: ScopeLesson, ID: *r.LessonID}
	}
	return Scope{}
}
