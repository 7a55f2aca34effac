package models

import "fmt"

type ScopeKind string

const (
	ScopeCourse ScopeKind = "course"
	ScopeLesson ScopeKind = "lesson"
)

// Scope identifies the course or lesson a remark belongs to. The ID is an
// opaque key into a content catalog owned elsewhere.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func CourseScope(id string) Scope { return Scope{Kind: ScopeCourse, ID: id} }
func LessonScope(id string) Scope { return Scope{Kind: ScopeLesson, ID: id} }

func (s Scope) Valid() bool {
	return (s.Kind == ScopeCourse || s.Kind == ScopeLesson) && s.ID != ""
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Column is the remarks column holding this scope's key.
func (s Scope) Column() string {
	if s.Kind == ScopeLesson {
		return "lesson_id"
	}
	return "course_id"
}

// Apply stamps the scope onto a remark, clearing the other reference.
func (s Scope) Apply(r *Remark) {
	id := s.ID
	r.CourseID, r.LessonID = nil, nil
	switch s.Kind {
	case ScopeCourse:
		r.CourseID = &id
	case ScopeLesson:
		r.LessonID = &id
	}
}
