package models

// Course and Lesson are read-only projections of the content catalog, used
// only to label scopes in the discussion feed.
type Course struct {
	ID    string `gorm:"primaryKey;size:64" json:"id"`
	Title string `gorm:"not null" json:"title"`
}

type Lesson struct {
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	CourseID string `gorm:"size:64;index" json:"course_id"`
	Title    string `gorm:"not null" json:"title"`
}
