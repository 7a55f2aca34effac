package models

import (
	"time"
)

type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

func (t VoteType) Opposite() VoteType {
	if t == VoteUp {
		return VoteDown
	}
	return VoteUp
}

// Vote is keyed by (user_id, remark_id); the composite primary key keeps
// at most one live row per pair.
type Vote struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	RemarkID  string    `gorm:"primaryKey;size:36;index" json:"remark_id"`
	VoteType  VoteType  `gorm:"size:8;not null" json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
