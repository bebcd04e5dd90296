package domain

import "time"

type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"-"`
}

// DecisionTag is the join row between decisions and tags.
type DecisionTag struct {
	DecisionID string    `gorm:"primaryKey"`
	TagID      uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `json:"-"`
}

func (DecisionTag) TableName() string {
	return "decision_tags"
}

// TagCount is a tag with the number of decisions visible to a viewer.
type TagCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
