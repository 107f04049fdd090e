package catalog

import (
	"time"

	"gorm.io/gorm"
)

type Article struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Published   bool           `gorm:"column:published;not null;index" json:"published"`
	ViewCount   int64          `gorm:"column:view_count;not null;default:0;index" json:"view_count"`
	PublishedAt *time.Time     `gorm:"column:published_at;index" json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Article) TableName() string { return "article" }
