package model

import (
	"time"
)

// Entry 键值存储表，Value 为原始 JSON 文本
type Entry struct {
	Key       string    `gorm:"primaryKey;size:512" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
