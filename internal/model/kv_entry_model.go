package model

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry is one persisted engine document (context, session, draft, index).
type KVEntry struct {
	Key       string         `gorm:"column:entry_key;type:text;primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string {
	return "proposal_kv_entries"
}
