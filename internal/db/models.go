// internal/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

// cache_records – żywe kolekcje cache (jeden wiersz = jeden rekord ERP)
type CacheRecord struct {
	Collection string         `gorm:"primaryKey;size:64"`
	RecordKey  string         `gorm:"primaryKey;size:191"`
	Payload    datatypes.JSON `gorm:"not null"`
	SyncedAt   time.Time
}

// staging_records – bufor dla PutAll(Replace), przepisywany do cache_records w swapie
type StagingRecord struct {
	BatchID    string         `gorm:"primaryKey;size:36"`
	RecordKey  string         `gorm:"primaryKey;size:191"`
	Collection string         `gorm:"index;size:64"`
	Payload    datatypes.JSON `gorm:"not null"`
}

// collection_states – świeżość kolekcji
type CollectionState struct {
	Collection  string `gorm:"primaryKey;size:64"`
	RecordCount int64
	SyncedAt    *time.Time
	Stale       bool
	LastError   string    `gorm:"type:text"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// queued_writes – kolejka zapisów do ERP
type QueuedWrite struct {
	Seq        uint           `gorm:"primaryKey;column:seq"`
	ID         string         `gorm:"uniqueIndex;size:36"`
	Kind       string         `gorm:"size:32"`
	Collection string         `gorm:"index:idx_qw_entity,priority:1;size:64"`
	EntityKey  string         `gorm:"index:idx_qw_entity,priority:2;size:191"`
	Payload    datatypes.JSON `gorm:"not null"`
	Attempts   int
	State      string    `gorm:"index;size:16;default:pending"` // pending/delivered/failed
	LastError  string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// credentials – weryfikator hasła do logowania offline
type Credential struct {
	Email       string `gorm:"primaryKey;size:191"`
	UserID      string `gorm:"size:64"`
	Name        string
	Role        string
	Profile     datatypes.JSON
	Verifier    string `gorm:"not null"`
	LastLoginAt time.Time
}

type KV struct {
	K string `gorm:"primaryKey;size:191"`
	V string `gorm:"type:text"`
}
