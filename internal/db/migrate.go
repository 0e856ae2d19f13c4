package db

import (
	"fmt"
)

// Migrate tworzy/aktualizuje schemat bazy.
// Kolejność:
//  1. AutoMigrate
//  2. wyczyść osierocone batche stagingu (przerwany PutAll po crashu)
func (h *Handle) Migrate() error {
	gdb := h.DB

	if err := gdb.AutoMigrate(
		&CacheRecord{},
		&StagingRecord{},
		&CollectionState{},
		&QueuedWrite{},
		&Credential{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	// staging jest tylko w trakcie swapu, po starcie zawsze powinien być pusty
	if err := gdb.Where("1=1").Delete(&StagingRecord{}).Error; err != nil {
		return fmt.Errorf("purge staging_records failed: %w", err)
	}
	return nil
}
