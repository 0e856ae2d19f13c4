// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bartek5186/sfa-offline/internal/db"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mode – sposób zapisu PutAll.
type Mode int

const (
	Replace Mode = iota // pełna podmiana kolekcji (staging -> swap)
	Merge               // upsert po kluczu
)

func (m Mode) String() string {
	if m == Merge {
		return "merge"
	}
	return "replace"
}

// Record – jeden rekord kolekcji w postaci surowego JSON z ERP.
type Record struct {
	Key      string
	Payload  json.RawMessage
	SyncedAt time.Time
}

// Filter – predykat po stronie Go (kolekcje są proste, bez języka zapytań).
type Filter func(Record) bool

type Store struct {
	db        *gorm.DB
	log       zerolog.Logger
	batchSize int
	now       func() time.Time
}

func New(log zerolog.Logger, gdb *gorm.DB) *Store {
	return &Store{
		db:        gdb,
		log:       log.With().Str("component", "store").Logger(),
		batchSize: 500,
		now:       time.Now,
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}

// Get zwraca rekord albo domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, key string) (Record, error) {
	var row db.CacheRecord
	err := s.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, collection, key)
	}
	if err != nil {
		return Record{}, storageErr("get "+collection, err)
	}
	return toRecord(row), nil
}

// GetAll zwraca całą kolekcję (posortowaną po kluczu) przefiltrowaną w pamięci.
func (s *Store) GetAll(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	var rows []db.CacheRecord
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("record_key").
		Find(&rows).Error; err != nil {
		return nil, storageErr("get all "+collection, err)
	}
	return applyFilters(rows, filters), nil
}

// GetPrefix – rekordy, których klucz zaczyna się od prefix (np. "123|" dla volumes produktu).
func (s *Store) GetPrefix(ctx context.Context, collection, prefix string, filters ...Filter) ([]Record, error) {
	var rows []db.CacheRecord
	if err := s.db.WithContext(ctx).
		Where("collection = ? AND record_key LIKE ? ESCAPE '!'", collection, escapeLike(prefix)+"%").
		Order("record_key").
		Find(&rows).Error; err != nil {
		return nil, storageErr("get prefix "+collection, err)
	}
	return applyFilters(rows, filters), nil
}

func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&db.CacheRecord{}).
		Where("collection = ?", collection).Count(&n).Error; err != nil {
		return 0, storageErr("count "+collection, err)
	}
	return n, nil
}

// PutAll zapisuje rekordy kolekcji. Replace jest all-or-nothing:
//  1. rekordy lądują w staging_records pod nowym batch_id
//  2. w jednej transakcji: kasujemy żywą kolekcję, kopiujemy staging, aktualizujemy stan
//
// Błąd w którymkolwiek kroku zostawia żywą kolekcję bez zmian.
func (s *Store) PutAll(ctx context.Context, collection string, records []Record, mode Mode) error {
	records = dedupe(records)
	if mode == Merge {
		return s.merge(ctx, collection, records)
	}
	return s.replace(ctx, collection, records)
}

func (s *Store) replace(ctx context.Context, collection string, records []Record) error {
	batch := uuid.NewString()
	now := s.now().UTC()
	gdb := s.db.WithContext(ctx)

	// 1) staging
	if len(records) > 0 {
		rows := make([]db.StagingRecord, 0, len(records))
		for _, r := range records {
			rows = append(rows, db.StagingRecord{
				BatchID:    batch,
				RecordKey:  r.Key,
				Collection: collection,
				Payload:    datatypes.JSON(r.Payload),
			})
		}
		if err := gdb.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&rows, s.batchSize).Error
		}); err != nil {
			s.dropBatch(batch)
			return storageErr("stage "+collection, err)
		}
	}

	// 2) swap
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", collection).Delete(&db.CacheRecord{}).Error; err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.Exec(`INSERT INTO cache_records (collection, record_key, payload, synced_at)
				SELECT collection, record_key, payload, ? FROM staging_records WHERE batch_id = ?`,
				now, batch).Error; err != nil {
				return err
			}
			if err := tx.Where("batch_id = ?", batch).Delete(&db.StagingRecord{}).Error; err != nil {
				return err
			}
		}
		return upsertState(tx, db.CollectionState{
			Collection:  collection,
			RecordCount: int64(len(records)),
			SyncedAt:    &now,
			Stale:       false,
			LastError:   "",
		}, "record_count", "synced_at", "stale", "last_error", "updated_at")
	})
	if err != nil {
		s.dropBatch(batch)
		return storageErr("swap "+collection, err)
	}

	s.log.Debug().Str("collection", collection).Int("records", len(records)).Msg("collection replaced")
	return nil
}

func (s *Store) merge(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]db.CacheRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, db.CacheRecord{
			Collection: collection,
			RecordKey:  r.Key,
			Payload:    datatypes.JSON(r.Payload),
			SyncedAt:   now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "record_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "synced_at"}),
		}).CreateInBatches(&rows, s.batchSize).Error; err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&db.CacheRecord{}).Where("collection = ?", collection).Count(&n).Error; err != nil {
			return err
		}
		// merge nie jest pełnym syncem – synced_at kolekcji zostaje
		return upsertState(tx, db.CollectionState{Collection: collection, RecordCount: n}, "record_count", "updated_at")
	})
	if err != nil {
		return storageErr("merge "+collection, err)
	}
	return nil
}

// Clear usuwa kolekcję i zeruje jej stan.
func (s *Store) Clear(ctx context.Context, collection string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", collection).Delete(&db.CacheRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("collection = ?", collection).Delete(&db.CollectionState{}).Error
	})
	if err != nil {
		return storageErr("clear "+collection, err)
	}
	return nil
}

// MarkStale – sync kolekcji się nie udał; stare dane zostają, ale są oznaczone.
func (s *Store) MarkStale(ctx context.Context, collection string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := upsertState(s.db.WithContext(ctx), db.CollectionState{
		Collection: collection,
		Stale:      true,
		LastError:  msg,
	}, "stale", "last_error", "updated_at")
	if err != nil {
		return storageErr("mark stale "+collection, err)
	}
	return nil
}

func (s *Store) Freshness(ctx context.Context, collection string) (domain.Freshness, error) {
	var st db.CollectionState
	err := s.db.WithContext(ctx).Where("collection = ?", collection).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Freshness{Collection: collection}, nil
	}
	if err != nil {
		return domain.Freshness{}, storageErr("freshness "+collection, err)
	}
	return toFreshness(st), nil
}

func (s *Store) AllFreshness(ctx context.Context) ([]domain.Freshness, error) {
	var rows []db.CollectionState
	if err := s.db.WithContext(ctx).Order("collection").Find(&rows).Error; err != nil {
		return nil, storageErr("freshness", err)
	}
	out := make([]domain.Freshness, 0, len(rows))
	for _, r := range rows {
		out = append(out, toFreshness(r))
	}
	return out, nil
}

// GetKV – "" gdy brak klucza.
func (s *Store) GetKV(ctx context.Context, k string) (string, error) {
	var kv db.KV
	err := s.db.WithContext(ctx).Where("k = ?", k).Take(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("kv get", err)
	}
	return kv.V, nil
}

func (s *Store) SetKV(ctx context.Context, k, v string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&db.KV{K: k, V: v}).Error
	if err != nil {
		return storageErr("kv set", err)
	}
	return nil
}

func (s *Store) DeleteKV(ctx context.Context, k string) error {
	if err := s.db.WithContext(ctx).Where("k = ?", k).Delete(&db.KV{}).Error; err != nil {
		return storageErr("kv delete", err)
	}
	return nil
}

func (s *Store) dropBatch(batch string) {
	if err := s.db.Where("batch_id = ?", batch).Delete(&db.StagingRecord{}).Error; err != nil {
		s.log.Warn().Err(err).Str("batch", batch).Msg("staging cleanup failed")
	}
}

func upsertState(tx *gorm.DB, st db.CollectionState, cols ...string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&st).Error
}

// dedupe – ostatni rekord z danym kluczem wygrywa, kolejność pierwszego wystąpienia zostaje.
func dedupe(records []Record) []Record {
	idx := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := idx[r.Key]; ok {
			out[i] = r
			continue
		}
		idx[r.Key] = len(out)
		out = append(out, r)
	}
	return out
}

func applyFilters(rows []db.CacheRecord, filters []Filter) []Record {
	out := make([]Record, 0, len(rows))
next:
	for _, row := range rows {
		r := toRecord(row)
		for _, f := range filters {
			if f != nil && !f(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

func toRecord(row db.CacheRecord) Record {
	return Record{Key: row.RecordKey, Payload: json.RawMessage(row.Payload), SyncedAt: row.SyncedAt}
}

func toFreshness(st db.CollectionState) domain.Freshness {
	return domain.Freshness{
		Collection:  st.Collection,
		RecordCount: st.RecordCount,
		SyncedAt:    st.SyncedAt,
		Stale:       st.Stale,
		LastError:   st.LastError,
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)
	return r.Replace(s)
}
