package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tphakala/shoppinglist/internal/errors"
)

// storeRecord is a named store row.
type storeRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:255;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (storeRecord) TableName() string { return "offline_stores" }

// entryRecord is a cached pair belonging to one store.
type entryRecord struct {
	ID         uint      `gorm:"primaryKey"`
	StoreID    uint      `gorm:"not null;uniqueIndex:idx_offline_entry_key,priority:1"`
	CacheKey   string    `gorm:"size:2048;not null;uniqueIndex:idx_offline_entry_key,priority:2"`
	StatusCode int       `gorm:"not null"`
	Header     string    `gorm:"type:text;default:''"`
	Body       []byte    `gorm:"type:blob"`
	StoredAt   time.Time `gorm:"not null"`
}

func (entryRecord) TableName() string { return "offline_entries" }

func (r *entryRecord) toEntry() (*Entry, error) {
	h := make(http.Header)
	if r.Header != "" {
		if err := json.Unmarshal([]byte(r.Header), &h); err != nil {
			return nil, fmt.Errorf("decode headers for %s: %w", r.CacheKey, err)
		}
	}
	return &Entry{
		Key:        r.CacheKey,
		StatusCode: r.StatusCode,
		Header:     h,
		Body:       r.Body,
		StoredAt:   r.StoredAt,
	}, nil
}

func newEntryRecord(storeID uint, e *Entry) (*entryRecord, error) {
	h, err := json.Marshal(e.Header)
	if err != nil {
		return nil, fmt.Errorf("encode headers for %s: %w", e.Key, err)
	}
	return &entryRecord{
		StoreID:    storeID,
		CacheKey:   e.Key,
		StatusCode: e.StatusCode,
		Header:     string(h),
		Body:       e.Body,
		StoredAt:   e.StoredAt,
	}, nil
}

// SQLiteStorage persists stores in a SQLite database so the offline copy
// survives restarts.
type SQLiteStorage struct {
	db *gorm.DB
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Newf("create cache directory %s: %w", dir, err).
				Component("offline").
				Category(errors.CategoryFileIO).
				Build()
		}
	}
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, errors.Newf("open cache database %s: %w", path, err).
			Component("offline").
			Category(errors.CategoryDatabase).
			Build()
	}
	return NewSQLiteStorageFromDB(db)
}

// NewSQLiteStorageFromDB wraps an open database and migrates the schema.
func NewSQLiteStorageFromDB(db *gorm.DB) (*SQLiteStorage, error) {
	if err := db.AutoMigrate(&storeRecord{}, &entryRecord{}); err != nil {
		return nil, errors.Newf("migrate cache tables: %w", err).
			Component("offline").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Open(ctx context.Context, name string) (Store, error) {
	rec := storeRecord{Name: name}
	if err := s.db.WithContext(ctx).Where(storeRecord{Name: name}).FirstOrCreate(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", name, err)
	}
	return &sqliteStore{db: s.db, id: rec.ID, name: rec.Name}, nil
}

func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&storeRecord{}).Order("id ASC").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return names, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec storeRecord
		res := tx.Where("name = ?", name).Limit(1).Find(&rec)
		if res.Error != nil {
			return fmt.Errorf("failed to find store %s: %w", name, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("store_id = ?", rec.ID).Delete(&entryRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete entries of store %s: %w", name, err)
		}
		if err := tx.Delete(&rec).Error; err != nil {
			return fmt.Errorf("failed to delete store %s: %w", name, err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *SQLiteStorage) Match(ctx context.Context, key string) (*Entry, bool, error) {
	var recs []entryRecord
	err := s.db.WithContext(ctx).
		Joins("JOIN offline_stores ON offline_stores.id = offline_entries.store_id").
		Where("offline_entries.cache_key = ?", key).
		Order("offline_stores.id ASC").
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to match %s: %w", key, err)
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	e, err := recs[0].toEntry()
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqliteStore struct {
	db   *gorm.DB
	id   uint
	name string
}

func (s *sqliteStore) Name() string { return s.name }

func (s *sqliteStore) Match(ctx context.Context, key string) (*Entry, bool, error) {
	var recs []entryRecord
	err := s.db.WithContext(ctx).
		Where("store_id = ? AND cache_key = ?", s.id, key).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to match %s in %s: %w", key, s.name, err)
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	e, err := recs[0].toEntry()
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, entry *Entry) error {
	return s.put(s.db.WithContext(ctx), entry)
}

func (s *sqliteStore) PutAll(ctx context.Context, entries []*Entry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := s.put(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) put(tx *gorm.DB, entry *Entry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	rec, err := newEntryRecord(s.id, entry)
	if err != nil {
		return err
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status_code", "header", "body", "stored_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to store %s in %s: %w", entry.Key, s.name, err)
	}
	return nil
}
