package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// documentRecord is the relational row behind a document.
type documentRecord struct {
	Path      string `gorm:"primaryKey;size:512"`
	Version   uint64 `gorm:"not null"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (documentRecord) TableName() string { return "ledger_documents" }

// SQL stores documents in a relational table through gorm. Version checks
// are conditional updates so that concurrent writers on other nodes are
// detected as conflicts.
type SQL struct {
	db *gorm.DB
}

// OpenSQLite opens a pure-Go SQLite database. SQLite permits one writer, so
// the pool is limited to a single connection.
func OpenSQLite(dsn string) (*SQL, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return NewSQL(db)
}

// OpenPostgres connects to PostgreSQL using the supplied DSN.
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	return NewSQL(db)
}

// NewSQL migrates the document table on an existing connection.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&documentRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Get(path string) (Document, error) {
	var rec documentRecord
	err := s.db.Where("path = ?", path).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return Document{Path: rec.Path, Value: rec.Value, Version: rec.Version}, nil
}

func (s *SQL) List(prefix string) ([]Document, error) {
	var recs []documentRecord
	if err := s.db.Where("path LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").Order("path").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Document{Path: rec.Path, Value: rec.Value, Version: rec.Version})
	}
	return out, nil
}

func (s *SQL) Commit(mutations []Mutation) ([]Document, error) {
	out := make([]Document, len(mutations))
	now := time.Now().UTC()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i, m := range mutations {
			doc, err := applySQLMutation(tx, m, now)
			if err != nil {
				return err
			}
			out[i] = doc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applySQLMutation(tx *gorm.DB, m Mutation, now time.Time) (Document, error) {
	expected := m.ExpectedVersion
	if m.Blind {
		var rec documentRecord
		err := tx.Where("path = ?", m.Path).Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			expected = 0
		case err != nil:
			return Document{}, err
		default:
			expected = rec.Version
		}
	}
	next := expected + 1

	if m.Delete {
		if expected == 0 {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, m.Path)
		}
		res := tx.Where("path = ? AND version = ?", m.Path, expected).Delete(&documentRecord{})
		if res.Error != nil {
			return Document{}, res.Error
		}
		if res.RowsAffected == 0 {
			return Document{}, fmt.Errorf("%w: %s", ErrVersionConflict, m.Path)
		}
		return Document{Path: m.Path, Version: next}, nil
	}

	if expected == 0 {
		var count int64
		if err := tx.Model(&documentRecord{}).Where("path = ?", m.Path).Count(&count).Error; err != nil {
			return Document{}, err
		}
		if count > 0 {
			return Document{}, fmt.Errorf("%w: %s already exists", ErrVersionConflict, m.Path)
		}
		rec := documentRecord{Path: m.Path, Version: next, Value: m.Value, UpdatedAt: now}
		if err := tx.Create(&rec).Error; err != nil {
			return Document{}, fmt.Errorf("%w: %s: %v", ErrVersionConflict, m.Path, err)
		}
	} else {
		res := tx.Model(&documentRecord{}).
			Where("path = ? AND version = ?", m.Path, expected).
			Updates(map[string]any{"version": next, "value": m.Value, "updated_at": now})
		if res.Error != nil {
			return Document{}, res.Error
		}
		if res.RowsAffected == 0 {
			return Document{}, fmt.Errorf("%w: %s expected v%d", ErrVersionConflict, m.Path, expected)
		}
	}
	return Document{Path: m.Path, Value: append([]byte(nil), m.Value...), Version: next}, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Close releases the connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
