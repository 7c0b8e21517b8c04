package record

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Iron-Ham/council/internal/errors"
)

// SQLiteFileName is the database file inside the storage directory.
const SQLiteFileName = "council.db"

// sessionRow stores a record as JSON alongside the columns used for
// listing. The autoincrement key provides monotonic IDs.
type sessionRow struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	ParentID       uint64 `gorm:"index"`
	ConversationID string `gorm:"size:64;not null;index"`
	Query          string `gorm:"type:text"`
	Mode           string `gorm:"size:16"`
	Status         string `gorm:"size:16"`
	Winner         string `gorm:"size:255"`
	StartedAt      time.Time
	Data           string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type conversationRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (conversationRow) TableName() string { return "conversations" }

// SQLiteStore keeps records in a SQLite database.
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) <dir>/council.db and runs migrations.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewPersistenceError("failed to create store directory", err).
			WithOperation("open").
			WithPath(dir)
	}
	path := filepath.Join(dir, SQLiteFileName)
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(log.New(os.Stderr, "", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, errors.NewPersistenceError("failed to open database", err).
			WithOperation("open").
			WithPath(path)
	}

	// SQLite allows one writer; a single connection avoids "database is locked"
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.NewPersistenceError("failed to open database", err).WithOperation("open")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&conversationRow{}, &sessionRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.NewPersistenceError("failed to migrate database", err).
			WithOperation("migrate").
			WithPath(path)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// CreateConversation implements Store.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.NewValidationError("conversation id is required").WithField("conversation.id")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&conversationRow{}).Where("id = ?", conv.ID).Count(&count).Error; err != nil {
		return errors.NewPersistenceError("failed to check conversation", err).WithOperation("create")
	}
	if count > 0 {
		return errors.NewAlreadyExistsError("conversation", conv.ID)
	}

	row := conversationRow{ID: conv.ID, Title: conv.Title, CreatedAt: conv.CreatedAt, UpdatedAt: conv.UpdatedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.NewPersistenceError("failed to create conversation", err).WithOperation("create")
	}
	conv.CreatedAt, conv.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec *SessionRecord) error {
	if rec == nil {
		return errors.NewValidationError("record is nil")
	}
	if rec.ID != 0 {
		return errors.NewAlreadyExistsError("session", strconv.FormatUint(rec.ID, 10))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv conversationRow
		if err := tx.Take(&conv, "id = ?", rec.ConversationID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NewNotFoundError("conversation", rec.ConversationID)
			}
			return errors.NewPersistenceError("failed to load conversation", err).WithOperation("save")
		}
		if rec.ParentID != 0 {
			var n int64
			if err := tx.Model(&sessionRow{}).Where("id = ?", rec.ParentID).Count(&n).Error; err != nil {
				return errors.NewPersistenceError("failed to check parent", err).WithOperation("save")
			}
			if n == 0 {
				return errors.NewNotFoundError("session", strconv.FormatUint(rec.ParentID, 10))
			}
		}

		summary := rec.Summarize()
		row := sessionRow{
			ParentID:       rec.ParentID,
			ConversationID: rec.ConversationID,
			Query:          rec.Query,
			Mode:           string(rec.Mode),
			Status:         string(rec.Status),
			Winner:         summary.Winner,
			StartedAt:      rec.StartedAt,
			Data:           "{}",
		}
		if err := tx.Create(&row).Error; err != nil {
			return errors.NewPersistenceError("failed to insert record", err).WithOperation("save")
		}

		rec.ID = row.ID
		data, err := json.Marshal(rec)
		if err != nil {
			rec.ID = 0
			return errors.NewPersistenceError("failed to encode record", err).WithOperation("save")
		}
		if err := tx.Model(&row).Update("data", string(data)).Error; err != nil {
			rec.ID = 0
			return errors.NewPersistenceError("failed to store record", err).
				WithRecord(strconv.FormatUint(row.ID, 10)).
				WithOperation("save")
		}
		if err := tx.Model(&conv).Update("updated_at", time.Now().UTC()).Error; err != nil {
			rec.ID = 0
			return errors.NewPersistenceError("failed to touch conversation", err).WithOperation("save")
		}
		return nil
	})
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id uint64) (*SessionRecord, error) {
	var row sessionRow
	if err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError("session", strconv.FormatUint(id, 10))
		}
		return nil, errors.NewPersistenceError("failed to load record", err).
			WithRecord(strconv.FormatUint(id, 10)).
			WithOperation("load")
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(row.Data), &rec); err != nil {
		return nil, errors.NewPersistenceError("failed to decode record", err).
			WithRecord(strconv.FormatUint(id, 10)).
			WithOperation("load")
	}
	return &rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).
		Select("id", "parent_id", "conversation_id", "query", "mode", "status", "winner", "started_at").
		Order("id desc").
		Find(&rows).Error; err != nil {
		return nil, errors.NewPersistenceError("failed to list records", err).WithOperation("list")
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{
			ID:             r.ID,
			ParentID:       r.ParentID,
			ConversationID: r.ConversationID,
			Query:          r.Query,
			Mode:           Mode(r.Mode),
			Status:         Status(r.Status),
			Winner:         r.Winner,
			StartedAt:      r.StartedAt,
		})
	}
	return out, nil
}

// Conversation implements Store.
func (s *SQLiteStore) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var row conversationRow
	if err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError("conversation", id)
		}
		return nil, errors.NewPersistenceError("failed to load conversation", err).WithOperation("load")
	}
	conv, err := s.withSessions(ctx, row)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Conversations implements Store.
func (s *SQLiteStore) Conversations(ctx context.Context) ([]Conversation, error) {
	var rows []conversationRow
	if err := s.db.WithContext(ctx).Order("updated_at desc").Order("id").Find(&rows).Error; err != nil {
		return nil, errors.NewPersistenceError("failed to list conversations", err).WithOperation("list")
	}
	out := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		conv, err := s.withSessions(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *SQLiteStore) withSessions(ctx context.Context, row conversationRow) (Conversation, error) {
	conv := Conversation{ID: row.ID, Title: row.Title, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
	if err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("conversation_id = ?", row.ID).
		Order("id").
		Pluck("id", &conv.SessionIDs).Error; err != nil {
		return conv, errors.NewPersistenceError("failed to list conversation sessions", err).WithOperation("list")
	}
	return conv, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
