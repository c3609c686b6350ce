package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitevents/internal"
	"gitevents/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Config mirrors the storage configuration for the events table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.EventStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
	newID func() (uuid.UUID, error)
}

type row struct {
	ID         string    `gorm:"column:id;primaryKey;size:36"`
	Action     string    `gorm:"column:action;size:32;not null"`
	Author     string    `gorm:"column:author;size:255;not null"`
	FromBranch *string   `gorm:"column:from_branch;size:255"`
	ToBranch   string    `gorm:"column:to_branch;size:255;not null"`
	Timestamp  time.Time `gorm:"column:timestamp;not null;index:idx_events_timestamp,sort:desc"`
	RequestID  string    `gorm:"column:request_id;size:128;index"`
}

// Open creates a GORM-backed event store.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	table := cfg.Table
	if table == "" {
		table = "github_events"
	}
	store := &Store{
		db:    gormDB,
		table: table,
		newID: uuid.NewV7,
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// AppendEvent inserts a single immutable event row.
func (s *Store) AppendEvent(ctx context.Context, event internal.Event) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store is not initialized")
	}
	if event.Action == "" {
		return "", errors.New("event action is required")
	}
	if event.Timestamp.IsZero() {
		return "", errors.New("event timestamp is required")
	}

	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	data := toRow(id.String(), event)
	if err := s.tableDB().WithContext(ctx).Create(&data).Error; err != nil {
		return "", err
	}
	return data.ID, nil
}

// ListEventsSince returns events stored at or after since, newest first.
// Ties on timestamp are broken by id, which is time ordered.
func (s *Store) ListEventsSince(ctx context.Context, since time.Time) ([]storage.StoredEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Where(clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: since.UTC()}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.StoredEvent, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(id string, event internal.Event) row {
	return row{
		ID:         id,
		Action:     string(event.Action),
		Author:     event.Author,
		FromBranch: event.FromBranch,
		ToBranch:   event.ToBranch,
		Timestamp:  event.Timestamp.UTC(),
		RequestID:  event.RequestID,
	}
}

// fromRow normalizes the timestamp to UTC. postgres (timestamptz via pgx) and
// sqlite return zoned instants; mysql DATETIME carries no zone and is read in
// the DSN's loc, the same zone the driver wrote it in, so every driver yields
// the stored instant.
func fromRow(data row) storage.StoredEvent {
	return storage.StoredEvent{
		ID: data.ID,
		Event: internal.Event{
			Action:     internal.Action(data.Action),
			Author:     data.Author,
			FromBranch: data.FromBranch,
			ToBranch:   data.ToBranch,
			Timestamp:  data.Timestamp.UTC(),
			RequestID:  data.RequestID,
		},
	}
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
