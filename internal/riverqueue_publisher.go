package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var riverTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// riverQueuePublisher enqueues stored events as RiverQueue jobs so River
// workers can process them without a broker.
type riverQueuePublisher struct {
	db  *sql.DB
	cfg RiverQueueConfig
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("riverqueue dsn is required")
	}
	cfg.Table = strings.TrimSpace(cfg.Table)
	if cfg.Table == "" {
		cfg.Table = "river_job"
	}
	if !riverTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid riverqueue table: %q", cfg.Table)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &riverQueuePublisher{db: db, cfg: cfg}, nil
}

func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, note Notification) error {
	args, err := json.Marshal(note)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(map[string]string{
		"event_id":   note.ID,
		"action":     string(note.Action),
		"request_id": note.RequestID,
		"topic":      topic,
	})
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		p.cfg.Table,
	)
	_, err = p.db.ExecContext(
		ctx,
		query,
		string(args),
		p.cfg.Kind,
		p.cfg.MaxAttempts,
		string(metadata),
		p.cfg.Priority,
		p.cfg.Queue,
		pq.Array(p.cfg.Tags),
	)
	return err
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, note Notification, drivers []string) error {
	return p.Publish(ctx, topic, note)
}

func (p *riverQueuePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
