// Package export materializes an ingested log into a queryable SQLite
// database, one row per message in receive-time order.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roverlog/roverlog/internal/source"
)

// Info describes one completed export.
type Info struct {
	Path      string
	RowCount  int64
	SizeBytes int64
	Elapsed   time.Duration
}

// Exporter writes messages from an initialized source into SQLite files.
type Exporter struct {
	src *source.UnindexedSource
}

// NewExporter creates an exporter over an initialized source.
func NewExporter(src *source.UnindexedSource) *Exporter {
	return &Exporter{src: src}
}

// Export writes every message on the given topics (all file bounds) into a
// SQLite database at path. The source must be initialized.
func (e *Exporter) Export(ctx context.Context, path string, topics []string) (*Info, error) {
	it, err := e.src.MessageIterator(source.IteratorOptions{Topics: topics})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("export: failed to create output directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("export: failed to create SQLite database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("export: failed to set journal mode: %w", err)
	}

	createTableSQL := `
		CREATE TABLE messages (
			topic TEXT NOT NULL,
			channel_id INTEGER NOT NULL,
			log_time INTEGER NOT NULL,
			publish_time INTEGER NOT NULL,
			schema_name TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("export: failed to create messages table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE INDEX idx_messages_topic_time ON messages(topic, log_time)"); err != nil {
		return nil, fmt.Errorf("export: failed to create index: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("export: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertSQL := `INSERT INTO messages (topic, channel_id, log_time, publish_time, schema_name, data) VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("export: failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	var rowCount int64
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := item.Event
		_, err := stmt.ExecContext(ctx,
			ev.Topic,
			int64(item.ChannelID),
			int64(ev.ReceiveTime.Nanoseconds()),
			int64(ev.PublishTime.Nanoseconds()),
			ev.SchemaName,
			ev.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("export: failed to insert message: %w", err)
		}
		rowCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("export: failed to commit transaction: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("export: failed to close database: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("export: failed to stat output: %w", err)
	}

	return &Info{
		Path:      path,
		RowCount:  rowCount,
		SizeBytes: stat.Size(),
		Elapsed:   time.Since(started),
	}, nil
}
