// Package integration provides end-to-end integration tests for roverlog.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roverlog/roverlog/internal/export"
	"github.com/roverlog/roverlog/internal/mcap"
	"github.com/roverlog/roverlog/internal/source"
	"github.com/roverlog/roverlog/internal/storage"
)

// TestReadExportFlow tests the end-to-end flow:
// writer → blob → source → iterator → SQLite export
func TestReadExportFlow(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	// Write a chunked log file with two topics
	var buf bytes.Buffer
	w := mcap.NewWriter(&buf, nil)
	if err := w.WriteHeader(&mcap.Header{Profile: "ros2", Library: "roverlog"}); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	if err := w.WriteSchema(&mcap.Schema{
		ID: 1, Name: "test/Reading", Encoding: "jsonschema",
		Data: []byte(`{"type":"object","properties":{"v":{"type":"number"}}}`),
	}); err != nil {
		t.Fatalf("failed to write schema: %v", err)
	}
	for id, topic := range map[uint16]string{1: "/imu", 2: "/gps"} {
		if err := w.WriteChannel(&mcap.Channel{
			ID: id, SchemaID: 1, Topic: topic, MessageEncoding: "json",
			Metadata: map[string]string{"callerid": "sensor_node"},
		}); err != nil {
			t.Fatalf("failed to write channel: %v", err)
		}
	}
	if err := w.BeginChunk("zstd"); err != nil {
		t.Fatalf("failed to begin chunk: %v", err)
	}
	for i, ns := range []uint64{50, 10, 40, 20, 30} {
		if err := w.WriteMessage(&mcap.Message{
			ChannelID: uint16(i%2 + 1), LogTime: ns, PublishTime: ns,
			Data: []byte(`{"v":1}`),
		}); err != nil {
			t.Fatalf("failed to write message: %v", err)
		}
	}
	if err := w.EndChunk(); err != nil {
		t.Fatalf("failed to end chunk: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	logPath := filepath.Join(tempDir, "run.mcap")
	if err := os.WriteFile(logPath, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write log file: %v", err)
	}

	// Initialize the source and verify the summary
	src := source.NewUnindexedSource(storage.NewLocalBlob(logPath), source.Options{})
	init, err := src.Initialize(ctx)
	if err != nil {
		t.Fatalf("initialization failed: %v", err)
	}
	if init.Profile != "ros2" {
		t.Errorf("profile = %q, want ros2", init.Profile)
	}
	if len(init.Topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(init.Topics))
	}
	if got := init.Start.Nanoseconds(); got != 10 {
		t.Errorf("start = %d, want 10", got)
	}
	if got := init.End.Nanoseconds(); got != 50 {
		t.Errorf("end = %d, want 50", got)
	}

	// Full read comes back in receive-time order
	it, err := src.MessageIterator(source.IteratorOptions{Topics: []string{"/imu", "/gps"}})
	if err != nil {
		t.Fatalf("iterator failed: %v", err)
	}
	var prev uint64
	var count int
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		ns := item.Event.ReceiveTime.Nanoseconds()
		if ns < prev {
			t.Errorf("out of order: %d after %d", ns, prev)
		}
		prev = ns
		count++
	}
	if count != 5 {
		t.Fatalf("iterated %d messages, want 5", count)
	}

	// Export and query back through SQLite
	dbPath := filepath.Join(tempDir, "run.db")
	info, err := export.NewExporter(src).Export(ctx, dbPath, []string{"/imu", "/gps"})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if info.RowCount != 5 {
		t.Fatalf("exported %d rows, want 5", info.RowCount)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open exported database: %v", err)
	}
	defer db.Close()

	var imuRows int64
	if err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE topic = '/imu'").Scan(&imuRows); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if imuRows != 3 {
		t.Errorf("imu rows = %d, want 3", imuRows)
	}

	var maxTime int64
	if err := db.QueryRow("SELECT MAX(log_time) FROM messages").Scan(&maxTime); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if maxTime != 50 {
		t.Errorf("max log_time = %d, want 50", maxTime)
	}
}
