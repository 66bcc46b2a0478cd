// Package main implements the roverlog-export binary: materialize a log
// file's messages into a SQLite database.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"github.com/roverlog/roverlog/internal/config"
	"github.com/roverlog/roverlog/internal/export"
	"github.com/roverlog/roverlog/internal/source"
	"github.com/roverlog/roverlog/internal/storage"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	filePath := flag.String("file", "", "local log file path (overrides config)")
	outPath := flag.String("out", "messages.sqlite", "output SQLite database path")
	topicsFlag := flag.String("topics", "", "comma-separated topic names (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil && *filePath == "" {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *filePath != "" {
		cfg = config.DefaultConfig()
		cfg.Source.Type = "local"
		cfg.Source.Path = *filePath
	}

	ctx := context.Background()
	blob, err := openBlob(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}

	src := source.NewUnindexedSource(blob, source.Options{
		SizeLimit:     cfg.Read.SizeLimitBytes,
		ReadChunkSize: cfg.Read.ChunkSizeBytes,
	})
	init, err := src.Initialize(ctx)
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}

	topics := splitTopics(*topicsFlag)
	if len(topics) == 0 {
		for _, t := range init.Topics {
			topics = append(topics, t.Name)
		}
	}

	info, err := export.NewExporter(src).Export(ctx, *outPath, topics)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	log.Printf("Exported %d messages to %s (%d bytes) in %s",
		info.RowCount, info.Path, info.SizeBytes, info.Elapsed)
}

func splitTopics(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// openBlob builds the configured blob source.
func openBlob(ctx context.Context, cfg *config.Config) (storage.Blob, error) {
	switch cfg.Source.Type {
	case "s3":
		return storage.NewS3Blob(ctx, cfg.Source.S3.Bucket, cfg.Source.S3.Key, storage.S3Config{
			Region:       cfg.Source.S3.Region,
			Endpoint:     cfg.Source.S3.Endpoint,
			UsePathStyle: cfg.Source.S3.UsePathStyle,
		})
	default:
		return storage.NewLocalBlob(cfg.Source.Path), nil
	}
}
