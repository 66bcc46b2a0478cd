// Package main implements the roverlog-info binary: initialize a log file
// and print its aggregate metadata, alerts and read statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/roverlog/roverlog/internal/config"
	"github.com/roverlog/roverlog/internal/source"
	"github.com/roverlog/roverlog/internal/storage"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	filePath := flag.String("file", "", "local log file path (overrides config)")
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
	log.Printf("Reading %s (session %s)", blob.Name(), src.SessionID())

	init, err := src.Initialize(ctx)
	if err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}

	fmt.Printf("profile:  %s\n", init.Profile)
	fmt.Printf("start:    %s\n", init.Start)
	fmt.Printf("end:      %s\n", init.End)
	fmt.Printf("topics:   %d\n", len(init.Topics))
	for _, t := range init.Topics {
		stats := init.TopicStats[t.Name]
		fmt.Printf("  %-40s %8d msgs  encoding=%s schema=%s publishers=%v\n",
			t.Name, stats.NumMessages, t.MessageEncoding, t.SchemaName,
			init.PublishersByTopic[t.Name])
	}
	fmt.Printf("datatypes: %d\n", len(init.Datatypes))
	for _, m := range init.Metadata {
		fmt.Printf("metadata: %s (%d entries)\n", m.Name, len(m.Values))
	}
	for _, a := range init.Alerts {
		fmt.Fprintf(os.Stderr, "[%s] %s", a.Severity, a.Message)
		if a.Detail != "" {
			fmt.Fprintf(os.Stderr, " (%s)", a.Detail)
		}
		fmt.Fprintln(os.Stderr)
	}

	snap := src.ReadStats()
	fmt.Printf("read: %d bytes, %d records, %d chunks inflated (%d bytes), %s\n",
		snap.BytesRead, snap.TotalRecords, snap.ChunksInflated, snap.InflatedBytes, snap.DecodeElapsed)
	for _, kc := range snap.RecordsByKind {
		fmt.Printf("  %-18s %d\n", kc.Kind, kc.Count)
	}
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
