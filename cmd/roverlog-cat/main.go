// Package main implements the roverlog-cat binary: stream a log file's
// messages in receive-time order as JSON lines.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/roverlog/roverlog/internal/config"
	"github.com/roverlog/roverlog/internal/source"
	"github.com/roverlog/roverlog/internal/storage"
	"github.com/roverlog/roverlog/pkg/types"
)

// line is the JSON shape written per message.
type line struct {
	Topic       string     `json:"topic"`
	ChannelID   uint16     `json:"channelId"`
	ReceiveTime types.Time `json:"receiveTime"`
	PublishTime types.Time `json:"publishTime"`
	SizeBytes   int64      `json:"sizeBytes"`
	SchemaName  string     `json:"schemaName,omitempty"`
	Data        []byte     `json:"data"`
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	filePath := flag.String("file", "", "local log file path (overrides config)")
	topicsFlag := flag.String("topics", "", "comma-separated topic names (default: all)")
	startNs := flag.Uint64("start", 0, "range start in epoch nanoseconds (default: file start)")
	endNs := flag.Uint64("end", 0, "range end in epoch nanoseconds (default: file end)")
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

	opts := source.IteratorOptions{Topics: topics}
	if *startNs != 0 {
		t := types.FromNanoseconds(*startNs)
		opts.Start = &t
	}
	if *endNs != 0 {
		t := types.FromNanoseconds(*endNs)
		opts.End = &t
	}

	it, err := src.MessageIterator(opts)
	if err != nil {
		log.Fatalf("Iterator failed: %v", err)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)
	for {
		item, ok := it.Next()
		if !ok {
			break
		}
		ev := item.Event
		err := enc.Encode(line{
			Topic:       ev.Topic,
			ChannelID:   item.ChannelID,
			ReceiveTime: ev.ReceiveTime,
			PublishTime: ev.PublishTime,
			SizeBytes:   ev.SizeBytes,
			SchemaName:  ev.SchemaName,
			Data:        ev.Data,
		})
		if err != nil {
			log.Fatalf("Write failed: %v", err)
		}
	}
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
