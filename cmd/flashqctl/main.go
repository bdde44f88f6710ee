// Command flashqctl is a minimal demonstration of the flashq core: it
// opens a queue, produces a few records to a topic, and polls them
// back. It exists to exercise the library end to end; the gRPC/HTTP
// serving layers that would normally sit in front of it are out of
// scope for this core.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mrshabel/flashq"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	topic := flag.String("topic", "demo", "topic to produce to and poll from")
	debug := flag.Bool("debug", false, "use a development (human-readable) logger instead of production JSON")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := flashq.DefaultConfig()
	if *configPath != "" {
		cfg, err = flashq.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}

	backend, err := flashq.NewBackend(cfg)
	if err != nil {
		logger.Fatal("failed to open storage backend", zap.Error(err))
	}
	defer backend.Close()

	queue := flashq.NewQueue(backend)

	value := "hello from flashqctl"
	offset, err := queue.PostRecord(*topic, flashq.Record{Value: value})
	if err != nil {
		logger.Fatal("failed to post record", zap.String("topic", *topic), zap.Error(err))
	}
	logger.Info("posted record", zap.String("topic", *topic), zap.Uint64("offset", offset))

	records, err := queue.PollRecords(*topic, nil)
	if err != nil {
		logger.Fatal("failed to poll records", zap.String("topic", *topic), zap.Error(err))
	}
	for _, r := range records {
		fmt.Printf("offset=%d timestamp=%s value=%q\n", r.Offset, r.Timestamp, r.Record.Value)
	}
}
