package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"subsbuzz-client-go/internal/client"
	"subsbuzz-client-go/internal/config"
	"subsbuzz-client-go/internal/digest"
	"subsbuzz-client-go/internal/poller"
	"subsbuzz-client-go/internal/retry"
	"subsbuzz-client-go/internal/storage"
	"subsbuzz-client-go/pkg/models"
)

func main() {
	logger := log.New(os.Stdout, "subsbuzz: ", log.LstdFlags)

	configPath := "./configs/config.json"
	if v := os.Getenv("SUBSBUZZ_CONFIG"); v != "" {
		configPath = v
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.Open(cfg.DBPath, []byte(cfg.EncryptionKey))
	if err != nil {
		logger.Fatalf("Failed to open token store: %v", err)
	}
	defer store.Close()

	api, err := client.New(cfg, store, logger)
	if err != nil {
		logger.Fatalf("Failed to create client: %v", err)
	}
	api.SetSignOutHandler(func() {
		logger.Println("Session ended, sign in again to resume polling.")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		logger.Println("Shutdown signal received, stopping poller...")
		cancel()
	}()

	digests := digest.NewService(api, logger)
	p := poller.New(digests, cfg.Poller.Interval.Duration, retry.Manual(cfg.Poller.MaxRetries), logger, func(d *models.Digest) {
		logger.Printf("New digest %s (%s): %d emails, %d topics", d.ID, d.Date, d.EmailCount, len(d.Topics))
	})

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("Poller stopped: %v", err)
	}
	logger.Println("Poller has stopped.")
}
