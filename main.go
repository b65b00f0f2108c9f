package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chatstore/config"
	"chatstore/crypto"
	"chatstore/logging"
	"chatstore/metrics"
	"chatstore/receiver"
	"chatstore/storage"
)

const serviceName = "chatstore"

func main() {
	ingestPath := flag.String("ingest", "", "file of newline-delimited JSON envelopes to process, - for stdin")
	flag.Parse()

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, serviceName)
	if err != nil {
		log.Fatalf("startup failed while building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	identityKey, err := crypto.LoadOrCreateIdentityKey(cfg.IdentityKeyPath)
	if err != nil {
		logger.Fatal("startup failed while preparing identity key", zap.Error(err))
	}

	fingerprint := crypto.Fingerprint(identityKey.Public().(ed25519.PublicKey))
	if cfg.KeyFingerprint != fingerprint {
		cfg.KeyFingerprint = fingerprint
		if err := config.Save(cfgPath, cfg); err != nil {
			logger.Fatal("startup failed while persisting key fingerprint", zap.Error(err))
		}
	}

	checkpointInterval, err := cfg.CheckpointInterval()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	sink := metrics.NewSink(nil)
	dataDir := filepath.Dir(cfgPath)
	store, dbPath, err := storage.Open(dataDir, storage.Options{
		WALCheckpointInterval: checkpointInterval,
		Logger:                logger,
		Observer:              sink,
	})
	if err != nil {
		logger.Fatal("startup failed while opening database", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()

	fmt.Printf("Device ID:       %s\n", cfg.DeviceID)
	fmt.Printf("Device Name:     %s\n", cfg.DeviceName)
	fmt.Printf("Fingerprint:     %s\n", crypto.FormatFingerprint(cfg.KeyFingerprint))
	fmt.Printf("Config File:     %s\n", cfgPath)
	fmt.Printf("Data Directory:  %s\n", dataDir)
	fmt.Printf("Database File:   %s\n", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *ingestPath != "" {
		processor, err := receiver.NewProcessor(receiver.Config{
			Store:    store,
			Sessions: receiver.NewMemorySessions(),
			Recorder: sink,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("startup failed while building receiver", zap.Error(err))
		}
		if err := ingest(ctx, processor, *ingestPath); err != nil {
			logger.Error("ingest failed", zap.Error(err))
		}
	}

	if err := printThreadSummary(ctx, store); err != nil {
		logger.Warn("thread summary failed", zap.Error(err))
	}

	if !cfg.MetricsEnabled() {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
			stop()
		}
	}()

	fmt.Printf("Metrics:         http://%s/metrics\n", cfg.MetricsAddr)
	fmt.Println("Status:          running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:          shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
}

func ingest(ctx context.Context, processor *receiver.Processor, path string) error {
	input := os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open envelope file: %w", err)
		}
		defer file.Close()
		input = file
	}

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), receiver.MaxEnvelopeSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		result, err := processor.Process(ctx, line)
		if err != nil {
			return err
		}
		switch {
		case result.Notice != nil:
			fmt.Printf("Envelope:        %s (%s)\n", result.Outcome, result.Notice.PreviewText())
		case result.Threadless != nil:
			fmt.Printf("Envelope:        %s (%s)\n", result.Outcome, result.Threadless.PreviewText())
		default:
			fmt.Printf("Envelope:        %s (%d bytes)\n", result.Outcome, len(result.Plaintext))
		}
	}
	return scanner.Err()
}

func printThreadSummary(ctx context.Context, store *storage.Store) error {
	return store.Read(ctx, func(tx *storage.ReadTx) error {
		threads, err := tx.ListThreads()
		if err != nil {
			return err
		}
		fmt.Printf("Threads:         %d\n", len(threads))
		for _, thread := range threads {
			unread, err := tx.UnreadCount(thread.ID)
			if err != nil {
				return err
			}
			label := thread.ID
			if thread.ContactAddress != nil {
				label = thread.ContactAddress.String()
			}
			fmt.Printf("  %-14s %s unread=%d\n", thread.Kind, label, unread)
		}
		return nil
	})
}
