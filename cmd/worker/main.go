package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labtrack/internal/config"
	"labtrack/internal/metrics"
	"labtrack/internal/model"
	"labtrack/internal/notify"
	"labtrack/internal/pending"
	"labtrack/internal/queue"
	"labtrack/internal/store"
)

// Worker consumes pending sign-out lifecycle messages, forwards webhook
// notifications, and runs the periodic cleanup sweep.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	loc, err := cfg.Timezone()
	if err != nil {
		log.Fatalf("load reference timezone: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var records store.RecordStore
	switch cfg.StoreBackend {
	case "memory":
		records = store.NewMemory()
	case "postgres":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		records, err = store.NewPostgresRecords(db.Client)
		if err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
	default:
		records = store.NewRedisRecords(redisClient.Client, "labtrack")
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "labtrack:events")
	}

	pend := pending.NewService(records, loc)
	webhook := notify.New(cfg.WebhookURL, cfg.WebhookSkip)
	if !webhook.Skip {
		log.Printf("webhook notifications -> %s", cfg.WebhookURL)
	}

	// periodic cleanup of aged-out resolved records
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed, err := pend.Cleanup(ctx, cfg.CleanupMaxAgeDays)
				if err != nil {
					log.Printf("cleanup sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					metrics.CleanupRemoved.Add(float64(removed))
					log.Printf("cleanup removed %d resolved record(s)", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		switch msg.Type {
		case queue.TypePendingCreated, queue.TypePendingResolved:
		default:
			continue
		}

		log.Printf("processing %s for record %s", msg.Type, msg.RecordID)

		evt := notify.Event{
			Type:       msg.Type,
			RecordID:   msg.RecordID,
			UFID:       msg.UFID,
			ResolvedBy: msg.ResolvedBy,
			At:         msg.At,
		}
		if msg.Type == queue.TypePendingCreated {
			// the surface service needs the token to render the student link
			if rec, ok := lookupRecord(ctx, records, msg.RecordID); ok {
				evt.Name = rec.Name
				evt.Token = rec.Token
			}
		}
		if err := webhook.Send(ctx, evt); err != nil {
			log.Printf("webhook send failed for %s: %v", msg.RecordID, err)
		}
	}

	log.Println("worker stopped")
}

func lookupRecord(ctx context.Context, records store.RecordStore, id string) (model.PendingSignout, bool) {
	var recs []model.PendingSignout
	if err := records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		log.Printf("lookup record %s failed: %v", id, err)
		return model.PendingSignout{}, false
	}
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return model.PendingSignout{}, false
}
