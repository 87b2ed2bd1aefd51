package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/domain"
	"github.com/mverdun/farewatch/internal/kafka"
	"github.com/mverdun/farewatch/internal/repository"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("worker requires kafka brokers")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	historyRepo := repository.NewHistoryRepository(db)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.DealsTopic)
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, event kafka.DealEvent) error {
			point := domain.PricePoint{
				Origin:      event.Origin,
				Destination: event.Destination,
				Date:        event.DepartureDate,
				Price:       event.Price,
				Source:      event.Source,
				RecordedAt:  event.FoundAt,
			}
			if err := historyRepo.RecordPricePoint(ctx, point); err != nil {
				log.Printf("record price point %s-%s: %v", event.Origin, event.Destination, err)
			}
			return nil
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	pruneTicker := time.NewTicker(time.Duration(cfg.Worker.PruneSweepMinutes) * time.Minute)
	defer pruneTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	retention := time.Duration(cfg.Worker.RetentionDays) * 24 * time.Hour

	for {
		select {
		case <-pruneTicker.C:
			cutoff := time.Now().Add(-retention)
			pruned, err := historyRepo.PruneHistoryBefore(ctx, cutoff)
			if err != nil {
				log.Printf("prune price history: %v", err)
				continue
			}
			if pruned > 0 {
				log.Printf("pruned %d price history rows", pruned)
			}
		case s := <-sig:
			log.Printf("received signal %v, shutting down", s)
			return
		}
	}
}
