package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/amadeus"
	"github.com/mverdun/farewatch/internal/bootstrap"
	"github.com/mverdun/farewatch/internal/cache"
	"github.com/mverdun/farewatch/internal/kafka"
	"github.com/mverdun/farewatch/internal/notify"
	"github.com/mverdun/farewatch/internal/repository"
	"github.com/mverdun/farewatch/internal/service/search"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	dealRepo := repository.NewDealRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	client := amadeus.NewClient(amadeus.Config{
		BaseURL:    cfg.Amadeus.BaseURL,
		APIKey:     cfg.Amadeus.APIKey,
		APISecret:  cfg.Amadeus.APISecret,
		Currency:   cfg.Amadeus.Currency,
		MaxResults: cfg.Amadeus.MaxResults,
	})

	telegram := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	email := notify.NewEmailSender(cfg.Email)

	opts := []search.SearchServiceOption{}
	if cfg.Redis.Addr != "" {
		dealsCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Redis.CacheTTL)*time.Second)
		opts = append(opts, search.WithCache(dealsCache))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		opts = append(opts, search.WithProducer(producer, cfg.Kafka.DealsTopic))
	}

	searchSvc := search.NewSearchService(dealRepo, client, telegram, email, cfg.Search, opts...)

	if err := bootstrap.Run(ctx, cfg, searchSvc, historyRepo); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
