package bootstrap

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mverdun/farewatch/api"
	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/repository"
	"github.com/mverdun/farewatch/internal/service/search"
)

// Run starts the dashboard HTTP server and the periodic search loop, and
// blocks until the context is canceled or the server fails.
func Run(ctx context.Context, cfg *config.Config, searchSvc search.SearchUseCase, history repository.HistoryRepository) error {
	router := gin.Default()
	api.NewStatusHandler(searchSvc, history).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	go scanLoop(ctx, searchSvc, cfg.Search.Interval())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

// scanLoop runs one search immediately, then again on every tick until the
// context ends. A run already started from the manual trigger is skipped.
func scanLoop(ctx context.Context, searchSvc search.SearchUseCase, interval time.Duration) {
	log.Printf("scan loop started (interval=%s)", interval)

	runOnce(ctx, searchSvc)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scan loop stopped")
			return
		case <-ticker.C:
			runOnce(ctx, searchSvc)
		}
	}
}

func runOnce(ctx context.Context, searchSvc search.SearchUseCase) {
	if _, err := searchSvc.Run(ctx); err != nil && err != search.ErrRunInProgress {
		log.Printf("scheduled run error: %v", err)
	}
}
