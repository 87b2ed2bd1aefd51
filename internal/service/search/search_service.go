package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/domain"
	"github.com/mverdun/farewatch/internal/kafka"
	"github.com/mverdun/farewatch/internal/notify"
	"github.com/mverdun/farewatch/internal/repository"
)

var ErrRunInProgress = errors.New("search run already in progress")

type SearchUseCase interface {
	Run(ctx context.Context) (RunSummary, error)
	Status() RunStatus
	RecentDeals(ctx context.Context, limit int) ([]domain.StoredDeal, error)
}

// FlightClient is the upstream pricing API surface the orchestrator needs.
type FlightClient interface {
	SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string) ([]domain.Deal, error)
	SearchCheapestDate(ctx context.Context, origin, destination string) (*domain.Deal, error)
}

type ChatNotifier interface {
	Send(ctx context.Context, text string) error
}

type EmailSender interface {
	SendDealBatch(ctx context.Context, deals []domain.StoredDeal) error
}

type Cache interface {
	GetLatestDeals(ctx context.Context) ([]domain.StoredDeal, error)
	SetLatestDeals(ctx context.Context, deals []domain.StoredDeal) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// RunStatus is the dashboard-facing snapshot of orchestrator state. It is
// written only by the orchestrator after each run and read via Status().
type RunStatus struct {
	LastRunID     string    `json:"last_run_id"`
	LastRunStart  time.Time `json:"last_run_start"`
	LastRunAt     time.Time `json:"last_run_at"`
	LastRunDeals  int       `json:"last_run_deals"`
	LastRunAlerts int       `json:"last_run_alerts"`
	LastError     string    `json:"last_error,omitempty"`
	TotalRuns     int       `json:"total_runs"`
	TotalDeals    int       `json:"total_deals"`
	Running       bool      `json:"running"`
}

// RunSummary is returned to the caller for summary logging.
type RunSummary struct {
	RunID  string
	Deals  int
	Alerts int
	Top    []domain.StoredDeal
}

type SearchService struct {
	deals    repository.DealRepository
	client   FlightClient
	cache    Cache
	producer Producer
	chat     ChatNotifier
	email    EmailSender
	cfg      config.SearchConfig

	dealsTopic string

	mu      sync.RWMutex
	running bool
	status  RunStatus
}

type SearchServiceOption func(*SearchService)

// WithCache enables the latest-deals cache used by RecentDeals.
func WithCache(c Cache) SearchServiceOption {
	return func(s *SearchService) { s.cache = c }
}

// WithProducer enables fire-and-forget deal events on the given topic.
func WithProducer(p Producer, topic string) SearchServiceOption {
	return func(s *SearchService) {
		s.producer = p
		s.dealsTopic = topic
	}
}

func NewSearchService(
	deals repository.DealRepository,
	client FlightClient,
	chat ChatNotifier,
	email EmailSender,
	cfg config.SearchConfig,
	opts ...SearchServiceOption,
) *SearchService {
	service := &SearchService{
		deals:  deals,
		client: client,
		chat:   chat,
		email:  email,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Run executes one full search cycle: scan every configured route, persist
// what was found, select alerts, notify, and mark the alerts notified.
// Upstream failures are logged and contribute nothing; only persistence
// failures abort the run. Concurrent calls beyond the first return
// ErrRunInProgress.
func (s *SearchService) Run(ctx context.Context) (RunSummary, error) {
	if !s.beginRun() {
		return RunSummary{}, ErrRunInProgress
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	log.Printf("search run %s started (routes=%d)", runID, len(s.cfg.Routes))

	summary, err := s.run(ctx, runID)
	s.finishRun(runID, startedAt, summary, err)

	if err != nil {
		log.Printf("search run %s failed: %v", runID, err)
		return summary, err
	}
	log.Printf("search run %s complete (deals=%d alerts=%d)", runID, summary.Deals, summary.Alerts)
	for i, d := range summary.Top {
		log.Printf("%d. %s → %s $%.2f (%s)", i+1, d.Origin, d.Destination, d.Price, d.Airline)
	}
	return summary, nil
}

func (s *SearchService) run(ctx context.Context, runID string) (RunSummary, error) {
	found := s.scanRoutes(ctx)

	stored, err := s.deals.SaveDeals(ctx, found)
	if err != nil {
		return RunSummary{RunID: runID}, fmt.Errorf("persist deals: %w", err)
	}

	alerts, err := s.selectAlerts(ctx)
	if err != nil {
		return RunSummary{RunID: runID, Deals: len(stored)}, fmt.Errorf("select alerts: %w", err)
	}

	s.dispatchAlerts(ctx, alerts)
	s.publishDealEvents(ctx, stored)

	if s.cache != nil {
		if cacheErr := s.cache.SetLatestDeals(ctx, stored); cacheErr != nil {
			log.Printf("refresh deals cache: %v", cacheErr)
		}
	}

	return RunSummary{
		RunID:  runID,
		Deals:  len(stored),
		Alerts: len(alerts),
		Top:    topCheapest(stored, s.cfg.TopN),
	}, nil
}

// scanRoutes walks every configured route and date offset sequentially,
// sleeping a fixed delay between upstream calls. A failed call is logged
// and skipped; it is indistinguishable from "no deals" further down, by
// the same contract the dashboard exposes.
func (s *SearchService) scanRoutes(ctx context.Context) []domain.Deal {
	found := make([]domain.Deal, 0)

	for _, route := range s.cfg.Routes {
		if s.cfg.CheapestDateMode {
			deal, err := s.client.SearchCheapestDate(ctx, route.Origin, route.Destination)
			if err != nil {
				log.Printf("cheapest-date search %s-%s: %v", route.Origin, route.Destination, err)
			} else if deal != nil {
				found = append(found, *deal)
			} else {
				log.Printf("no results for %s-%s", route.Origin, route.Destination)
			}
			if !sleepCtx(ctx, s.cfg.RequestDelay()) {
				return found
			}
			continue
		}

		for _, offset := range s.cfg.DayOffsets {
			departure := time.Now().AddDate(0, 0, offset)
			departureDate := departure.Format("2006-01-02")
			returnDate := ""
			if s.cfg.StayDays > 0 {
				returnDate = departure.AddDate(0, 0, s.cfg.StayDays).Format("2006-01-02")
			}

			deals, err := s.client.SearchOffers(ctx, route.Origin, route.Destination, departureDate, returnDate)
			if err != nil {
				log.Printf("offer search %s-%s %s: %v", route.Origin, route.Destination, departureDate, err)
			} else {
				found = append(found, deals...)
			}
			if !sleepCtx(ctx, s.cfg.RequestDelay()) {
				return found
			}
		}
	}
	return found
}

// selectAlerts returns not-yet-notified recent deals strictly under the
// price threshold, cheapest first. The threshold is absolute; history is
// not consulted.
func (s *SearchService) selectAlerts(ctx context.Context) ([]domain.StoredDeal, error) {
	recent, err := s.deals.UnnotifiedSince(ctx, s.cfg.AlertWindow())
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.StoredDeal, 0, len(recent))
	for _, d := range recent {
		if d.Price < s.cfg.PriceThreshold {
			alerts = append(alerts, d)
		}
	}
	return alerts, nil
}

// dispatchAlerts sends one chat message per alert and a single batched
// email, then marks the alerts notified. Notification failures are logged
// only; the orchestrator does not branch on them. When the context ends
// mid-loop, alerts never dispatched stay unnotified so the next run can
// pick them up.
func (s *SearchService) dispatchAlerts(ctx context.Context, alerts []domain.StoredDeal) {
	if len(alerts) == 0 {
		return
	}

	dispatched := make([]domain.StoredDeal, 0, len(alerts))
	for _, alert := range alerts {
		if s.chat != nil {
			if err := s.chat.Send(ctx, notify.FormatDeal(alert)); err != nil {
				log.Printf("chat notification %s-%s: %v", alert.Origin, alert.Destination, err)
			}
		}
		dispatched = append(dispatched, alert)
		if !sleepCtx(ctx, s.cfg.NotifyDelay()) {
			break
		}
	}

	if s.email != nil {
		if err := s.email.SendDealBatch(ctx, dispatched); err != nil {
			log.Printf("email notification: %v", err)
		}
	}

	ids := make([]int64, 0, len(dispatched))
	for _, alert := range dispatched {
		ids = append(ids, alert.ID)
	}
	if err := s.deals.MarkNotified(ctx, ids); err != nil {
		log.Printf("mark notified: %v", err)
	}
}

func (s *SearchService) publishDealEvents(ctx context.Context, stored []domain.StoredDeal) {
	if s.producer == nil || len(stored) == 0 {
		return
	}
	for _, d := range stored {
		event := kafka.NewDealEvent(d)
		if err := s.producer.Publish(ctx, s.dealsTopic, event.RouteKey(), event); err != nil {
			log.Printf("publish deal event %s: %v", event.RouteKey(), err)
		}
	}
}

// RecentDeals serves the dashboard listing, cache first with repository
// fallback.
func (s *SearchService) RecentDeals(ctx context.Context, limit int) ([]domain.StoredDeal, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetLatestDeals(ctx); err == nil && cached != nil {
			if limit > 0 && len(cached) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}
	return s.deals.RecentDeals(ctx, limit)
}

// Status returns a copy of the current run status.
func (s *SearchService) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.status
	status.Running = s.running
	return status
}

func (s *SearchService) beginRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *SearchService) finishRun(runID string, startedAt time.Time, summary RunSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.status.LastRunID = runID
	s.status.LastRunStart = startedAt
	s.status.LastRunAt = time.Now()
	s.status.LastRunDeals = summary.Deals
	s.status.LastRunAlerts = summary.Alerts
	s.status.TotalRuns++
	s.status.TotalDeals += summary.Deals
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
}

func topCheapest(deals []domain.StoredDeal, n int) []domain.StoredDeal {
	if len(deals) == 0 || n <= 0 {
		return nil
	}
	sorted := make([]domain.StoredDeal, len(deals))
	copy(sorted, deals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// sleepCtx waits for d or until ctx is done; it reports false when the
// context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ SearchUseCase = (*SearchService)(nil)
