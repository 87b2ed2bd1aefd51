package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/domain"
)

type MockDealRepository struct {
	mock.Mock
}

func (m *MockDealRepository) SaveDeals(ctx context.Context, deals []domain.Deal) ([]domain.StoredDeal, error) {
	args := m.Called(ctx, deals)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredDeal), args.Error(1)
}

func (m *MockDealRepository) UnnotifiedSince(ctx context.Context, window time.Duration) ([]domain.StoredDeal, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredDeal), args.Error(1)
}

func (m *MockDealRepository) MarkNotified(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDealRepository) RecentDeals(ctx context.Context, limit int) ([]domain.StoredDeal, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredDeal), args.Error(1)
}

type MockFlightClient struct {
	mock.Mock
}

func (m *MockFlightClient) SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string) ([]domain.Deal, error) {
	args := m.Called(ctx, origin, destination, departureDate, returnDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Deal), args.Error(1)
}

func (m *MockFlightClient) SearchCheapestDate(ctx context.Context, origin, destination string) (*domain.Deal, error) {
	args := m.Called(ctx, origin, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Deal), args.Error(1)
}

type MockChatNotifier struct {
	mock.Mock
}

func (m *MockChatNotifier) Send(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendDealBatch(ctx context.Context, deals []domain.StoredDeal) error {
	args := m.Called(ctx, deals)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetLatestDeals(ctx context.Context) ([]domain.StoredDeal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StoredDeal), args.Error(1)
}

func (m *MockCache) SetLatestDeals(ctx context.Context, deals []domain.StoredDeal) error {
	args := m.Called(ctx, deals)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		Routes:           []config.RouteConfig{{Origin: "MVD", Destination: "MAD"}},
		DayOffsets:       []int{7},
		CheapestDateMode: true,
		PriceThreshold:   400,
		AlertWindowHours: 24,
		TopN:             3,
	}
}

func cheapDeal() domain.Deal {
	return domain.Deal{
		Origin:        "MVD",
		Destination:   "MAD",
		DepartureDate: "2026-11-18",
		Price:         275.5,
		Airline:       "N/A",
		Source:        "Amadeus Cheapest Dates",
		URL:           "https://www.google.com/flights?hl=es#flt=MVD.MAD.2026-11-18",
		FoundAt:       time.Now(),
	}
}

func TestSearchService_Run_CheapestDateFullPipeline(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}
	mockChat := &MockChatNotifier{}
	mockEmail := &MockEmailSender{}
	mockCache := &MockCache{}
	mockProducer := &MockProducer{}

	service := NewSearchService(mockRepo, mockClient, mockChat, mockEmail, testSearchConfig(),
		WithCache(mockCache),
		WithProducer(mockProducer, "flight.deals"),
	)

	ctx := context.Background()
	deal := cheapDeal()
	stored := []domain.StoredDeal{{Deal: deal, ID: 1}}

	mockClient.On("SearchCheapestDate", ctx, "MVD", "MAD").Return(&deal, nil).Once()
	mockRepo.On("SaveDeals", ctx, []domain.Deal{deal}).Return(stored, nil).Once()
	mockRepo.On("UnnotifiedSince", ctx, 24*time.Hour).Return(stored, nil).Once()
	mockChat.On("Send", ctx, mock.AnythingOfType("string")).Return(nil).Once()
	mockEmail.On("SendDealBatch", ctx, stored).Return(nil).Once()
	mockRepo.On("MarkNotified", ctx, []int64{1}).Return(nil).Once()
	mockProducer.On("Publish", ctx, "flight.deals", "MVD-MAD", mock.Anything).Return(nil).Once()
	mockCache.On("SetLatestDeals", ctx, stored).Return(nil).Once()

	summary, err := service.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deals)
	assert.Equal(t, 1, summary.Alerts)
	require.Len(t, summary.Top, 1)
	assert.Equal(t, 275.5, summary.Top[0].Price)

	mockClient.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
	mockChat.AssertExpectations(t)
	mockEmail.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestSearchService_Run_OfferModeAccumulatesOffsets(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}

	cfg := testSearchConfig()
	cfg.CheapestDateMode = false
	cfg.DayOffsets = []int{7, 14}
	cfg.StayDays = 14

	service := NewSearchService(mockRepo, mockClient, nil, nil, cfg)

	ctx := context.Background()
	deal := cheapDeal()

	mockClient.On("SearchOffers", ctx, "MVD", "MAD", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return([]domain.Deal{deal}, nil).Twice()
	mockRepo.On("SaveDeals", ctx, mock.Anything).
		Return([]domain.StoredDeal{{Deal: deal, ID: 1}, {Deal: deal, ID: 2}}, nil).Once()
	mockRepo.On("UnnotifiedSince", ctx, 24*time.Hour).Return([]domain.StoredDeal{}, nil).Once()

	summary, err := service.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Deals)
	assert.Equal(t, 0, summary.Alerts)

	mockClient.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "MarkNotified")
}

// An upstream failure must look like an empty run, never an escaped error.
func TestSearchService_Run_ClientFailureYieldsEmptyRun(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}
	mockChat := &MockChatNotifier{}
	mockEmail := &MockEmailSender{}

	service := NewSearchService(mockRepo, mockClient, mockChat, mockEmail, testSearchConfig())

	ctx := context.Background()

	mockClient.On("SearchCheapestDate", ctx, "MVD", "MAD").
		Return(nil, errors.New("amadeus: token returned status 401")).Once()
	mockRepo.On("SaveDeals", ctx, mock.Anything).Return(nil, nil).Once()
	mockRepo.On("UnnotifiedSince", ctx, 24*time.Hour).Return([]domain.StoredDeal{}, nil).Once()

	summary, err := service.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Deals)
	assert.Equal(t, 0, summary.Alerts)

	mockChat.AssertNotCalled(t, "Send")
	mockEmail.AssertNotCalled(t, "SendDealBatch")
	mockRepo.AssertExpectations(t)
}

func TestSearchService_Run_FlatThresholdFilter(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}
	mockChat := &MockChatNotifier{}
	mockEmail := &MockEmailSender{}

	service := NewSearchService(mockRepo, mockClient, mockChat, mockEmail, testSearchConfig())

	ctx := context.Background()
	deal := cheapDeal()

	under := domain.StoredDeal{Deal: deal, ID: 1}
	under.Price = 399.99
	atThreshold := domain.StoredDeal{Deal: deal, ID: 2}
	atThreshold.Price = 400
	over := domain.StoredDeal{Deal: deal, ID: 3}
	over.Price = 450

	mockClient.On("SearchCheapestDate", ctx, "MVD", "MAD").Return(&deal, nil).Once()
	mockRepo.On("SaveDeals", ctx, mock.Anything).Return([]domain.StoredDeal{{Deal: deal, ID: 9}}, nil).Once()
	mockRepo.On("UnnotifiedSince", ctx, 24*time.Hour).
		Return([]domain.StoredDeal{under, atThreshold, over}, nil).Once()
	mockChat.On("Send", ctx, mock.AnythingOfType("string")).Return(nil).Once()
	mockEmail.On("SendDealBatch", ctx, []domain.StoredDeal{under}).Return(nil).Once()
	mockRepo.On("MarkNotified", ctx, []int64{1}).Return(nil).Once()

	summary, err := service.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)

	mockChat.AssertExpectations(t)
	mockEmail.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

// A failing SMTP send must not undo chat notifications or skip mark-notified.
func TestSearchService_Run_EmailFailureDoesNotAffectChat(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}
	mockChat := &MockChatNotifier{}
	mockEmail := &MockEmailSender{}

	service := NewSearchService(mockRepo, mockClient, mockChat, mockEmail, testSearchConfig())

	ctx := context.Background()
	deal := cheapDeal()
	stored := []domain.StoredDeal{{Deal: deal, ID: 1}}

	mockClient.On("SearchCheapestDate", ctx, "MVD", "MAD").Return(&deal, nil).Once()
	mockRepo.On("SaveDeals", ctx, mock.Anything).Return(stored, nil).Once()
	mockRepo.On("UnnotifiedSince", ctx, 24*time.Hour).Return(stored, nil).Once()
	mockChat.On("Send", ctx, mock.AnythingOfType("string")).Return(nil).Once()
	mockEmail.On("SendDealBatch", ctx, stored).Return(errors.New("smtp: connection refused")).Once()
	mockRepo.On("MarkNotified", ctx, []int64{1}).Return(nil).Once()

	summary, err := service.Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Alerts)

	mockChat.AssertExpectations(t)
	mockEmail.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

// Cancellation between chat sends must leave the untouched alerts
// unnotified for the next run.
func TestSearchService_Run_CancelledMidDispatchKeepsRestUnnotified(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}
	mockChat := &MockChatNotifier{}
	mockEmail := &MockEmailSender{}

	service := NewSearchService(mockRepo, mockClient, mockChat, mockEmail, testSearchConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deal := cheapDeal()
	first := domain.StoredDeal{Deal: deal, ID: 1}
	second := domain.StoredDeal{Deal: deal, ID: 2}

	mockClient.On("SearchCheapestDate", mock.Anything, "MVD", "MAD").Return(&deal, nil).Once()
	mockRepo.On("SaveDeals", mock.Anything, mock.Anything).
		Return([]domain.StoredDeal{first, second}, nil).Once()
	mockRepo.On("UnnotifiedSince", mock.Anything, 24*time.Hour).
		Return([]domain.StoredDeal{first, second}, nil).Once()
	mockChat.On("Send", mock.Anything, mock.AnythingOfType("string")).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil).Once()
	mockEmail.On("SendDealBatch", mock.Anything, []domain.StoredDeal{first}).Return(nil).Once()
	mockRepo.On("MarkNotified", mock.Anything, []int64{1}).Return(nil).Once()

	_, err := service.Run(ctx)

	require.NoError(t, err)
	mockChat.AssertNumberOfCalls(t, "Send", 1)
	mockEmail.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestSearchService_Run_PersistFailure(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}

	service := NewSearchService(mockRepo, mockClient, nil, nil, testSearchConfig())

	ctx := context.Background()
	deal := cheapDeal()

	mockClient.On("SearchCheapestDate", ctx, "MVD", "MAD").Return(&deal, nil).Once()
	mockRepo.On("SaveDeals", ctx, mock.Anything).Return(nil, errors.New("database locked")).Once()

	_, err := service.Run(ctx)

	require.Error(t, err)
	assert.Contains(t, service.Status().LastError, "database locked")
	mockRepo.AssertNotCalled(t, "UnnotifiedSince")
}

func TestSearchService_Status_UpdatedAfterRun(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockClient := &MockFlightClient{}

	service := NewSearchService(mockRepo, mockClient, nil, nil, testSearchConfig())

	assert.Equal(t, 0, service.Status().TotalRuns)
	assert.False(t, service.Status().Running)

	ctx := context.Background()
	deal := cheapDeal()
	stored := []domain.StoredDeal{{Deal: deal, ID: 1}}

	mockClient.On("SearchCheapestDate", ctx, "MVD", "MAD").Return(&deal, nil).Once()
	mockRepo.On("SaveDeals", ctx, mock.Anything).Return(stored, nil).Once()
	mockRepo.On("UnnotifiedSince", ctx, 24*time.Hour).Return([]domain.StoredDeal{}, nil).Once()

	_, err := service.Run(ctx)
	require.NoError(t, err)

	status := service.Status()
	assert.Equal(t, 1, status.TotalRuns)
	assert.Equal(t, 1, status.TotalDeals)
	assert.Equal(t, 1, status.LastRunDeals)
	assert.Equal(t, 0, status.LastRunAlerts)
	assert.NotEmpty(t, status.LastRunID)
	assert.False(t, status.LastRunStart.IsZero())
	assert.False(t, status.LastRunAt.Before(status.LastRunStart))
	assert.Empty(t, status.LastError)
	assert.False(t, status.Running)
}

func TestSearchService_RecentDeals_CacheHit(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockCache := &MockCache{}

	service := NewSearchService(mockRepo, nil, nil, nil, testSearchConfig(), WithCache(mockCache))

	ctx := context.Background()
	deals := []domain.StoredDeal{{Deal: cheapDeal(), ID: 1}, {Deal: cheapDeal(), ID: 2}}

	mockCache.On("GetLatestDeals", ctx).Return(deals, nil).Once()

	result, err := service.RecentDeals(ctx, 1)

	require.NoError(t, err)
	assert.Len(t, result, 1)

	mockCache.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "RecentDeals")
}

func TestSearchService_RecentDeals_CacheMiss(t *testing.T) {
	mockRepo := &MockDealRepository{}
	mockCache := &MockCache{}

	service := NewSearchService(mockRepo, nil, nil, nil, testSearchConfig(), WithCache(mockCache))

	ctx := context.Background()
	deals := []domain.StoredDeal{{Deal: cheapDeal(), ID: 1}}

	mockCache.On("GetLatestDeals", ctx).Return(([]domain.StoredDeal)(nil), nil).Once()
	mockRepo.On("RecentDeals", ctx, 10).Return(deals, nil).Once()

	result, err := service.RecentDeals(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, deals, result)

	mockCache.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestSearchService_RecentDeals_NoCache(t *testing.T) {
	mockRepo := &MockDealRepository{}

	service := NewSearchService(mockRepo, nil, nil, nil, testSearchConfig())

	ctx := context.Background()
	deals := []domain.StoredDeal{{Deal: cheapDeal(), ID: 1}}

	mockRepo.On("RecentDeals", ctx, 10).Return(deals, nil).Once()

	result, err := service.RecentDeals(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, deals, result)
	mockRepo.AssertExpectations(t)
}
