package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockOutboxRepo is a mock for the outbox repository
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func newTestRelay(redisClient RedisClient, outbox OutboxRepo) *Relay {
	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    testLogger(),
		interval:  time.Second,
		batchSize: 10,
	}
}

func newListingEvent() *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "listing",
		AggregateID:   "https://auto.ria.com/uk/auto_audi_q7_1.html",
		EventType:     EventTypeNewListingFound,
		Payload:       json.RawMessage(`{"url":"https://auto.ria.com/uk/auto_audi_q7_1.html","title":"Audi Q7"}`),
		TargetStream:  "stream:listings",
		Status:        OutboxStatusPending,
		CreatedAt:     time.Now(),
	}
}

func TestRelayShipsPendingEvents(t *testing.T) {
	ctx := context.Background()
	event := newListingEvent()

	redisMock := new(MockRedisClient)
	outboxMock := new(MockOutboxRepo)

	outboxMock.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
	redisMock.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		return args.Stream == "stream:listings" &&
			args.Values.(map[string]interface{})["event_type"] == EventTypeNewListingFound
	})).Return(nil)
	outboxMock.On("MarkProcessed", ctx, event.ID).Return(nil)

	relay := newTestRelay(redisMock, outboxMock)
	require.NoError(t, relay.processEvents(ctx))

	redisMock.AssertExpectations(t)
	outboxMock.AssertExpectations(t)
}

func TestRelayMarksFailedOnRedisError(t *testing.T) {
	ctx := context.Background()
	event := newListingEvent()
	redisErr := errors.New("redis unavailable")

	redisMock := new(MockRedisClient)
	outboxMock := new(MockOutboxRepo)

	outboxMock.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
	redisMock.On("XAdd", ctx, mock.Anything).Return(redisErr)
	outboxMock.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

	relay := newTestRelay(redisMock, outboxMock)
	require.NoError(t, relay.processEvents(ctx))

	outboxMock.AssertCalled(t, "MarkFailed", ctx, event.ID, mock.Anything)
	outboxMock.AssertNotCalled(t, "MarkProcessed", ctx, event.ID)
}

func TestRelayPropagatesOutboxError(t *testing.T) {
	ctx := context.Background()

	redisMock := new(MockRedisClient)
	outboxMock := new(MockOutboxRepo)

	outboxMock.On("GetPending", ctx, 10).Return(nil, errors.New("db gone"))

	relay := newTestRelay(redisMock, outboxMock)
	err := relay.processEvents(ctx)

	assert.Error(t, err)
	redisMock.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
}

func TestRelayNoEventsIsNoop(t *testing.T) {
	ctx := context.Background()

	redisMock := new(MockRedisClient)
	outboxMock := new(MockOutboxRepo)

	outboxMock.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

	relay := newTestRelay(redisMock, outboxMock)
	require.NoError(t, relay.processEvents(ctx))

	redisMock.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
}
