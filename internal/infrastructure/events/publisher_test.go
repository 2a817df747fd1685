package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"price-discovery/internal/infrastructure/config"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []MatchEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit did not finish")
	}
}

func TestEmit(t *testing.T) {
	p := &recordingPublisher{}
	waitDone(t, Emit(p, MatchEvent{ProductName: "süt", ListingID: "sutas", Price: 35}))

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.events, 1)
	assert.Equal(t, "sutas", p.events[0].ListingID)
	assert.False(t, p.events[0].MatchedAt.IsZero(), "未指定時間時自動填入")
}

func TestEmit_ErrorIsSwallowed(t *testing.T) {
	p := &recordingPublisher{err: errors.New("broker down")}
	waitDone(t, Emit(p, MatchEvent{ListingID: "x"}))
	waitDone(t, Emit(nil, MatchEvent{ListingID: "x"}))
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), MatchEvent{ListingID: "x"}))
	assert.NoError(t, p.Close())
}

func TestMatchEventJSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(MatchEvent{ProductName: "süt", ListingID: "sutas", Price: 35, MatchedAt: at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"product_name":"süt","listing_id":"sutas","price":35,"matched_at":"2024-05-01T12:00:00Z"}`, string(raw))
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	p, err := NewFromConfig(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, LogPublisher{}, p)

	cfg.Redis.EventsEnabled = true
	cfg.Redis.EventsChannel = "price:matched"
	shared := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	p, err = NewFromConfig(ctx, cfg, shared)
	require.NoError(t, err)
	require.IsType(t, &RedisPublisher{}, p)
	assert.Equal(t, "price:matched", p.(*RedisPublisher).channel)

	// 共用連線由快取後端負責關閉
	require.NoError(t, p.Close())
	assert.NoError(t, shared.Close())
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	sub := client.Subscribe(ctx, "price:test-matched")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: addr}), "price:test-matched")
	defer p.Close()
	require.NoError(t, p.Publish(ctx, MatchEvent{ListingID: "sutas", Price: 35}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got MatchEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "sutas", got.ListingID)
	client.Close()
}
