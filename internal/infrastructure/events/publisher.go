package events

import (
	"context"
	"fmt"
	"time"

	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// emitTimeout 單次背景發送的上限
const emitTimeout = 5 * time.Second

// MatchEvent 成功比對後發出的通知
type MatchEvent struct {
	ProductName string    `json:"product_name"`
	ListingID   string    `json:"listing_id"`
	Price       float64   `json:"price"`
	Merchant    string    `json:"merchant,omitempty"`
	Source      string    `json:"source,omitempty"`
	MatchedAt   time.Time `json:"matched_at"`
}

// Publisher 事件發送介面
type Publisher interface {
	Publish(ctx context.Context, evt MatchEvent) error
	Close() error
}

// RedisPublisher 以 PUBLISH 送到指定頻道
type RedisPublisher struct {
	client  *redis.Client
	channel string
	// shared 為 true 時連線屬於快取後端，Close 不關閉它
	shared bool
}

// NewRedisPublisher 接管 client，Close 時一併關閉
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// NewSharedRedisPublisher 與其他元件共用 client，Close 不關閉連線
func NewSharedRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, shared: true}
}

// Publish 序列化後送出；沒有訂閱者不視為錯誤
func (p *RedisPublisher) Publish(ctx context.Context, evt MatchEvent) error {
	payload, err := common.ToJSON(evt)
	if err != nil {
		return fmt.Errorf("failed to encode match event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish match event: %w", err)
	}
	return nil
}

// Close 關閉自有連線
func (p *RedisPublisher) Close() error {
	if p.shared {
		return nil
	}
	return p.client.Close()
}

// LogPublisher 只寫日誌，未啟用 Redis 事件時使用
type LogPublisher struct{}

// Publish 記錄事件
func (LogPublisher) Publish(_ context.Context, evt MatchEvent) error {
	common.LogInfo("Match event",
		zap.String("product_name", evt.ProductName),
		zap.String("listing_id", evt.ListingID),
		zap.Float64("price", evt.Price),
		zap.String("merchant", evt.Merchant),
		zap.Time("matched_at", evt.MatchedAt),
	)
	return nil
}

// Close 無資源需釋放
func (LogPublisher) Close() error { return nil }

// NewFromConfig 依設定選擇發送方式。shared 非 nil 時（快取後端為 Redis）沿用該連線。
func NewFromConfig(ctx context.Context, cfg *config.Config, shared *redis.Client) (Publisher, error) {
	if !cfg.Redis.EventsEnabled {
		return LogPublisher{}, nil
	}
	if shared != nil {
		common.LogInfo("比對事件與快取共用 Redis 連線",
			zap.String("channel", cfg.Redis.EventsChannel),
		)
		return NewSharedRedisPublisher(shared, cfg.Redis.EventsChannel), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis for events: %w", err)
	}

	common.LogInfo("比對事件將發送至 Redis",
		zap.String("addr", cfg.Redis.Addr),
		zap.String("channel", cfg.Redis.EventsChannel),
	)
	return NewRedisPublisher(client, cfg.Redis.EventsChannel), nil
}

// Emit 在背景發送事件，不等待結果。失敗只記錄日誌。
// 回傳的 channel 在發送結束時關閉，呼叫端通常忽略它。
func Emit(p Publisher, evt MatchEvent) <-chan struct{} {
	done := make(chan struct{})
	if p == nil {
		close(done)
		return done
	}
	if evt.MatchedAt.IsZero() {
		evt.MatchedAt = time.Now().UTC()
	}

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()

		if err := p.Publish(ctx, evt); err != nil {
			common.LogWarn("Failed to publish match event",
				zap.Error(err),
				zap.String("listing_id", evt.ListingID),
			)
		}
	}()
	return done
}
