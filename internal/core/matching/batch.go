package matching

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/pkg/common"

	"go.uber.org/zap"
)

// OfferFinder 單項比價
type OfferFinder interface {
	FindBestOffer(ctx context.Context, productName, quantityHint string) (*BestOffer, error)
}

// BatchItem 批次中的一項食材
type BatchItem struct {
	ProductName  string `json:"product_name"`
	QuantityHint string `json:"quantity_hint,omitempty"`
}

// BatchResult 單項結果；Offer 為 nil 表示沒有可用價格
type BatchResult struct {
	Item  BatchItem  `json:"item"`
	Offer *BestOffer `json:"offer,omitempty"`
	Error string     `json:"error,omitempty"`
}

// BatchSummary 批次結果，Results 順序與輸入相同
type BatchSummary struct {
	Results    []BatchResult `json:"results"`
	Matched    int           `json:"matched"`
	Unmatched  int           `json:"unmatched"`
	Failed     int           `json:"failed"`
	TotalPrice float64       `json:"total_price"`
}

// BatchStatus 執行狀態
type BatchStatus struct {
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Workers   int   `json:"workers"`
	MaxItems  int   `json:"max_items"`
}

// Batcher 以固定數量的 worker 處理多項比價。
// 對外抓取仍經過同一個節流閘門，worker 數只影響輔助呼叫與快取命中的並行度。
type Batcher struct {
	finder   OfferFinder
	workers  int
	maxItems int

	pending   atomic.Int64
	processed atomic.Int64
}

// NewBatcher 創建批次處理器
func NewBatcher(finder OfferFinder, workers, maxItems int) *Batcher {
	if workers <= 0 {
		workers = 1
	}
	if maxItems <= 0 {
		maxItems = 30
	}
	return &Batcher{finder: finder, workers: workers, maxItems: maxItems}
}

// NewBatcherFromConfig 依設定建立
func NewBatcherFromConfig(cfg *config.Config, finder OfferFinder) *Batcher {
	return NewBatcher(finder, cfg.Batch.Workers, cfg.Batch.MaxItems)
}

// Status 取得目前狀態
func (b *Batcher) Status() BatchStatus {
	return BatchStatus{
		Pending:   b.pending.Load(),
		Processed: b.processed.Load(),
		Workers:   b.workers,
		MaxItems:  b.maxItems,
	}
}

// Run 處理所有項目。單項失敗記錄在該項結果中，不中斷其他項目；
// ctx 取消後尚未開始的項目以 ctx 錯誤結束。
func (b *Batcher) Run(ctx context.Context, items []BatchItem) (*BatchSummary, error) {
	if len(items) == 0 {
		return nil, common.NewFieldError("items", "must not be empty")
	}
	if len(items) > b.maxItems {
		return nil, common.NewFieldError("items", fmt.Sprintf("at most %d items allowed", b.maxItems))
	}

	start := time.Now()
	results := make([]BatchResult, len(items))
	jobs := make(chan int)
	b.pending.Add(int64(len(items)))

	var wg sync.WaitGroup
	for w := 0; w < min(b.workers, len(items)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.process(ctx, items[i])
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := &BatchSummary{Results: results}
	for _, r := range results {
		switch {
		case r.Error != "":
			summary.Failed++
		case r.Offer == nil:
			summary.Unmatched++
		default:
			summary.Matched++
			summary.TotalPrice += r.Offer.Price()
		}
	}

	common.LogInfo("Batch completed",
		zap.Int("items", len(items)),
		zap.Int("matched", summary.Matched),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("failed", summary.Failed),
		zap.Float64("total_price", summary.TotalPrice),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

func (b *Batcher) process(ctx context.Context, item BatchItem) BatchResult {
	defer func() {
		b.pending.Add(-1)
		b.processed.Add(1)
	}()

	result := BatchResult{Item: item}
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	offer, err := b.finder.FindBestOffer(ctx, item.ProductName, item.QuantityHint)
	if err != nil {
		common.LogWarn("Batch item failed",
			zap.String("product_name", item.ProductName),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}
	result.Offer = offer
	return result
}
