package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Gate 全域請求閘門：同一時間只放行一個外送請求，
// 並確保任意兩次請求之間至少間隔 [minDelay, maxDelay] 內的隨機時間。
type Gate struct {
	lease    chan struct{}
	minDelay time.Duration
	maxDelay time.Duration

	// last 只在持有 lease 時讀寫
	last time.Time

	randMu sync.Mutex
	rng    *rand.Rand
}

// NewGate 創建請求閘門
func NewGate(minDelay, maxDelay time.Duration) *Gate {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Gate{
		lease:    make(chan struct{}, 1),
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Acquire 取得 lease 並等待冷卻時間。成功時回傳 release，
// 呼叫端必須以 defer 釋放；release 可重複呼叫。
// 在等待期間取消時，lease 會被立即歸還。
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if !g.last.IsZero() {
		wait := g.nextDelay() - time.Since(g.last)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				<-g.lease
				return nil, ctx.Err()
			}
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.last = time.Now()
			<-g.lease
		})
	}
	return release, nil
}

// nextDelay 在 [minDelay, maxDelay] 之間均勻取樣
func (g *Gate) nextDelay() time.Duration {
	span := g.maxDelay - g.minDelay
	if span <= 0 {
		return g.minDelay
	}
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return g.minDelay + time.Duration(g.rng.Int63n(int64(span)+1))
}
