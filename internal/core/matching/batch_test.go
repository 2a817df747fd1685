package matching

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"price-discovery/internal/core/market"
	"price-discovery/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	offers      map[string]*BestOffer
}

func (f *stubFinder) FindBestOffer(_ context.Context, productName, _ string) (*BestOffer, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	if productName == "boom" {
		return nil, errors.New("upstream failed")
	}
	return f.offers[productName], nil
}

func TestBatcher_Run(t *testing.T) {
	finder := &stubFinder{offers: map[string]*BestOffer{
		"süt": {Listing: market.ProductListing{ID: "sutas", Price: 35}},
		"un": {
			Listing:   market.ProductListing{ID: "un", Price: 40},
			BestOffer: &ScoredOffer{Offer: OfferCandidate{Price: 38}},
		},
	}}
	b := NewBatcher(finder, 2, 10)

	summary, err := b.Run(context.Background(), []BatchItem{
		{ProductName: "süt", QuantityHint: "1L"},
		{ProductName: "ejder meyvesi"},
		{ProductName: "un", QuantityHint: "1 kg"},
		{ProductName: "boom"},
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 4)

	assert.Equal(t, "süt", summary.Results[0].Item.ProductName, "順序與輸入相同")
	assert.Equal(t, "sutas", summary.Results[0].Offer.Listing.ID)
	assert.Nil(t, summary.Results[1].Offer)
	assert.Contains(t, summary.Results[3].Error, "upstream failed")

	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 1, summary.Failed)
	assert.InDelta(t, 73.0, summary.TotalPrice, 1e-9, "有最佳報價時以報價計")

	assert.LessOrEqual(t, finder.maxInFlight.Load(), int32(2))
	status := b.Status()
	assert.Equal(t, int64(0), status.Pending)
	assert.Equal(t, int64(4), status.Processed)
}

func TestBatcher_Validation(t *testing.T) {
	b := NewBatcher(&stubFinder{}, 2, 2)

	_, err := b.Run(context.Background(), nil)
	assert.True(t, common.IsValidationError(err))

	_, err = b.Run(context.Background(), make([]BatchItem, 3))
	assert.True(t, common.IsValidationError(err))
}

func TestBatcher_CancelledContext(t *testing.T) {
	b := NewBatcher(&stubFinder{}, 1, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := b.Run(ctx, []BatchItem{{ProductName: "süt"}, {ProductName: "un"}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
}

func TestBatcher_WithPipeline(t *testing.T) {
	m := &fakeMarket{products: sutCandidates()}
	b := NewBatcher(newTestPipeline(m, nil), 3, 5)

	summary, err := b.Run(context.Background(), []BatchItem{
		{ProductName: "Süt", QuantityHint: "1L"},
		{ProductName: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Failed, "空白名稱為該項的驗證錯誤")
	assert.InDelta(t, 35.0, summary.TotalPrice, 1e-9)
}
