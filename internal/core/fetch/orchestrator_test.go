package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<html><head><script type="application/ld+json">{"@type":"Product","name":"Süt 1 L"}</script></head><body>ok</body></html>`

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	html  string
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.html, f.err
}

func (f *fakeRenderer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func newTestOrchestrator(renderer Renderer, sleeper *sleepRecorder, timeout time.Duration) *Orchestrator {
	o := NewOrchestrator(resty.New(), NewGate(0, 0), NewIdentityPool(nil, ""), renderer, Options{
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
		RateLimitWait:  5 * time.Second,
		RequestTimeout: timeout,
		MaxBodyBytes:   1 << 20,
	})
	if sleeper != nil {
		o.sleep = sleeper.Sleep
	}
	return o
}

func TestFetch_DirectSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "tr-TR")
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{}
	res := newTestOrchestrator(renderer, &sleepRecorder{}, time.Second).Fetch(context.Background(), srv.URL)

	assert.Equal(t, SourceDirect, res.Source)
	assert.Equal(t, productPage, res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Zero(t, renderer.Calls())
}

func TestFetch_DecodesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(productPage))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	res := newTestOrchestrator(nil, &sleepRecorder{}, time.Second).Fetch(context.Background(), srv.URL)
	assert.Equal(t, productPage, res.Body)
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	renderer := &fakeRenderer{html: productPage}
	sleeper := &sleepRecorder{}
	res := newTestOrchestrator(renderer, sleeper, time.Second).Fetch(context.Background(), srv.URL)

	assert.True(t, res.Empty())
	assert.Equal(t, SourceNone, res.Source)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Zero(t, renderer.Calls())
	assert.Empty(t, sleeper.delays)
}

func TestFetch_RateLimitUsesFixedWait(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	res := newTestOrchestrator(nil, sleeper, time.Second).Fetch(context.Background(), srv.URL)

	assert.Equal(t, SourceDirect, res.Source)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeper.delays)
}

func TestFetch_ExponentialBackoffThenRender(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	renderer := &fakeRenderer{html: productPage}
	sleeper := &sleepRecorder{}
	res := newTestOrchestrator(renderer, sleeper, time.Second).Fetch(context.Background(), srv.URL)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays)
	assert.Equal(t, SourceRendered, res.Source)
	assert.Equal(t, productPage, res.Body)
	assert.Equal(t, 1, renderer.Calls())
}

func TestFetch_TimeoutsFallBackToRenderWithSameContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productPage))
	}))
	defer direct.Close()

	renderer := &fakeRenderer{html: productPage}
	o := newTestOrchestrator(renderer, &sleepRecorder{}, 50*time.Millisecond)

	rendered := o.Fetch(context.Background(), srv.URL)
	straight := o.Fetch(context.Background(), direct.URL)

	assert.Equal(t, SourceRendered, rendered.Source)
	assert.Equal(t, SourceDirect, straight.Source)
	assert.Equal(t, straight.Body, rendered.Body)
}

func TestFetch_BotInterceptionSkipsToRender(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`<script id="__NEXT_DATA__">{"props":{"pageProps":{"statusCode":403}}}</script>`))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{html: productPage}
	res := newTestOrchestrator(renderer, &sleepRecorder{}, time.Second).Fetch(context.Background(), srv.URL)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, SourceRendered, res.Source)
}

func TestFetch_AllFailuresReturnEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	renderer := &fakeRenderer{err: errors.New("chrome not installed")}
	res := newTestOrchestrator(renderer, &sleepRecorder{}, time.Second).Fetch(context.Background(), srv.URL)

	assert.True(t, res.Empty())
	assert.Equal(t, SourceNone, res.Source)
	assert.Equal(t, 1, renderer.Calls())
}

func TestFetch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	renderer := &fakeRenderer{html: productPage}
	res := newTestOrchestrator(renderer, &sleepRecorder{}, time.Second).Fetch(ctx, "http://127.0.0.1:0")

	assert.True(t, res.Empty())
	assert.Zero(t, renderer.Calls())
}
