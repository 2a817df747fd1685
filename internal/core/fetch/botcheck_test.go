package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBotInterception(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
		rule string
	}{
		{"normal page", `<html><script id="__NEXT_DATA__">{"props":{"pageProps":{"statusCode":200}}}</script></html>`, false, ""},
		{"no status at all", `<html><body>Süt</body></html>`, false, ""},
		{"embedded 403", `{"props":{"pageProps":{"statusCode":403}}}`, true, "embedded-status"},
		{"embedded quoted 503", `{"statusCode": "503"}`, true, "embedded-status"},
		{"cloudflare challenge", `<html><head><title>Just a moment...</title></head></html>`, true, "challenge-marker"},
		{"perimeterx", `<div id="px-captcha"></div>`, true, "challenge-marker"},
		{"empty", ``, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DetectBotInterception(tt.body)
			assert.Equal(t, tt.want, v.Intercepted)
			assert.Equal(t, tt.rule, v.Rule)
			assert.Equal(t, tt.want, IsBotInterception(tt.body))
		})
	}
}

func TestIdentityPool_Next(t *testing.T) {
	pool := NewIdentityPool(nil, "")
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := pool.Next()
		assert.NotEmpty(t, id.UserAgent)
		assert.Equal(t, "gzip, deflate, br", id.Headers["Accept-Encoding"])
		seen[id.UserAgent] = true
	}
	assert.Greater(t, len(seen), 1)

	custom := NewIdentityPool([]string{"UA-1", " "}, "en-US")
	id := custom.Next()
	assert.Equal(t, "UA-1", id.UserAgent)
	assert.Equal(t, "en-US", id.Headers["Accept-Language"])
	assert.NotContains(t, id.Headers, "Sec-Ch-Ua")
}
