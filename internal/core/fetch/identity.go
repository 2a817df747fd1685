package fetch

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Identity 一組用戶端識別字串與對應的能力標頭
type Identity struct {
	UserAgent string
	Headers   map[string]string
}

type browserProfile struct {
	userAgent string
	secChUA   string
	platform  string
	mobile    bool
}

var defaultProfiles = []browserProfile{
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		secChUA:   `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		platform:  `"Windows"`,
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		secChUA:   `"Google Chrome";v="123", "Not:A-Brand";v="8", "Chromium";v="123"`,
		platform:  `"macOS"`,
	},
	{
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		secChUA:   `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`,
		platform:  `"Linux"`,
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	},
	{
		userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		secChUA:   `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		platform:  `"Android"`,
		mobile:    true,
	},
}

// IdentityPool 每次請求隨機挑選一組識別
type IdentityPool struct {
	profiles       []browserProfile
	acceptLanguage string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewIdentityPool 建立識別池。userAgents 為空時使用內建清單。
func NewIdentityPool(userAgents []string, acceptLanguage string) *IdentityPool {
	profiles := defaultProfiles
	if len(userAgents) > 0 {
		profiles = make([]browserProfile, 0, len(userAgents))
		for _, ua := range userAgents {
			if ua = strings.TrimSpace(ua); ua != "" {
				profiles = append(profiles, browserProfile{userAgent: ua})
			}
		}
		if len(profiles) == 0 {
			profiles = defaultProfiles
		}
	}
	if strings.TrimSpace(acceptLanguage) == "" {
		acceptLanguage = "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7"
	}
	return &IdentityPool{
		profiles:       profiles,
		acceptLanguage: acceptLanguage,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next 隨機取得一組識別
func (p *IdentityPool) Next() Identity {
	p.mu.Lock()
	profile := p.profiles[p.rng.Intn(len(p.profiles))]
	p.mu.Unlock()

	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           p.acceptLanguage,
		"Accept-Encoding":           "gzip, deflate, br",
		"Cache-Control":             "no-cache",
		"Pragma":                    "no-cache",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
	// 只有 Chromium 系瀏覽器會送 client hints
	if profile.secChUA != "" {
		headers["Sec-Ch-Ua"] = profile.secChUA
		headers["Sec-Ch-Ua-Platform"] = profile.platform
		if profile.mobile {
			headers["Sec-Ch-Ua-Mobile"] = "?1"
		} else {
			headers["Sec-Ch-Ua-Mobile"] = "?0"
		}
	}

	return Identity{UserAgent: profile.userAgent, Headers: headers}
}
