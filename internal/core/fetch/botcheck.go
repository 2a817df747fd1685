package fetch

import (
	"regexp"
	"strings"
)

// BotRulesVersion 攔截判斷規則版本，規則調整時一併更新
const BotRulesVersion = "2024.05-r2"

var embeddedStatusPattern = regexp.MustCompile(`"statusCode"\s*:\s*"?(\d{3})"?`)

// challengeMarkers 常見反爬蟲挑戰頁的特徵字串（小寫比對）
var challengeMarkers = []string{
	"/cdn-cgi/challenge-platform",
	"cf-browser-verification",
	"<title>just a moment...</title>",
	"px-captcha",
	"captcha-delivery.com",
	"_incapsula_resource",
}

// BotVerdict 攔截判斷結果
type BotVerdict struct {
	Intercepted bool
	Rule        string
	Detail      string
}

// DetectBotInterception 依序套用規則：
//  1. 內嵌結構化資料的 statusCode 不是 200
//  2. 出現已知的挑戰頁特徵
func DetectBotInterception(body string) BotVerdict {
	if m := embeddedStatusPattern.FindStringSubmatch(body); m != nil && m[1] != "200" {
		return BotVerdict{Intercepted: true, Rule: "embedded-status", Detail: m[1]}
	}

	lower := strings.ToLower(body)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return BotVerdict{Intercepted: true, Rule: "challenge-marker", Detail: marker}
		}
	}
	return BotVerdict{}
}

// IsBotInterception 回應內容是否為攔截頁
func IsBotInterception(body string) bool {
	return DetectBotInterception(body).Intercepted
}
