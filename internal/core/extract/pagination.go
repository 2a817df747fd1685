package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const paginationSelector = `[class*="pagination"], [class*="Pagination"], [data-testid*="pagination"], [aria-label*="pagination"]`

// pageLinkContainers 只在分頁區塊內找頁碼連結，頁尾等處的連結不算
const pageLinkContainers = paginationSelector + `, nav`

var (
	// 1/12、1 / 12、1 of 12、1 sayfadan 12 皆可；"1-24 of 240" 這類筆數範圍不算
	pageOfPattern   = regexp.MustCompile(`(?i)(?:^|[^\d\-–])(\d+)\s*(?:/|of|sayfadan|\bden\b|\bdan\b)\s*(\d+)(?:\D|$)`)
	pageHrefPattern = regexp.MustCompile(`[?&](?:page|p|sayfa)=(\d+)`)
)

// totalPages 依序：分頁區塊文字 → 分頁連結最大頁碼 → 整頁狀態 totalPages；皆無時回傳 0
func totalPages(in *input) int {
	if n := totalPagesFromText(in.doc); n > 0 {
		return n
	}
	if n := totalPagesFromLinks(in.doc); n > 0 {
		return n
	}
	return appStateTotalPages(in.state)
}

func totalPagesFromText(doc *goquery.Document) int {
	if doc == nil {
		return 0
	}
	total := 0
	doc.Find(paginationSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := pageOfPattern.FindStringSubmatch(separatedText(s))
		if m == nil {
			return true
		}
		current, _ := strconv.Atoi(m[1])
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 || current > n {
			return true
		}
		total = n
		return false
	})
	return total
}

// separatedText 以空白串接各文字節點。Selection.Text 不加分隔，"2/7" 後接頁碼 "3" 會變成 "2/73"。
func separatedText(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func totalPagesFromLinks(doc *goquery.Document) int {
	if doc == nil {
		return 0
	}
	max := 0
	doc.Find(pageLinkContainers).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		for _, m := range pageHrefPattern.FindAllStringSubmatch(href, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	})
	return max
}
