package probe

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxTitleBodyBytes = 1 << 20

// pageTitle returns the document title, preferring og:title. Non-HTML bodies yield "".
func pageTitle(body string) string {
	if len(body) > maxTitleBodyBytes {
		body = body[:maxTitleBodyBytes]
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	if node := doc.Find(`meta[property="og:title"]`).First(); node.Length() > 0 {
		if val, ok := node.Attr("content"); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func wantsHTML(accept string) bool {
	return strings.Contains(strings.ToLower(accept), "html")
}
