package hackernews

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText converts the HTML fragment HN stores in item text into plain text,
// keeping paragraph breaks.
func PlainText(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml("\n")
	})
	doc.Find("br").ReplaceWithHtml("\n")

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}
