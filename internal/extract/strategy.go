// Package extract turns rendered map markup into model records. Each field
// is read through an ordered list of strategies; the first one that yields
// a value wins.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Strategy reads one field from a node.
type Strategy[T any] struct {
	Name    string
	Extract func(*goquery.Selection) (T, bool)
}

// First applies strategies in order and returns the first hit.
func First[T any](s *goquery.Selection, strategies []Strategy[T]) (T, bool) {
	for _, st := range strategies {
		if v, ok := st.Extract(s); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// textOf returns the trimmed text of the first non-empty match of any selector.
func textOf(selectors ...string) func(*goquery.Selection) (string, bool) {
	return func(s *goquery.Selection) (string, bool) {
		for _, sel := range selectors {
			found := false
			var text string
			s.Find(sel).EachWithBreak(func(_ int, n *goquery.Selection) bool {
				text = strings.TrimSpace(n.Text())
				found = text != ""
				return !found
			})
			if found {
				return text, true
			}
		}
		return "", false
	}
}

// attrOf returns the first non-empty value of attr on a match of selector.
func attrOf(s *goquery.Selection, selector, attr string) (string, bool) {
	var val string
	s.Find(selector).EachWithBreak(func(_ int, n *goquery.Selection) bool {
		v, ok := n.Attr(attr)
		val = strings.TrimSpace(v)
		return !(ok && val != "")
	})
	return val, val != ""
}

var (
	decimalRe   = regexp.MustCompile(`(\d[,.]\d)`)
	starsTextRe = regexp.MustCompile(`(\d[,.]\d)\s*stars?`)
	parenCount  = regexp.MustCompile(`\(([\d,.\s\x{202F}\x{00A0}]+)\)`)
	countRe     = regexp.MustCompile(`([\d][\d,.\s\x{202F}\x{00A0}]*)`)
	digitRe     = regexp.MustCompile(`(\d)`)
)

// parseDecimal reads "4,3" or "4.3" as 4.3.
func parseDecimal(s string) (float64, bool) {
	m := decimalRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseCount reads a localized review count. "1.234" with no comma uses the
// dot as a thousands separator, as do commas and narrow spaces.
func ParseCount(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if strings.Contains(s, ".") && !strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
	} else {
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, ".", "")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NormalizeText is the dedup key for review bodies: Unicode-normalized,
// case-folded, with whitespace collapsed.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
