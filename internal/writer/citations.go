// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package writer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/research-assistant/pkg/types"
)

const maxCitedAuthors = 3

// FormatCitations renders ranked papers as numbered references in rank
// order: [n] Authors (Year). "Title". Source. URL
func FormatCitations(ranked []types.RankedPaper) []string {
	out := make([]string, len(ranked))
	for i, rp := range ranked {
		out[i] = FormatCitation(i+1, rp.Paper)
	}
	return out
}

// FormatCitation renders one reference.
func FormatCitation(n int, p types.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s (%s). \"%s\". %s.", n, citeAuthors(p.Authors), citeYear(p), cleanTitle(p.Title), p.Source.DisplayName())
	if u := citeURL(p); u != "" {
		b.WriteString(" ")
		b.WriteString(u)
	}
	return b.String()
}

func citeAuthors(authors []string) string {
	var names []string
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			names = append(names, a)
		}
	}
	switch {
	case len(names) == 0:
		return "Unknown"
	case len(names) > maxCitedAuthors:
		return strings.Join(names[:maxCitedAuthors], ", ") + " et al."
	}
	return strings.Join(names, ", ")
}

func citeYear(p types.Paper) string {
	if y := p.Year(); y > 0 {
		return strconv.Itoa(y)
	}
	return "n.d."
}

func citeURL(p types.Paper) string {
	if p.URL != "" {
		return p.URL
	}
	return p.PDFURL
}

func cleanTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	return strings.TrimRight(title, ".")
}

// referencesHeading matches a Markdown heading that opens a references section.
var referencesHeading = regexp.MustCompile(`(?im)^#{1,6}\s*(references|bibliography)\b`)

// ensureReferences appends the citation list when body has no references
// section of its own.
func ensureReferences(body string, citations []string) string {
	body = strings.TrimSpace(body)
	if len(citations) == 0 || referencesHeading.MatchString(body) {
		return body + "\n"
	}
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n## References\n\n")
	for _, c := range citations {
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// citationPattern matches inline numeric citations: [3] or [1, 4].
var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*[,;]\s*\d+)*)\]`)

// unknownCitations returns the inline citation numbers in body that fall
// outside 1..n, sorted and without duplicates.
func unknownCitations(body string, n int) []int {
	seen := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(body, -1) {
		for _, part := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
			k, err := strconv.Atoi(part)
			if err != nil {
				continue
			}
			if k < 1 || k > n {
				seen[k] = true
			}
		}
	}
	var out []int
	for k := range seen {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
