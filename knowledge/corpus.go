// Package knowledge builds and serves the retrieval index behind free-form
// Q&A: source documents are split into overlapping chunks, embedded, and
// searched by cosine similarity. The index persists a snapshot to disk and
// is rebuilt from the corpus only when no usable snapshot exists.
package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// SourceDocument is one raw document from the knowledge corpus.
type SourceDocument struct {
	Name string
	Text string
}

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// LoadCorpus reads every supported file under dir. Plain text and
// markdown pass through cleaning only; HTML is reduced to headings,
// paragraphs and list items first. Unsupported extensions are skipped.
func LoadCorpus(dir string) ([]SourceDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	docs := make([]SourceDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus file %s: %w", name, err)
		}

		var text string
		switch ext {
		case ".txt", ".md":
			text = CleanText(string(raw))
		case ".html", ".htm":
			plain, err := HTMLToText(string(raw))
			if err != nil {
				return nil, fmt.Errorf("failed to parse HTML file %s: %w", name, err)
			}
			text = CleanText(plain)
		default:
			continue
		}

		if text == "" {
			continue
		}
		docs = append(docs, SourceDocument{Name: name, Text: text})
	}
	return docs, nil
}

// CleanText normalises whitespace and strips control characters and
// common OCR artifacts.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	// remove control chars except newline
	b := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	// fix common ligatures / OCR artifacts
	fixes := map[string]string{
		"ﬁ": "fi", "ﬂ": "fl",
		"·": ".", "•": "-",
	}
	for k, v := range fixes {
		b = strings.ReplaceAll(b, k, v)
	}

	b = reSpaces.ReplaceAllString(b, " ")
	b = reNewlines.ReplaceAllString(b, "\n\n")

	return strings.TrimSpace(b)
}

// HTMLToText extracts readable content from HTML, keeping headings and
// paragraph structure.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,h4,p,li").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+text)
		case "h2":
			out = append(out, "## "+text)
		case "h3":
			out = append(out, "### "+text)
		case "h4":
			out = append(out, "#### "+text)
		case "li":
			out = append(out, "- "+text)
		default:
			out = append(out, text)
		}
	})
	return strings.Join(out, "\n\n"), nil
}
