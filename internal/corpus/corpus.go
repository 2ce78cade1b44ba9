// Package corpus reads the documentation files the index is built from.
package corpus

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shopilots.com/chatbot/internal/domain"
)

var supported = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
}

// Load reads every supported file under dir as one Document. Documents are returned
// sorted by SourceID, which is the slash-separated path relative to dir.
func Load(dir string) ([]domain.Document, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS is Load over an arbitrary file system.
func LoadFS(fsys fs.FS) ([]domain.Document, error) {
	var docs []domain.Document
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if !supported[ext] {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		doc, err := parse(p, ext, data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceID < docs[j].SourceID })
	return docs, nil
}

func parse(p, ext string, data []byte) (domain.Document, error) {
	sourceID := filepath.ToSlash(p)
	if ext == ".html" || ext == ".htm" {
		text, title, err := htmlText(data)
		if err != nil {
			return domain.Document{}, err
		}
		if title == "" {
			title = guessTitle(text, sourceID)
		}
		return domain.Document{SourceID: sourceID, Title: title, Text: text}, nil
	}

	text := cleanWhitespace(string(data))
	return domain.Document{SourceID: sourceID, Title: guessTitle(text, sourceID), Text: text}, nil
}

// htmlText keeps headings, paragraphs and list items, preferring <main> or <article>.
func htmlText(data []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	var parts []string
	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	sel.Find("h1,h2,h3,h4,p,li").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return cleanWhitespace(strings.Join(parts, "\n")), title, nil
}

var trailingSpaceRX = regexp.MustCompile(`[ \t]+\n`)

func cleanWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return trailingSpaceRX.ReplaceAllString(s, "\n")
}

// guessTitle uses a leading "# " heading or the first line, else the file name.
func guessTitle(text, sourceID string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	line = strings.TrimSpace(strings.TrimLeft(line, "#"))
	if line == "" {
		return strings.TrimSuffix(path.Base(sourceID), path.Ext(sourceID))
	}
	if r := []rune(line); len(r) > 120 {
		line = string(r[:120])
	}
	return line
}
