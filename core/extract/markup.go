package extract

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
)

// MarkupExtractor strips scripts and blacklisted stylesheet links from a
// document and reports the remaining <link> targets.
//
// XHTML is rewritten token by token: everything that is not removed is
// copied byte for byte, so the output stays well-formed XML. HTML goes
// through a DOM and is re-rendered.
type MarkupExtractor struct {
	StyleBlacklist []string
}

// Extract implements Extractor.
func (m *MarkupExtractor) Extract(data []byte, assetURL string) (Result, error) {
	if assetExt(assetURL) == ".xhtml" {
		return m.extractXHTML(data, assetURL)
	}
	return m.extractHTML(data, assetURL)
}

// blacklisted reports whether href contains any blacklist entry.
func (m *MarkupExtractor) blacklisted(href string) bool {
	for _, s := range m.StyleBlacklist {
		if s != "" && strings.Contains(href, s) {
			return true
		}
	}
	return false
}

func (m *MarkupExtractor) extractXHTML(data []byte, assetURL string) (Result, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	z.AllowCDATA(true)

	var out bytes.Buffer
	out.Grow(len(data))
	res := Result{}

	inScript := false
	droppedLink := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return Result{}, apperrors.NewParse("xhtml", assetURL, err.Error(), err)
			}
			break
		}
		// TagName and TagAttr lower-case the token buffer in place; XHTML is
		// case sensitive, so keep an untouched copy.
		raw := bytes.Clone(z.Raw())

		if inScript {
			if tt == html.EndTagToken && tagName(z) == "script" {
				inScript = false
			}
			continue
		}

		switch tt {
		case html.SelfClosingTagToken, html.StartTagToken:
			name, href := tagNameAndHref(z)
			// XML has no raw text elements: <noscript>, <style> and <title>
			// children are markup. Only a script body stays opaque.
			if tt == html.SelfClosingTagToken || name != "script" {
				z.NextIsNotRawText()
			}
			switch name {
			case "script":
				inScript = tt == html.StartTagToken
				continue
			case "link":
				if m.blacklisted(href) {
					droppedLink = tt == html.StartTagToken
					continue
				}
				if href != "" {
					res.add(assetURL, href)
				}
			}
		case html.EndTagToken:
			if droppedLink && tagName(z) == "link" {
				droppedLink = false
				continue
			}
		}
		droppedLink = droppedLink && tt == html.TextToken
		out.Write(raw)
	}

	res.Content = out.Bytes()
	return res, nil
}

func (m *MarkupExtractor) extractHTML(data []byte, assetURL string) (Result, error) {
	// With scripting enabled the parser keeps <noscript> content as text,
	// hiding the scripts and links inside it.
	root, err := html.ParseWithOptions(bytes.NewReader(data), html.ParseOptionEnableScripting(false))
	if err != nil {
		return Result{}, apperrors.NewParse("html", assetURL, err.Error(), err)
	}
	doc := goquery.NewDocumentFromNode(root)

	doc.Find("script").Remove()

	res := Result{}
	doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m.blacklisted(href) {
			s.Remove()
			return
		}
		if strings.TrimSpace(href) != "" {
			res.add(assetURL, href)
		}
	})

	rendered, err := doc.Html()
	if err != nil {
		return Result{}, apperrors.NewParse("html", assetURL, err.Error(), err)
	}
	res.Content = []byte(rendered)
	return res, nil
}

// localName strips a namespace prefix such as "svg:".
func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func tagName(z *html.Tokenizer) string {
	name, _ := z.TagName()
	return localName(string(name))
}

func tagNameAndHref(z *html.Tokenizer) (name, href string) {
	n, hasAttr := z.TagName()
	name = localName(string(n))
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) == "href" {
			href = string(val)
		}
	}
	return name, strings.TrimSpace(href)
}
