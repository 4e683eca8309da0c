// Package extract mines fetched book assets for further references.
//
// Each content type has one Extractor. Extractors are pure: they receive the
// asset bytes and the asset URL and return the (possibly rewritten) bytes and
// the absolute URLs they found. They never touch the crawl frontier.
package extract

import (
	"net/url"
	"path"
	"strings"

	"github.com/FocuswithJustin/epubmirror/core/resolve"
)

// Kind selects the extractor for an asset.
type Kind int

const (
	// Passthrough assets are persisted verbatim.
	Passthrough Kind = iota
	// Manifest is the package document (.opf).
	Manifest
	// Stylesheet is CSS.
	Stylesheet
	// Markup is XHTML or HTML.
	Markup
)

var kindNames = [...]string{
	Passthrough: "passthrough",
	Manifest:    "manifest",
	Stylesheet:  "stylesheet",
	Markup:      "markup",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf chooses the extractor by the (case-insensitive) extension of the
// URL path. Query and fragment are ignored.
func KindOf(assetURL string) Kind {
	switch assetExt(assetURL) {
	case ".opf":
		return Manifest
	case ".css":
		return Stylesheet
	case ".xhtml", ".html", ".htm":
		return Markup
	}
	return Passthrough
}

func assetExt(assetURL string) string {
	p := assetURL
	if u, err := url.Parse(assetURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// Result is what an extractor produces for one asset.
type Result struct {
	// Content is written to disk in place of the fetched bytes.
	Content []byte
	// Discovered holds absolute URLs in document order, without duplicates.
	Discovered []string
	// Invalid holds references that could not be resolved.
	Invalid []string
}

// add resolves ref against base and records it.
func (r *Result) add(base, ref string) {
	abs, err := resolve.Resolve(base, ref)
	if err != nil {
		r.Invalid = append(r.Invalid, ref)
		return
	}
	for _, d := range r.Discovered {
		if d == abs {
			return
		}
	}
	r.Discovered = append(r.Discovered, abs)
}

// Extractor is the shared contract of every content type.
type Extractor interface {
	Extract(data []byte, assetURL string) (Result, error)
}

// PassthroughExtractor returns the input unchanged and discovers nothing.
type PassthroughExtractor struct{}

// Extract implements Extractor.
func (PassthroughExtractor) Extract(data []byte, _ string) (Result, error) {
	return Result{Content: data}, nil
}

// Registry maps every Kind to its extractor for one book.
type Registry struct {
	extractors map[Kind]Extractor
}

// NewRegistry builds the extractors for a book whose manifest items resolve
// against contentRoot and whose markup drops links matching styleBlacklist.
func NewRegistry(contentRoot string, styleBlacklist []string) *Registry {
	return &Registry{
		extractors: map[Kind]Extractor{
			Passthrough: PassthroughExtractor{},
			Manifest:    &ManifestExtractor{ContentRoot: contentRoot},
			Stylesheet:  &StylesheetExtractor{},
			Markup:      &MarkupExtractor{StyleBlacklist: styleBlacklist},
		},
	}
}

// Register replaces the extractor used for kind.
func (r *Registry) Register(kind Kind, e Extractor) {
	r.extractors[kind] = e
}

// Extract dispatches to the extractor for assetURL. On error the result
// still carries the original bytes so the asset can be persisted as-is.
func (r *Registry) Extract(data []byte, assetURL string) (Kind, Result, error) {
	kind := KindOf(assetURL)
	e, ok := r.extractors[kind]
	if !ok {
		e = PassthroughExtractor{}
	}
	res, err := e.Extract(data, assetURL)
	if err != nil {
		return kind, Result{Content: data, Invalid: res.Invalid}, err
	}
	if res.Content == nil {
		res.Content = data
	}
	return kind, res, nil
}
