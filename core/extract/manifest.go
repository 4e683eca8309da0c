package extract

import (
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
)

// manifestItems selects <manifest><item> regardless of the OPF namespace
// prefix the publisher used.
var manifestItems = xpath.MustCompile(`//*[local-name()='manifest']/*[local-name()='item']`)

// ManifestExtractor lists every item of a package document. Item hrefs are
// resolved against ContentRoot, not against the package document's URL.
type ManifestExtractor struct {
	ContentRoot string
}

// Extract implements Extractor. The package document is returned unchanged.
func (m *ManifestExtractor) Extract(data []byte, assetURL string) (Result, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return Result{}, apperrors.NewParse("opf", assetURL, err.Error(), err)
	}

	res := Result{Content: data}
	for _, item := range xmlquery.QuerySelectorAll(doc, manifestItems) {
		href := strings.TrimSpace(item.SelectAttr("href"))
		if href == "" {
			continue
		}
		res.add(m.ContentRoot, href)
	}
	return res, nil
}
