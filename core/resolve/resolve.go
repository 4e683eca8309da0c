// Package resolve turns references found in book documents into absolute,
// fetchable URLs and maps those URLs onto the local mirror.
//
// Resolve is the only place a reference becomes a request URL; everything
// that is fetched or deduplicated has passed through it exactly once, so
// percent-encoding is applied once and never doubled.
package resolve

import (
	"net/url"
	"path/filepath"
	"strings"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/internal/config"
	"github.com/FocuswithJustin/epubmirror/internal/validation"
)

// Fixed locations, relative to the book root, that every run starts from.
const (
	MimetypePath  = "mimetype"
	ContainerPath = "META-INF/container.xml"
	PackagePath   = "EPUB/package.opf"

	// contentDir is the directory manifest hrefs are relative to.
	contentDir = "EPUB/"
)

// Resolve resolves ref against base and returns the canonical absolute URL.
// Fragments are dropped; characters that are illegal in a URL (spaces, non
// ASCII) are percent-encoded, while existing escapes are kept as they are.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", apperrors.NewParse("url", base, "invalid base URL", err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", apperrors.NewParse("url", ref, "invalid reference", err)
	}

	u := b.ResolveReference(r)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// BookRoot returns the URL under which every asset of book lives, without a
// trailing slash.
func BookRoot(cfg config.Mirror, book config.Book) string {
	return strings.TrimRight(cfg.SourceBaseURL, "/") + "/" + book.ID
}

// ContentRoot returns the directory URL manifest item hrefs resolve against.
func ContentRoot(cfg config.Mirror, book config.Book) string {
	return BookRoot(cfg, book) + "/" + contentDir
}

// PackageURL returns the URL of the book's package manifest.
func PackageURL(cfg config.Mirror, book config.Book) string {
	return BookRoot(cfg, book) + "/" + PackagePath
}

// Seeds returns the metadata URLs a crawl starts from, in fetch order.
func Seeds(cfg config.Mirror, book config.Book) []string {
	root := BookRoot(cfg, book)
	return []string{
		root + "/" + MimetypePath,
		root + "/" + ContainerPath,
		root + "/" + PackagePath,
	}
}

// BookDir returns the local directory a book is mirrored into.
func BookDir(cfg config.Mirror, book config.Book) string {
	return filepath.Join(cfg.DownloadRoot, book.Name)
}

// ArchivePath returns the path of the book's EPUB archive.
func ArchivePath(cfg config.Mirror, book config.Book) string {
	return filepath.Join(cfg.DownloadRoot, book.Name+".epub")
}

// ToLocalPath maps an asset URL to its file in the book's mirror. The second
// result is false when the URL must be skipped: another host, outside the
// book root, a directory URL, or a path that escapes it.
func ToLocalPath(cfg config.Mirror, book config.Book, assetURL string) (string, bool) {
	_, path, err := Guard(cfg, book, assetURL)
	if err != nil {
		return "", false
	}
	return path, true
}

// Guard is ToLocalPath with the reason for a skip. It returns the path
// relative to the book root (slash separated) and the full local path.
func Guard(cfg config.Mirror, book config.Book, assetURL string) (rel, local string, err error) {
	prefix := BookRoot(cfg, book) + "/"
	if !strings.HasPrefix(assetURL, prefix) {
		return "", "", apperrors.NewPathGuard(assetURL, "not under "+prefix)
	}

	rest := assetURL[len(prefix):]
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}

	rel, err = url.PathUnescape(rest)
	if err != nil {
		return "", "", apperrors.NewPathGuard(assetURL, "malformed escape")
	}
	if strings.HasSuffix(rel, "/") {
		return "", "", apperrors.NewPathGuard(assetURL, "names a directory")
	}

	dir := BookDir(cfg, book)
	clean, err := validation.SanitizePath(dir, rel)
	if err != nil {
		return "", "", apperrors.NewPathGuard(assetURL, err.Error())
	}
	return filepath.ToSlash(clean), filepath.Join(dir, clean), nil
}
