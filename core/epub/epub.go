// Package epub packs a mirrored book directory into an EPUB container and
// inspects existing containers.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/zeebo/blake3"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
)

// MimeType is the content of the mimetype entry.
const MimeType = "application/epub+zip"

const (
	mimetypeName  = "mimetype"
	containerName = "META-INF/container.xml"
)

// osCreate is a variable to allow testing of create failures.
var osCreate = os.Create

// Pack writes every regular file under srcDir into a new archive at dstPath.
//
// An existing file at dstPath is removed first. The mimetype entry is
// written first and uncompressed; when srcDir has no mimetype file the
// standard value is used. All other files follow in lexical path order,
// deflated, named by their slash-separated path relative to srcDir. On
// failure no partial archive is left behind.
func Pack(srcDir, dstPath string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return apperrors.NewArchive("stat", srcDir, err)
	}
	if !info.IsDir() {
		return apperrors.NewArchive("stat", srcDir, fmt.Errorf("not a directory"))
	}

	if err := os.Remove(dstPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewArchive("remove", dstPath, err)
	}

	files, err := collect(srcDir, dstPath)
	if err != nil {
		return apperrors.NewArchive("walk", srcDir, err)
	}

	out, err := osCreate(dstPath)
	if err != nil {
		return apperrors.NewArchive("create", dstPath, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dstPath)
		}
	}()

	zw := zip.NewWriter(out)
	if err := writeMimetype(zw, srcDir); err != nil {
		return apperrors.NewArchive("add", mimetypeName, err)
	}
	for _, rel := range files {
		if err := addFile(zw, srcDir, rel); err != nil {
			return apperrors.NewArchive("add", rel, err)
		}
	}

	if err := zw.Close(); err != nil {
		return apperrors.NewArchive("close", dstPath, err)
	}
	if err := out.Close(); err != nil {
		return apperrors.NewArchive("close", dstPath, err)
	}
	return nil
}

// collect returns the slash-separated relative paths of the regular files
// under srcDir in lexical order, leaving out the root mimetype and dstPath.
func collect(srcDir, dstPath string) ([]string, error) {
	dstAbs, _ := filepath.Abs(dstPath)

	var files []string
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == dstAbs {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == mimetypeName {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func writeMimetype(zw *zip.Writer, srcDir string) error {
	data, err := os.ReadFile(filepath.Join(srcDir, mimetypeName))
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte(MimeType)
	} else if err != nil {
		return err
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   mimetypeName,
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addFile(zw *zip.Writer, srcDir, rel string) error {
	path := filepath.Join(srcDir, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = rel
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// Entry describes one file inside an archive.
type Entry struct {
	Name   string `json:"name"`
	Stored bool   `json:"stored"`
	Size   uint64 `json:"size"`
	BLAKE3 string `json:"blake3"`
}

// Archive is the result of inspecting an EPUB container.
type Archive struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`

	// Mimetype is the content of the mimetype entry, if any.
	Mimetype string `json:"mimetype,omitempty"`
	// Rootfiles lists the package documents named by META-INF/container.xml.
	Rootfiles []string `json:"rootfiles,omitempty"`

	containerErr error
}

// Inspect reads the archive at path and hashes every entry.
func Inspect(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.NewArchive("open", path, err)
	}
	defer zr.Close()

	a := &Archive{Path: path}
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, apperrors.NewArchive("read", f.Name, err)
		}

		sum := blake3.Sum256(data)
		a.Entries = append(a.Entries, Entry{
			Name:   f.Name,
			Stored: f.Method == zip.Store,
			Size:   f.UncompressedSize64,
			BLAKE3: hex.EncodeToString(sum[:]),
		})

		switch f.Name {
		case mimetypeName:
			a.Mimetype = string(data)
		case containerName:
			a.Rootfiles, a.containerErr = rootfiles(data)
		}
	}
	return a, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func rootfiles(container []byte) ([]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(container))
	if err != nil {
		return nil, apperrors.NewParse("xml", containerName, err.Error(), err)
	}
	var paths []string
	for _, n := range xmlquery.Find(doc, "//*[local-name()='rootfile']") {
		if p := strings.TrimSpace(n.SelectAttr("full-path")); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// Entry returns the named entry.
func (a *Archive) Entry(name string) (Entry, bool) {
	for _, e := range a.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Validate checks the container rules a reading system relies on and
// returns every violation found, joined.
func (a *Archive) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, apperrors.NewArchive("validate", a.Path, fmt.Errorf(format, args...)))
	}

	switch {
	case len(a.Entries) == 0:
		fail("archive is empty")
	case a.Entries[0].Name != mimetypeName:
		fail("first entry is %q, want %q", a.Entries[0].Name, mimetypeName)
	case !a.Entries[0].Stored:
		fail("mimetype entry is compressed")
	}
	if _, ok := a.Entry(mimetypeName); ok && a.Mimetype != MimeType {
		fail("mimetype is %q, want %q", a.Mimetype, MimeType)
	}

	if _, ok := a.Entry(containerName); !ok {
		fail("missing %s", containerName)
	} else if a.containerErr != nil {
		errs = append(errs, a.containerErr)
	} else if len(a.Rootfiles) == 0 {
		fail("%s names no rootfile", containerName)
	}
	for _, rf := range a.Rootfiles {
		if _, ok := a.Entry(rf); !ok {
			fail("rootfile %s is not in the archive", rf)
		}
	}

	return errors.Join(errs...)
}
