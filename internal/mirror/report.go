package mirror

import (
	"encoding/json"
	"time"

	"github.com/FocuswithJustin/epubmirror/core/extract"
	"github.com/FocuswithJustin/epubmirror/internal/fileutil"
)

// Asset records what happened to one fetched URL.
type Asset struct {
	URL  string       `json:"url"`
	Kind extract.Kind `json:"kind"`
	// Path is relative to the book directory, slash separated. Empty when
	// nothing was written.
	Path string `json:"path,omitempty"`
	Size int64  `json:"size"`
	// BLAKE3 is the hex digest of the bytes written to Path.
	BLAKE3     string `json:"blake3,omitempty"`
	Discovered int    `json:"discovered"`

	// Stage is "fetch", "extract" or "write" when Error is set.
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`
}

// Persisted reports whether the asset was written to disk.
func (a Asset) Persisted() bool {
	return a.Path != "" && a.Stage != "fetch" && a.Stage != "write"
}

// Skip is a reference that was never fetched.
type Skip struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Report summarizes one book's run.
type Report struct {
	RunID    string    `json:"run_id"`
	BookID   string    `json:"book_id"`
	BookName string    `json:"book_name"`
	Dir      string    `json:"dir"`
	Archive  string    `json:"archive,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Assets   []Asset   `json:"assets"`
	Skipped  []Skip    `json:"skipped,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Persisted counts the assets written to disk.
func (r *Report) Persisted() int {
	n := 0
	for _, a := range r.Assets {
		if a.Persisted() {
			n++
		}
	}
	return n
}

// Failed counts the assets that could not be fetched or written.
func (r *Report) Failed() int {
	n := 0
	for _, a := range r.Assets {
		if a.Stage == "fetch" || a.Stage == "write" {
			n++
		}
	}
	return n
}

// Asset returns the record for url.
func (r *Report) Asset(url string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.URL == url {
			return a, true
		}
	}
	return Asset{}, false
}

// BatchReport collects the reports of a batch run in configuration order.
type BatchReport struct {
	Books []*Report `json:"books"`
}

// Failed counts the books that ended with an error.
func (b *BatchReport) Failed() int {
	n := 0
	for _, r := range b.Books {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// WriteReport writes v as indented JSON to path.
func WriteReport(fs fileutil.FS, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fs.WriteFile(path, append(data, '\n'))
}
