// Package config loads the mirror configuration: the source location, the
// download root, the per-run style blacklist and the list of books.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/internal/validation"
)

// Defaults applied by Load when a field is absent.
const (
	DefaultDownloadRoot = "downloads"
	DefaultWorkers      = 1
	DefaultTimeout      = 60 * time.Second
	DefaultUserAgent    = "epubmirror/0.1"
)

// Book identifies one remote book.
type Book struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Blacklist holds substrings used to drop elements from fetched markup.
type Blacklist struct {
	Style []string `json:"style"`
}

// Mirror is the per-run configuration shared by every book.
type Mirror struct {
	SourceBaseURL string    `json:"source_base_url"`
	DownloadRoot  string    `json:"download_root"`
	Blacklist     Blacklist `json:"blacklist"`

	Workers   int      `json:"workers,omitempty"`
	RateLimit float64  `json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Timeout   Duration `json:"timeout,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

// StyleBlacklist returns the substrings that disqualify a <link href>.
func (m Mirror) StyleBlacklist() []string {
	return m.Blacklist.Style
}

// File is the on-disk configuration document.
type File struct {
	Mirror
	Books []Book `json:"books"`
}

// Duration is a time.Duration that reads "90s"-style strings or seconds from JSON.
type Duration struct {
	time.Duration
	set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration, d.set = v, true
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	d.Duration, d.set = time.Duration(secs*float64(time.Second)), true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Overrides carries values supplied on the command line or via environment.
// Empty strings, zero workers and nil pointers leave the file's settings
// untouched. RateLimit and Timeout are pointers so an explicit zero can
// disable a limit the file sets.
type Overrides struct {
	SourceBaseURL string
	DownloadRoot  string
	Workers       int
	RateLimit     *float64
	Timeout       *time.Duration
}

// LoadEnv loads .env style files into the process environment. Missing files
// are ignored and existing variables are never overridden.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads and decodes a configuration file and applies defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewIO("read", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, apperrors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes a configuration document and applies defaults.
func Parse(data []byte) (*File, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg File
	if err := dec.Decode(&cfg); err != nil {
		return nil, &apperrors.ParseError{Format: "config", Message: err.Error(), Err: err}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (f *File) applyDefaults() {
	f.SourceBaseURL = strings.TrimRight(strings.TrimSpace(f.SourceBaseURL), "/")
	if f.DownloadRoot == "" {
		f.DownloadRoot = DefaultDownloadRoot
	}
	if f.Workers == 0 {
		f.Workers = DefaultWorkers
	}
	if !f.Timeout.set {
		f.Timeout = Duration{Duration: DefaultTimeout, set: true}
	}
	if f.UserAgent == "" {
		f.UserAgent = DefaultUserAgent
	}
}

// Apply merges the set overrides into the configuration.
func (f *File) Apply(o Overrides) {
	if o.SourceBaseURL != "" {
		f.SourceBaseURL = strings.TrimRight(strings.TrimSpace(o.SourceBaseURL), "/")
	}
	if o.DownloadRoot != "" {
		f.DownloadRoot = o.DownloadRoot
	}
	if o.Workers > 0 {
		f.Workers = o.Workers
	}
	if o.RateLimit != nil {
		f.RateLimit = *o.RateLimit
	}
	if o.Timeout != nil {
		f.Timeout = Duration{Duration: *o.Timeout, set: true}
	}
}

// Validate checks the configuration for values the pipeline cannot work with.
func (f *File) Validate() error {
	if err := f.Mirror.Validate(); err != nil {
		return err
	}
	if len(f.Books) == 0 {
		return apperrors.NewValidation("books", "at least one book is required")
	}
	seen := make(map[string]bool, len(f.Books))
	names := make(map[string]bool, len(f.Books))
	for i, b := range f.Books {
		field := fmt.Sprintf("books[%d]", i)
		if err := b.Validate(); err != nil {
			return &apperrors.ValidationError{Field: field, Message: err.Error(), Err: err}
		}
		if seen[b.ID] {
			return apperrors.NewValidation(field+".id", fmt.Sprintf("duplicate book id %q", b.ID))
		}
		if names[b.Name] {
			return apperrors.NewValidation(field+".name", fmt.Sprintf("duplicate book name %q", b.Name))
		}
		seen[b.ID], names[b.Name] = true, true
	}
	return nil
}

// Validate checks the shared mirror settings.
func (m Mirror) Validate() error {
	if m.SourceBaseURL == "" {
		return apperrors.NewValidation("source_base_url", "must not be empty")
	}
	u, err := url.Parse(m.SourceBaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &apperrors.ValidationError{Field: "source_base_url", Value: m.SourceBaseURL, Message: "must be an absolute URL", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &apperrors.ValidationError{Field: "source_base_url", Value: m.SourceBaseURL, Message: "scheme must be http or https"}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return &apperrors.ValidationError{Field: "source_base_url", Value: m.SourceBaseURL, Message: "must not carry a query or fragment"}
	}
	if m.DownloadRoot == "" {
		return apperrors.NewValidation("download_root", "must not be empty")
	}
	if m.Workers < 1 {
		return apperrors.NewValidation("workers", "must be at least 1")
	}
	if m.RateLimit < 0 {
		return apperrors.NewValidation("rate_limit", "must not be negative")
	}
	if m.Timeout.Duration < 0 {
		return apperrors.NewValidation("timeout", "must not be negative")
	}
	for i, s := range m.Blacklist.Style {
		if strings.TrimSpace(s) == "" {
			return apperrors.NewValidation(fmt.Sprintf("blacklist.style[%d]", i), "must not be blank")
		}
	}
	return nil
}

// Validate checks a single book descriptor.
func (b Book) Validate() error {
	if b.ID == "" {
		return errors.New("id must not be empty")
	}
	if strings.ContainsAny(b.ID, "/?#\\") || b.ID == "." || b.ID == ".." {
		return fmt.Errorf("id %q must be a single URL path segment", b.ID)
	}
	if err := validation.ValidateFilename(b.Name); err != nil {
		return fmt.Errorf("name %q: %w", b.Name, err)
	}
	return nil
}

// Select returns the books whose IDs are listed, in configuration order. An
// empty list selects every book.
func (f *File) Select(ids []string) ([]Book, error) {
	if len(ids) == 0 {
		return f.Books, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Book
	for _, b := range f.Books {
		if want[b.ID] {
			out = append(out, b)
			delete(want, b.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, id := range ids {
			if want[id] {
				missing = append(missing, id)
			}
		}
		return nil, apperrors.NewValidation("book", "unknown book id(s): "+strings.Join(missing, ", "))
	}
	return out, nil
}
