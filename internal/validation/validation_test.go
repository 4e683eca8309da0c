package validation

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	baseDir := filepath.Join("downloads", "Title")

	tests := []struct {
		name      string
		userPath  string
		want      string
		wantError error
	}{
		{
			name:     "simple valid path",
			userPath: "mimetype",
			want:     "mimetype",
		},
		{
			name:     "nested valid path",
			userPath: "EPUB/css/base.css",
			want:     filepath.Join("EPUB", "css", "base.css"),
		},
		{
			name:     "path with redundant separators",
			userPath: "EPUB//xhtml/ch1.xhtml",
			want:     filepath.Join("EPUB", "xhtml", "ch1.xhtml"),
		},
		{
			name:     "leading slash stripped",
			userPath: "/META-INF/container.xml",
			want:     filepath.Join("META-INF", "container.xml"),
		},
		{
			name:     "path with dot component",
			userPath: "./EPUB/package.opf",
			want:     filepath.Join("EPUB", "package.opf"),
		},
		{
			name:     "dots inside a name are fine",
			userPath: "EPUB/images/a..b.png",
			want:     filepath.Join("EPUB", "images", "a..b.png"),
		},
		{
			name:      "path traversal with dotdot",
			userPath:  "../etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "path traversal in middle",
			userPath:  "EPUB/../../etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "dotdot that would clean away",
			userPath:  "EPUB/css/../base.css",
			wantError: ErrPathTraversal,
		},
		{
			name:      "empty path",
			userPath:  "",
			wantError: ErrEmptyPath,
		},
		{
			name:      "only slashes",
			userPath:  "///",
			wantError: ErrEmptyPath,
		},
		{
			name:      "null byte",
			userPath:  "EPUB/a\x00.css",
			wantError: ErrInvalidCharacter,
		},
		{
			name:      "overlong segment",
			userPath:  "EPUB/" + strings.Repeat("a", MaxFilenameLength+1),
			wantError: ErrFilenameTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(baseDir, tt.userPath)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("SanitizePath(%q) error = %v, want %v", tt.userPath, err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizePath(%q) unexpected error: %v", tt.userPath, err)
			}
			if got != tt.want {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.userPath, got, tt.want)
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"plain", "Title", false},
		{"spaces and unicode", "Mon Livre été", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"null", "a\x00b", true},
		{"control", "a\tb", true},
		{"hyphen", "-rf", true},
		{"too long", strings.Repeat("x", MaxFilenameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath(""); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("empty: got %v", err)
	}
	if err := ValidatePath(strings.Repeat("a", MaxPathLength+1)); !errors.Is(err, ErrPathTooLong) {
		t.Errorf("long: got %v", err)
	}
	if err := ValidatePath("a\nb"); !errors.Is(err, ErrInvalidCharacter) {
		t.Errorf("control: got %v", err)
	}
	if err := ValidatePath("EPUB/ok.css"); err != nil {
		t.Errorf("ok: got %v", err)
	}
}
