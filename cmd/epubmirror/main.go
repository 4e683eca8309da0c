// Command epubmirror mirrors EPUB books published as loose files on a web
// server and packs each mirror into an .epub archive.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/epubmirror/core/epub"
	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/internal/config"
	"github.com/FocuswithJustin/epubmirror/internal/fetch"
	"github.com/FocuswithJustin/epubmirror/internal/fileutil"
	"github.com/FocuswithJustin/epubmirror/internal/logging"
	"github.com/FocuswithJustin/epubmirror/internal/mirror"
)

const version = "0.1.0"

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for epubmirror.
var CLI struct {
	// Global flags
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info" env:"EPUBMIRROR_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text" env:"EPUBMIRROR_LOG_FORMAT"`

	Mirror  MirrorCmd  `cmd:"" help:"Mirror the configured books and pack them into archives"`
	Pack    PackCmd    `cmd:"" help:"Pack a mirrored book directory into an archive"`
	Verify  VerifyCmd  `cmd:"" help:"Inspect an archive and check its container shape"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// MirrorCmd mirrors every configured book.
type MirrorCmd struct {
	Config       string         `help:"Path to the JSON configuration file" type:"existingfile" required:"" env:"EPUBMIRROR_CONFIG"`
	Book         []string       `help:"Only mirror the book with this ID (repeatable)"`
	Source       string         `help:"Override the source base URL" env:"EPUBMIRROR_SOURCE_BASE_URL"`
	DownloadRoot string         `name:"download-root" help:"Override the download root" type:"path" env:"EPUBMIRROR_DOWNLOAD_ROOT"`
	Workers      int            `help:"Concurrent fetches per wave" env:"EPUBMIRROR_WORKERS"`
	Rate         *float64       `help:"Maximum requests per second, 0 for unlimited" env:"EPUBMIRROR_RATE_LIMIT"`
	Timeout      *time.Duration `help:"Per-request timeout, 0 for none" env:"EPUBMIRROR_TIMEOUT"`
	NoPack       bool           `name:"no-pack" help:"Mirror only, do not build archives"`
	Report       string         `help:"Write a JSON run report to this file" type:"path"`
}

// overrides returns the flags that were given. Unset Rate and Timeout stay
// nil so an explicit 0 still reaches the configuration.
func (c *MirrorCmd) overrides() config.Overrides {
	return config.Overrides{
		SourceBaseURL: c.Source,
		DownloadRoot:  c.DownloadRoot,
		Workers:       c.Workers,
		RateLimit:     c.Rate,
		Timeout:       c.Timeout,
	}
}

func (c *MirrorCmd) Run(ctx context.Context) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	cfg.Apply(c.overrides())
	if err := cfg.Validate(); err != nil {
		return err
	}
	books, err := cfg.Select(c.Book)
	if err != nil {
		return err
	}

	m := mirror.New(cfg.Mirror, fetch.New(fetch.OptionsFromConfig(cfg.Mirror)), nil)
	batch, runErr := m.RunAll(ctx, books, mirror.BatchOptions{Pack: !c.NoPack})

	for _, r := range batch.Books {
		status := "OK"
		if r.Error != "" {
			status = "FAIL"
		}
		fmt.Fprintf(stdout, "[%s] %s (%s): %d persisted, %d failed, %d skipped\n",
			status, r.BookName, r.BookID, r.Persisted(), r.Failed(), len(r.Skipped))
		if r.Archive != "" {
			fmt.Fprintf(stdout, "  Archive: %s\n", r.Archive)
		}
		if r.Error != "" {
			fmt.Fprintf(stdout, "  Error: %s\n", r.Error)
		}
	}

	if c.Report != "" {
		if err := mirror.WriteReport(fileutil.OS{}, c.Report, batch); err != nil {
			return apperrors.Wrap(err, "failed to write report")
		}
		fmt.Fprintf(stdout, "Report: %s\n", c.Report)
	}

	if runErr != nil {
		return fmt.Errorf("%d of %d book(s) failed: %w", batch.Failed(), len(books), runErr)
	}
	return nil
}

// PackCmd packs an existing mirror.
type PackCmd struct {
	Dir string `arg:"" help:"Mirrored book directory" type:"existingdir"`
	Out string `help:"Archive path (default: DIR.epub)" type:"path"`
}

func (c *PackCmd) Run() error {
	out := c.Out
	if out == "" {
		out = filepath.Clean(c.Dir) + ".epub"
	}
	if err := epub.Pack(c.Dir, out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Archive: %s\n", out)
	return nil
}

// VerifyCmd inspects an archive.
type VerifyCmd struct {
	File string `arg:"" help:"Archive to verify" type:"existingfile"`
	JSON bool   `help:"Output as JSON"`
}

func (c *VerifyCmd) Run() error {
	a, err := epub.Inspect(c.File)
	if err != nil {
		return err
	}
	verr := a.Validate()

	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			return err
		}
		return verr
	}

	fmt.Fprintf(stdout, "Archive: %s\n", a.Path)
	fmt.Fprintf(stdout, "  Entries: %d\n", len(a.Entries))
	for _, rf := range a.Rootfiles {
		fmt.Fprintf(stdout, "  Rootfile: %s\n", rf)
	}
	for _, e := range a.Entries {
		method := "deflate"
		if e.Stored {
			method = "store"
		}
		fmt.Fprintf(stdout, "  %s  %-7s %8d  %s\n", e.BLAKE3[:16], method, e.Size, e.Name)
	}

	if verr != nil {
		fmt.Fprintf(stdout, "Verification failed:\n%s\n", verr)
		return fmt.Errorf("verification failed: %w", verr)
	}
	fmt.Fprintln(stdout, "Verification passed!")
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "epubmirror version %s\n", version)
	return nil
}

func configureLogging() error {
	level, err := logging.ParseLevel(CLI.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(CLI.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil {
		logging.Warn("ignoring environment file", "error", err.Error())
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := kong.Parse(&CLI,
		kong.Name("epubmirror"),
		kong.Description("Mirror EPUB books from a web server and pack them into archives"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(runCtx, (*context.Context)(nil)),
	)
	ctx.FatalIfErrorf(configureLogging())

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
