// Package mirror crawls one book's assets from the source server into the
// local download root and, for batches, packs each mirror into an EPUB.
//
// A run seeds the frontier with the book's fixed metadata URLs, then drains
// it: every asset is fetched, handed to its extractor, written to disk and
// its discovered references are merged back into the frontier. The run ends
// when the frontier is exhausted.
package mirror

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/core/extract"
	"github.com/FocuswithJustin/epubmirror/core/frontier"
	"github.com/FocuswithJustin/epubmirror/core/resolve"
	"github.com/FocuswithJustin/epubmirror/internal/config"
	"github.com/FocuswithJustin/epubmirror/internal/fetch"
	"github.com/FocuswithJustin/epubmirror/internal/fileutil"
	"github.com/FocuswithJustin/epubmirror/internal/logging"
)

// Mirror runs crawls against one source configuration.
type Mirror struct {
	cfg     config.Mirror
	fetcher fetch.Fetcher
	fs      fileutil.FS
}

// New creates a Mirror. A nil fs writes to the local file system.
func New(cfg config.Mirror, fetcher fetch.Fetcher, fs fileutil.FS) *Mirror {
	if fs == nil {
		fs = fileutil.OS{}
	}
	return &Mirror{cfg: cfg, fetcher: fetcher, fs: fs}
}

// outcome is the fetch and extract result for one frontier entry.
type outcome struct {
	url   string
	index int
	kind  extract.Kind
	res   extract.Result

	fetchErr error
	parseErr error
}

// run is the state of one book's crawl.
type run struct {
	*Mirror
	book     config.Book
	registry *extract.Registry
	frontier *frontier.Frontier
	manifest string
	report   *Report
	skipped  map[string]bool
}

// Run mirrors book into its directory under the download root.
//
// Fetch failures are logged and the asset is skipped, except for the
// package manifest: without it nothing else can be found, so its failure
// ends the run with a *errors.ManifestError. Write failures are logged and
// skipped. A canceled context stops the run between assets and returns
// ctx.Err(); files already written stay on disk. The report is returned in
// every case.
func (m *Mirror) Run(ctx context.Context, book config.Book) (*Report, error) {
	ctx = logging.WithRun(ctx, book.ID)

	r := &run{
		Mirror:   m,
		book:     book,
		registry: extract.NewRegistry(resolve.ContentRoot(m.cfg, book), m.cfg.StyleBlacklist()),
		frontier: frontier.New(resolve.Seeds(m.cfg, book)...),
		manifest: resolve.PackageURL(m.cfg, book),
		report: &Report{
			RunID:    logging.GetRunID(ctx),
			BookID:   book.ID,
			BookName: book.Name,
			Dir:      resolve.BookDir(m.cfg, book),
			Started:  time.Now().UTC(),
		},
		skipped: make(map[string]bool),
	}

	logging.BookEvent(ctx, "start", "root", resolve.BookRoot(m.cfg, book), "dir", r.report.Dir, "workers", m.workers())
	err := r.drain(ctx)
	r.report.Finished = time.Now().UTC()
	if err != nil {
		r.report.Error = err.Error()
		return r.report, err
	}

	logging.BookEvent(ctx, "mirrored",
		"assets", len(r.report.Assets),
		"persisted", r.report.Persisted(),
		"failed", r.report.Failed(),
		"skipped", len(r.report.Skipped),
		"duration_ms", r.report.Finished.Sub(r.report.Started).Milliseconds(),
	)
	return r.report, nil
}

func (m *Mirror) workers() int {
	if m.cfg.Workers < 1 {
		return 1
	}
	return m.cfg.Workers
}

func (r *run) drain(ctx context.Context) error {
	if err := r.fs.EnsureDir(r.report.Dir); err != nil {
		return err
	}

	for !r.frontier.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var wave []outcome
		if r.workers() == 1 {
			u, index, _ := r.frontier.Next()
			wave = []outcome{r.process(ctx, u, index)}
		} else {
			var err error
			if wave, err = r.processWave(ctx); err != nil {
				return err
			}
		}

		// Results are merged strictly in frontier order, so the frontier
		// grows the same way whatever order the fetches completed in.
		for _, o := range wave {
			if err := r.commit(ctx, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// processWave fetches and extracts every pending URL concurrently.
func (r *run) processWave(ctx context.Context) ([]outcome, error) {
	urls, start := r.frontier.Drain()
	wave := make([]outcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			wave[i] = r.process(gctx, u, start+i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wave, nil
}

// process fetches one asset and runs its extractor. It does not touch the
// frontier or the file system.
func (r *run) process(ctx context.Context, u string, index int) outcome {
	logging.AssetProgress(ctx, index, r.frontier.Len(), u)

	o := outcome{url: u, index: index, kind: extract.KindOf(u)}
	resp, err := r.fetcher.Fetch(ctx, u)
	if err != nil {
		o.fetchErr = err
		return o
	}
	o.kind, o.res, o.parseErr = r.registry.Extract(resp.Body, u)
	return o
}

// commit persists one outcome and merges its discoveries into the frontier.
func (r *run) commit(ctx context.Context, o outcome) error {
	asset := Asset{URL: o.url, Kind: o.kind}

	if o.fetchErr != nil {
		if err := ctx.Err(); err != nil && apperrors.Is(o.fetchErr, err) {
			return err
		}
		if o.url == r.manifest {
			logging.AssetError(ctx, o.url, "fetch", o.fetchErr, "fatal", true)
			return &apperrors.ManifestError{URL: o.url, Err: o.fetchErr}
		}
		logging.AssetError(ctx, o.url, "fetch", o.fetchErr)
		asset.Stage, asset.Error = "fetch", o.fetchErr.Error()
		r.report.Assets = append(r.report.Assets, asset)
		return nil
	}

	if o.parseErr != nil {
		logging.AssetError(ctx, o.url, "extract", o.parseErr)
		asset.Stage, asset.Error = "extract", o.parseErr.Error()
	}
	for _, ref := range o.res.Invalid {
		logging.DebugContext(ctx, "unresolvable reference", "url", o.url, "ref", ref)
	}

	rel, local, err := resolve.Guard(r.cfg, r.book, o.url)
	if err != nil {
		// Only seeds can get here; everything else was guarded on enqueue.
		r.skip(ctx, o.url, err)
		return nil
	}
	asset.Path = rel
	asset.Size = int64(len(o.res.Content))
	sum := blake3.Sum256(o.res.Content)
	asset.BLAKE3 = hex.EncodeToString(sum[:])

	if err := r.fs.WriteFile(local, o.res.Content); err != nil {
		logging.AssetError(ctx, o.url, "write", err, "path", local)
		asset.Stage, asset.Error = "write", err.Error()
	}

	for _, d := range o.res.Discovered {
		if _, _, err := resolve.Guard(r.cfg, r.book, d); err != nil {
			r.skip(ctx, d, err)
			continue
		}
		asset.Discovered += len(r.frontier.Add(d))
	}

	r.report.Assets = append(r.report.Assets, asset)
	return nil
}

func (r *run) skip(ctx context.Context, u string, err error) {
	if r.skipped[u] {
		return
	}
	r.skipped[u] = true

	var pg *apperrors.PathGuardError
	reason := err.Error()
	if apperrors.As(err, &pg) {
		reason = pg.Reason
	}
	logging.DebugContext(ctx, "skipping reference", "url", u, "reason", reason)
	r.report.Skipped = append(r.report.Skipped, Skip{URL: u, Reason: reason})
}
