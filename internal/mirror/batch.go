package mirror

import (
	"context"
	"errors"

	"github.com/FocuswithJustin/epubmirror/core/epub"
	apperrors "github.com/FocuswithJustin/epubmirror/core/errors"
	"github.com/FocuswithJustin/epubmirror/core/resolve"
	"github.com/FocuswithJustin/epubmirror/internal/config"
	"github.com/FocuswithJustin/epubmirror/internal/logging"
)

// packFunc is a variable to allow testing of archive failures.
var packFunc = epub.Pack

// BatchOptions controls RunAll.
type BatchOptions struct {
	// Pack assembles <DownloadRoot>/<Name>.epub after each successful mirror.
	Pack bool
}

// RunAll mirrors books one after another. A failed book is logged and the
// batch continues with the next one; the returned error joins every book's
// failure. Cancellation stops the batch.
func (m *Mirror) RunAll(ctx context.Context, books []config.Book, opts BatchOptions) (*BatchReport, error) {
	batch := &BatchReport{}
	var errs []error

	for i, book := range books {
		if err := ctx.Err(); err != nil {
			logging.WarnContext(ctx, "batch canceled", "remaining", len(books)-i)
			errs = append(errs, err)
			break
		}

		report, err := m.Run(ctx, book)
		batch.Books = append(batch.Books, report)
		if err != nil {
			logging.ErrorContext(ctx, "book failed", "book", book.ID, "name", book.Name, "error", err.Error())
			errs = append(errs, apperrors.Wrapf(err, "book %s", book.ID))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if !opts.Pack {
			continue
		}
		archive := resolve.ArchivePath(m.cfg, book)
		if err := packFunc(report.Dir, archive); err != nil {
			logging.ErrorContext(ctx, "pack failed", "book", book.ID, "archive", archive, "error", err.Error())
			report.Error = err.Error()
			errs = append(errs, apperrors.Wrapf(err, "book %s", book.ID))
			continue
		}
		report.Archive = archive
		logging.InfoContext(ctx, "archive written", "book", book.ID, "archive", archive)
	}

	return batch, errors.Join(errs...)
}
