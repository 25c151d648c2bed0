package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// HTTPDownloader fetches asset bytes over HTTP with bounded concurrency.
// An asset whose destination file already exists with the recorded size is
// counted as succeeded without a network round-trip.
type HTTPDownloader struct {
	client      *http.Client
	concurrency int
}

// NewHTTPDownloader returns a downloader running at most concurrency
// fetches at once.
func NewHTTPDownloader(concurrency int) *HTTPDownloader {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &HTTPDownloader{
		client:      &http.Client{Timeout: 60 * time.Second},
		concurrency: concurrency,
	}
}

// DownloadAll fetches every asset into destDir. Per-asset failures mark the
// asset failed and continue; the returned slice mirrors the input with
// updated state, path, and size.
func (d *HTTPDownloader) DownloadAll(ctx context.Context, assets []models.AttachmentRef, destDir string) ([]models.AttachmentRef, DownloadReport, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, DownloadReport{}, fmt.Errorf("transform: create asset dir: %w", errors.Join(apperr.ErrStorage, err))
	}

	out := make([]models.AttachmentRef, len(assets))
	copy(out, assets)

	var mu sync.Mutex
	report := DownloadReport{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i := range out {
		g.Go(func() error {
			a := &out[i]
			dest := filepath.Join(destDir, destName(a.SourceURL, i))

			// Already current: same destination with the recorded size.
			if info, err := os.Stat(dest); err == nil && a.SizeBytes > 0 && info.Size() == a.SizeBytes {
				a.State = models.DownloadComplete
				mu.Lock()
				report.Succeeded++
				report.BytesTotal += info.Size()
				mu.Unlock()
				return nil
			}

			size, err := d.fetch(ctx, a.SourceURL, dest)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.State = models.DownloadFailed
				report.Failed++
				return nil // per-asset failures never abort the batch
			}
			a.State = models.DownloadComplete
			a.LocalPath = dest
			a.SizeBytes = size
			report.Succeeded++
			report.BytesTotal += size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, report, err
	}
	return out, report, nil
}

func (d *HTTPDownloader) fetch(ctx context.Context, srcURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return 0, fmt.Errorf("transform: build request: %w", errors.Join(apperr.ErrDownload, err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("transform: fetch %s: %w", srcURL, errors.Join(apperr.ErrDownload, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("transform: fetch %s: status %d: %w", srcURL, resp.StatusCode, apperr.ErrDownload)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".othala-dl-*")
	if err != nil {
		return 0, fmt.Errorf("transform: create temp: %w", errors.Join(apperr.ErrStorage, err))
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("transform: write %s: %w", dest, errors.Join(apperr.ErrDownload, err, closeErr))
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("transform: rename: %w", errors.Join(apperr.ErrStorage, err))
	}
	return n, nil
}

// destName derives a stable file name from the source URL, falling back to
// an index-based name for unparseable URLs.
func destName(src string, i int) string {
	if u, err := url.Parse(src); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return fmt.Sprintf("%03d_%s", i, base)
		}
	}
	return fmt.Sprintf("asset_%03d", i)
}
