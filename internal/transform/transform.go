// Package transform defines the content transformation pipeline consumed
// by the engine: markup-to-text conversion, asset extraction, link
// resolution, and asset downloading. The engine only depends on these
// interfaces; conversion algorithms are the implementation's business.
package transform

import (
	"context"

	"github.com/starford/othala/internal/models"
)

// ConvertStats reports what a conversion produced.
type ConvertStats struct {
	Characters int
	Images     int
	Links      int
}

// Converter turns raw page markup into searchable text.
type Converter interface {
	ConvertToSearchableText(rawMarkup []byte, assets []models.AttachmentRef, links []models.PageLink) (string, ConvertStats, error)
}

// AssetExtractor finds the assets referenced by raw markup.
type AssetExtractor interface {
	ExtractAssets(rawMarkup []byte) []models.AttachmentRef
}

// LinkResolver classifies and resolves the links found in raw markup
// against the set of known pages and sections.
type LinkResolver interface {
	ResolveLinks(rawMarkup []byte, knownPages map[string]string, knownSections map[string]string) []models.PageLink
}

// DownloadReport summarises one DownloadAll run.
type DownloadReport struct {
	Succeeded  int
	Failed     int
	BytesTotal int64
}

// Downloader fetches asset bytes into destDir with bounded concurrency.
// Implementations short-circuit assets that are already current (same path
// and size) and must wrap apperr.ErrDownload on per-asset failures.
type Downloader interface {
	DownloadAll(ctx context.Context, assets []models.AttachmentRef, destDir string) ([]models.AttachmentRef, DownloadReport, error)
}
