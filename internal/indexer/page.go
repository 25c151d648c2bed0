package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
)

// PageJob describes one page to fetch, transform, store, and index.
type PageJob struct {
	Ref           models.PageRef
	NotebookID    string
	NotebookName  string
	SectionName   string
	KnownPages    map[string]string // page id → title, for link resolution
	KnownSections map[string]string // section id → name
}

// ProcessPage is the single-page ingestion path shared by the bulk run and
// the sync executor: fetch content, download assets, resolve links, convert
// to searchable text, store through the cache contract, and index.
//
// If conversion fails after content was fetched, the record is still stored
// with Converted=false so the partial state is distinguishable and the page
// is retried on the next run; it is not indexed.
func (ix *Indexer) ProcessPage(ctx context.Context, userID string, job PageJob) error {
	ref := job.Ref
	raw, err := ix.remote.FetchPageContent(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("indexer: fetch page %s: %w", ref.ID, err)
	}

	now := time.Now().UTC()
	rec := &models.PageRecord{
		PageID:       ref.ID,
		Title:        ref.Title,
		CreatedAt:    ref.CreatedAt,
		LastModified: ref.LastModified,
		NotebookID:   job.NotebookID,
		NotebookName: job.NotebookName,
		SectionID:    ref.SectionID,
		SectionName:  job.SectionName,
		ContentURL:   ref.ContentURL,
		LastSyncedAt: now,
		Downloaded:   true,
	}
	if rec.SectionID == "" {
		// Listing payloads sometimes omit the parent id; fall back to the
		// job's section context via known sections.
		for id := range job.KnownSections {
			rec.SectionID = id
			break
		}
	}

	assets := ix.pipeline.Assets.ExtractAssets(raw)
	if len(assets) > 0 {
		destDir := ix.store.AssetDir(userID, rec)
		downloaded, report, dlErr := ix.pipeline.Downloader.DownloadAll(ctx, assets, destDir)
		if dlErr != nil {
			return fmt.Errorf("indexer: download assets for %s: %w", ref.ID, dlErr)
		}
		rec.Attachments = downloaded
		if report.Failed > 0 {
			ix.logger.Warn("indexer: some assets failed",
				slog.String("page", ref.ID), slog.Int("failed", report.Failed))
		}
	}

	links := ix.pipeline.Links.ResolveLinks(raw, job.KnownPages, job.KnownSections)
	rec.Links = links
	rec.LinksResolved = true

	text, _, convErr := ix.pipeline.Converter.ConvertToSearchableText(raw, rec.Attachments, links)
	if convErr != nil {
		// Keep the fetched markup; the record stays incomplete.
		if storeErr := ix.store.StorePage(userID, rec, cache.Artifacts{RawMarkup: raw}); storeErr != nil {
			return fmt.Errorf("indexer: store partial page %s: %w", ref.ID, storeErr)
		}
		return fmt.Errorf("indexer: convert page %s: %w", ref.ID, convErr)
	}
	rec.Converted = true

	if err := ix.store.StorePage(userID, rec, cache.Artifacts{RawMarkup: raw, Text: []byte(text)}); err != nil {
		return fmt.Errorf("indexer: store page %s: %w", ref.ID, err)
	}
	if err := ix.index.IndexPage(search.NewDocument(userID, rec, text)); err != nil {
		return fmt.Errorf("indexer: index page %s: %w", ref.ID, err)
	}
	return nil
}
