package search

import (
	"log/slog"

	"github.com/starford/othala/internal/cache"
)

// RebuildReport summarises a full index rebuild.
type RebuildReport struct {
	Total   int     `json:"total"`
	Indexed int     `json:"indexed"`
	Failed  int     `json:"failed"`
	Rate    float64 `json:"success_rate"`
}

// Rebuild clears the user's index and re-indexes every complete page
// currently in the cache store. Used after corruption or schema changes.
// Per-page failures are logged and counted, not fatal.
func Rebuild(db PageIndex, store cache.Store, userID string, logger *slog.Logger) (*RebuildReport, error) {
	if err := db.DeleteUser(userID); err != nil {
		return nil, err
	}

	pages, err := store.ListPages(userID, "", "")
	if err != nil {
		return nil, err
	}

	report := &RebuildReport{}
	for i := range pages {
		rec := &pages[i]
		if !rec.Complete() {
			// Half-processed pages are never surfaced as authoritative.
			continue
		}
		report.Total++
		text, err := store.ReadText(userID, rec)
		if err != nil {
			report.Failed++
			logger.Warn("rebuild: read text failed", slog.String("page", rec.PageID), slog.String("error", err.Error()))
			continue
		}
		if err := db.IndexPage(NewDocument(userID, rec, string(text))); err != nil {
			report.Failed++
			logger.Warn("rebuild: index failed", slog.String("page", rec.PageID), slog.String("error", err.Error()))
			continue
		}
		report.Indexed++
	}
	if report.Total > 0 {
		report.Rate = float64(report.Indexed) / float64(report.Total)
	} else {
		report.Rate = 1
	}
	return report, nil
}
