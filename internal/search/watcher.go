package search

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/othala/internal/models"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "indexed", "removed".
type EventCallback func(kind, userID, pageID string)

// Watch starts an fsnotify watcher on the cache root and keeps the search
// index in step with external edits to mirrored text artifacts: a modified
// page.md is re-indexed, a removed page directory is de-indexed. Runs until
// ctx is cancelled.
//
// New directories created at runtime (pages arriving through a bulk run)
// are added to the watch list automatically.
func Watch(ctx context.Context, db PageIndex, cacheRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	users := newUserResolver(cacheRoot)
	pages := newPageResolver()

	if err := addDirsRecursive(w, cacheRoot, pages); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", cacheRoot))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath, pages); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath), slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			switch {
			case filepath.Base(absPath) == "page.md" && ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				// Writers go tmp → rename, so a settle delay is unnecessary;
				// the artifact at this path is complete.
				reindexArtifact(db, users, pages, cacheRoot, absPath, logger, cb)

			case filepath.Base(absPath) == "page.json" && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				userID, dirKey := identify(users, cacheRoot, absPath)
				if userID == "" || dirKey == "" {
					continue
				}
				// The directory name is a sanitized id; the metadata it held
				// is gone, so the resolver supplies the recorded id.
				pageDir := filepath.Dir(absPath)
				pageID := pages.resolve(pageDir, dirKey)
				if delErr := db.DeletePage(userID, pageID); delErr != nil {
					logger.Warn("watcher: deindex failed",
						slog.String("page", pageID), slog.String("error", delErr.Error()))
					continue
				}
				pages.forget(pageDir)
				logger.Debug("watcher: removed", slog.String("page", pageID))
				if cb != nil {
					cb("removed", userID, pageID)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reindexArtifact reloads the record next to a changed text artifact and
// upserts its search document.
func reindexArtifact(db PageIndex, users *userResolver, pages *pageResolver, cacheRoot, textPath string, logger *slog.Logger, cb EventCallback) {
	dir := filepath.Dir(textPath)
	metaRaw, err := os.ReadFile(filepath.Join(dir, "page.json"))
	if err != nil {
		// Artifact arrived before metadata; the metadata write will not
		// re-fire, but the record is incomplete until StorePage finishes
		// and the next write or sync picks it up.
		return
	}
	var rec models.PageRecord
	if err := json.Unmarshal(metaRaw, &rec); err != nil {
		logger.Warn("watcher: bad record", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}
	pages.put(dir, rec.PageID)
	if !rec.Complete() {
		return
	}
	text, err := os.ReadFile(textPath)
	if err != nil {
		return
	}
	userID, _ := identify(users, cacheRoot, textPath)
	if userID == "" {
		return
	}
	if err := db.IndexPage(NewDocument(userID, &rec, string(text))); err != nil {
		logger.Warn("watcher: index failed", slog.String("page", rec.PageID), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: indexed", slog.String("page", rec.PageID))
	if cb != nil {
		cb("indexed", userID, rec.PageID)
	}
}

// identify extracts the user id and page directory name for a path inside
// the cache tree: <root>/<user>/notebooks/<nb>/<sec>/<page>/<file>.
func identify(users *userResolver, cacheRoot, absPath string) (userID, pageKey string) {
	rel, err := filepath.Rel(cacheRoot, absPath)
	if err != nil {
		return "", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 6 || parts[1] != "notebooks" {
		return "", ""
	}
	return users.resolve(parts[0]), parts[4]
}

// userResolver maps a user directory name back to the user id recorded in
// its metadata file. Directory names are sanitized ids, so the metadata is
// authoritative.
type userResolver struct {
	root  string
	cache map[string]string
}

func newUserResolver(root string) *userResolver {
	return &userResolver{root: root, cache: make(map[string]string)}
}

func (r *userResolver) resolve(dirName string) string {
	if id, ok := r.cache[dirName]; ok {
		return id
	}
	data, err := os.ReadFile(filepath.Join(r.root, dirName, "metadata.json"))
	if err != nil {
		return ""
	}
	var meta models.CacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil || meta.UserID == "" {
		return ""
	}
	r.cache[dirName] = meta.UserID
	return meta.UserID
}

// pageResolver maps a page directory back to the page id recorded in its
// metadata. Directory names are sanitized ids, so removal events for ids
// with rewritten characters need the recorded id to de-index the right row.
// The mapping is captured while the metadata still exists: on the startup
// walk and on every artifact reindex.
type pageResolver struct {
	cache map[string]string // page dir path → page id
}

func newPageResolver() *pageResolver {
	return &pageResolver{cache: make(map[string]string)}
}

func (r *pageResolver) learn(dir string) {
	data, err := os.ReadFile(filepath.Join(dir, "page.json"))
	if err != nil {
		return
	}
	var rec models.PageRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.PageID == "" {
		return
	}
	r.cache[dir] = rec.PageID
}

func (r *pageResolver) put(dir, id string) {
	r.cache[dir] = id
}

func (r *pageResolver) resolve(dir, fallback string) string {
	if id, ok := r.cache[dir]; ok {
		return id
	}
	return fallback
}

func (r *pageResolver) forget(dir string) {
	delete(r.cache, dir)
}

// addDirsRecursive adds root and all its subdirectories to the watcher and
// records the page id of every metadata file it passes.
func addDirsRecursive(w *fsnotify.Watcher, root string, pages *pageResolver) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if d.Name() == "page.json" {
			pages.learn(filepath.Dir(path))
		}
		return nil
	})
}
