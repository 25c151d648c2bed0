package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

const (
	notebooksDir = "notebooks"
	metadataFile = "metadata.json"
	pageMetaFile = "page.json"
	rawFile      = "page.html"
	textFile     = "page.md"
	assetsDir    = "assets"
)

// FS implements Store backed by the local file system.
type FS struct {
	root string // absolute path to the cache root directory
}

// NewFS creates an FS store rooted at the given directory, creating it if
// absent.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", errors.Join(apperr.ErrStorage, err))
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute cache root directory.
func (f *FS) Root() string { return f.root }

// sanitizeKey makes a remote-assigned id safe for use as a path component.
func sanitizeKey(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

func (f *FS) userDir(userID string) string {
	return filepath.Join(f.root, sanitizeKey(userID))
}

func (f *FS) pageDir(userID, notebookID, sectionID, pageID string) string {
	return filepath.Join(f.userDir(userID), notebooksDir,
		sanitizeKey(notebookID), sanitizeKey(sectionID), sanitizeKey(pageID))
}

// atomicWrite writes content via tmp file → fsync → rename so readers never
// observe a partial file.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", errors.Join(apperr.ErrStorage, err))
	}
	tmp, err := os.CreateTemp(dir, ".othala-tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", errors.Join(apperr.ErrStorage, err))
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("cache: write temp: %w", errors.Join(apperr.ErrStorage, err))
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("cache: fsync: %w", errors.Join(apperr.ErrStorage, err))
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp: %w", errors.Join(apperr.ErrStorage, err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("cache: rename: %w", errors.Join(apperr.ErrStorage, err))
	}
	success = true
	return nil
}

// InitializeUser creates the user's directory skeleton and an initial
// metadata record if absent. Idempotent.
func (f *FS) InitializeUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("cache: initialize user: empty user id: %w", apperr.ErrValidation)
	}
	dir := f.userDir(userID)
	if err := os.MkdirAll(filepath.Join(dir, notebooksDir), 0o755); err != nil {
		return fmt.Errorf("cache: initialize user %s: %w", userID, errors.Join(apperr.ErrStorage, err))
	}
	metaPath := filepath.Join(dir, metadataFile)
	if _, err := os.Stat(metaPath); err == nil {
		return nil
	}
	meta := models.CacheMetadata{UserID: userID, CreatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode metadata: %w", err)
	}
	return atomicWrite(metaPath, data)
}

// UserExists reports whether a cache tree exists for the user.
func (f *FS) UserExists(userID string) bool {
	_, err := os.Stat(filepath.Join(f.userDir(userID), metadataFile))
	return err == nil
}

// StorePage writes artifact bytes first, then the metadata record, so a
// reader never observes metadata referencing missing artifacts. Requires
// page, notebook, and section ids on the record.
func (f *FS) StorePage(userID string, record *models.PageRecord, artifacts Artifacts) error {
	if record == nil || record.PageID == "" {
		return fmt.Errorf("cache: store page: empty page id: %w", apperr.ErrValidation)
	}
	if record.NotebookID == "" || record.SectionID == "" {
		return fmt.Errorf("cache: store page %s: missing parent notebook/section id: %w",
			record.PageID, apperr.ErrValidation)
	}

	dir := f.pageDir(userID, record.NotebookID, record.SectionID, record.PageID)
	userDir := f.userDir(userID)

	if artifacts.RawMarkup != nil {
		p := filepath.Join(dir, rawFile)
		if err := atomicWrite(p, artifacts.RawMarkup); err != nil {
			return fmt.Errorf("cache: store page %s raw markup: %w", record.PageID, err)
		}
		rel, _ := filepath.Rel(userDir, p)
		record.RawMarkupPath = filepath.ToSlash(rel)
	}
	if artifacts.Text != nil {
		p := filepath.Join(dir, textFile)
		if err := atomicWrite(p, artifacts.Text); err != nil {
			return fmt.Errorf("cache: store page %s text: %w", record.PageID, err)
		}
		rel, _ := filepath.Rel(userDir, p)
		record.TextPath = filepath.ToSlash(rel)
	}

	// Normalise attachment paths written by the downloader to user-relative
	// slash paths so cleanup and portability work across roots.
	for i := range record.Attachments {
		a := &record.Attachments[i]
		if a.LocalPath == "" || !filepath.IsAbs(a.LocalPath) {
			continue
		}
		if rel, relErr := filepath.Rel(userDir, a.LocalPath); relErr == nil && !strings.HasPrefix(rel, "..") {
			a.LocalPath = filepath.ToSlash(rel)
		}
	}

	if record.CachedAt.IsZero() {
		record.CachedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode page %s: %w", record.PageID, err)
	}
	if err := atomicWrite(filepath.Join(dir, pageMetaFile), data); err != nil {
		return fmt.Errorf("cache: store page %s metadata: %w", record.PageID, err)
	}
	return f.removeStalePageDirs(userID, record.PageID, dir)
}

// removeStalePageDirs deletes any other directory holding this page id. A
// page whose parent section changed remotely would otherwise keep its old
// record alongside the new one, breaking page-id uniqueness. Runs after the
// metadata write so a record for the page exists at every point.
func (f *FS) removeStalePageDirs(userID, pageID, keep string) error {
	matches, err := filepath.Glob(filepath.Join(f.userDir(userID), notebooksDir, "*", "*", sanitizeKey(pageID)))
	if err != nil {
		return fmt.Errorf("cache: scan stale dirs for %s: %w", pageID, err)
	}
	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.RemoveAll(m); err != nil {
			return fmt.Errorf("cache: remove stale dir for %s: %w", pageID, errors.Join(apperr.ErrStorage, err))
		}
	}
	return nil
}

// findPageDir scans the hierarchy for the directory holding pageID.
// A linear scan is acceptable at personal-archive scale; an id→path index
// would be an optimization, not a correctness requirement.
func (f *FS) findPageDir(userID, pageID string) (string, error) {
	key := sanitizeKey(pageID)
	base := filepath.Join(f.userDir(userID), notebooksDir)
	matches, err := filepath.Glob(filepath.Join(base, "*", "*", key))
	if err != nil {
		return "", fmt.Errorf("cache: scan for page %s: %w", pageID, err)
	}
	for _, m := range matches {
		if _, err := os.Stat(filepath.Join(m, pageMetaFile)); err == nil {
			return m, nil
		}
	}
	return "", fmt.Errorf("cache: page %s: %w", pageID, apperr.ErrNotFound)
}

// GetPage returns the full record for pageID.
func (f *FS) GetPage(userID, pageID string) (*models.PageRecord, error) {
	dir, err := f.findPageDir(userID, pageID)
	if err != nil {
		return nil, err
	}
	return readRecord(filepath.Join(dir, pageMetaFile))
}

// DeletePage removes the page's directory. Absent pages delete successfully.
func (f *FS) DeletePage(userID, pageID string) error {
	dir, err := f.findPageDir(userID, pageID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("cache: delete page %s: %w", pageID, errors.Join(apperr.ErrStorage, err))
	}
	return nil
}

func readRecord(path string) (*models.PageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: read record: %w", errors.Join(apperr.ErrStorage, err))
	}
	var rec models.PageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("cache: decode record %s: %w", path, err)
	}
	return &rec, nil
}

// ListPages returns all page records, optionally scoped by notebook and/or
// section id.
func (f *FS) ListPages(userID, notebookID, sectionID string) ([]models.PageRecord, error) {
	nb := "*"
	if notebookID != "" {
		nb = sanitizeKey(notebookID)
	}
	sec := "*"
	if sectionID != "" {
		sec = sanitizeKey(sectionID)
	}
	pattern := filepath.Join(f.userDir(userID), notebooksDir, nb, sec, "*", pageMetaFile)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("cache: list pages: %w", err)
	}
	out := make([]models.PageRecord, 0, len(matches))
	for _, m := range matches {
		rec, err := readRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// ReadText returns the converted-text artifact for a record.
func (f *FS) ReadText(userID string, record *models.PageRecord) ([]byte, error) {
	if record.TextPath == "" {
		return nil, fmt.Errorf("cache: page %s text artifact: %w", record.PageID, apperr.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(f.userDir(userID), filepath.FromSlash(record.TextPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cache: page %s text artifact: %w", record.PageID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("cache: read text for %s: %w", record.PageID, errors.Join(apperr.ErrStorage, err))
	}
	return data, nil
}

// AssetDir returns the absolute assets directory for a page record.
func (f *FS) AssetDir(userID string, record *models.PageRecord) string {
	return filepath.Join(f.pageDir(userID, record.NotebookID, record.SectionID, record.PageID), assetsDir)
}

// TextArtifactExists reports whether the converted-text artifact exists.
func (f *FS) TextArtifactExists(userID string, record *models.PageRecord) bool {
	if record.TextPath == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(f.userDir(userID), filepath.FromSlash(record.TextPath)))
	return err == nil
}

// SearchStoredPages performs a case-insensitive substring scan over titles
// and converted text. Fallback path only; the search index serves queries.
func (f *FS) SearchStoredPages(userID, substring string) ([]models.PageRecord, error) {
	if substring == "" {
		return nil, fmt.Errorf("cache: search: empty substring: %w", apperr.ErrValidation)
	}
	pages, err := f.ListPages(userID, "", "")
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(substring)
	var out []models.PageRecord
	for i := range pages {
		p := &pages[i]
		if strings.Contains(strings.ToLower(p.Title), needle) {
			out = append(out, *p)
			continue
		}
		text, err := f.ReadText(userID, p)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(text)), needle) {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Statistics walks the user's tree and counts notebooks, sections, pages,
// assets, and total bytes. O(tree size).
func (f *FS) Statistics(userID string) (*models.CacheStatistics, error) {
	base := filepath.Join(f.userDir(userID), notebooksDir)
	stats := &models.CacheStatistics{}

	notebooks, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cache: statistics for %s: %w", userID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("cache: statistics: %w", errors.Join(apperr.ErrStorage, err))
	}
	for _, nb := range notebooks {
		if !nb.IsDir() {
			continue
		}
		stats.Notebooks++
		sections, err := os.ReadDir(filepath.Join(base, nb.Name()))
		if err != nil {
			continue
		}
		for _, sec := range sections {
			if !sec.IsDir() {
				continue
			}
			stats.Sections++
		}
	}

	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.TotalSizeBytes += info.Size()
		switch {
		case d.Name() == pageMetaFile:
			stats.Pages++
		case filepath.Base(filepath.Dir(p)) == assetsDir:
			stats.Assets++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache: statistics walk: %w", errors.Join(apperr.ErrStorage, err))
	}
	return stats, nil
}

// Metadata returns the user's cache metadata record.
func (f *FS) Metadata(userID string) (*models.CacheMetadata, error) {
	data, err := os.ReadFile(filepath.Join(f.userDir(userID), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cache: metadata for %s: %w", userID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("cache: read metadata: %w", errors.Join(apperr.ErrStorage, err))
	}
	var meta models.CacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("cache: decode metadata: %w", err)
	}
	return &meta, nil
}

// UpdateMetadata applies fn to the current metadata and persists the result.
func (f *FS) UpdateMetadata(userID string, fn func(*models.CacheMetadata)) error {
	meta, err := f.Metadata(userID)
	if err != nil {
		return err
	}
	fn(meta)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: encode metadata: %w", err)
	}
	return atomicWrite(filepath.Join(f.userDir(userID), metadataFile), data)
}

// DeleteUser removes the entire user subtree. Succeeds when already absent.
func (f *FS) DeleteUser(userID string) error {
	if err := os.RemoveAll(f.userDir(userID)); err != nil {
		return fmt.Errorf("cache: delete user %s: %w", userID, errors.Join(apperr.ErrStorage, err))
	}
	return nil
}

// CleanupOrphanedAssets removes files under the user's tree that no current
// page record references. Deletion errors are collected, not fatal.
func (f *FS) CleanupOrphanedAssets(userID string) (*CleanupReport, error) {
	pages, err := f.ListPages(userID, "", "")
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]struct{}, len(pages)*3)
	for i := range pages {
		p := &pages[i]
		if p.RawMarkupPath != "" {
			referenced[filepath.FromSlash(p.RawMarkupPath)] = struct{}{}
		}
		if p.TextPath != "" {
			referenced[filepath.FromSlash(p.TextPath)] = struct{}{}
		}
		for _, a := range p.Attachments {
			if a.LocalPath != "" {
				referenced[filepath.FromSlash(a.LocalPath)] = struct{}{}
			}
		}
	}

	userDir := f.userDir(userID)
	base := filepath.Join(userDir, notebooksDir)
	report := &CleanupReport{}

	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() == pageMetaFile {
			return err
		}
		rel, relErr := filepath.Rel(userDir, p)
		if relErr != nil {
			return nil
		}
		if _, ok := referenced[rel]; ok {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if rmErr := os.Remove(p); rmErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("remove %s: %v", rel, rmErr))
			return nil
		}
		report.FilesRemoved++
		report.BytesFreed += info.Size()
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return report, fmt.Errorf("cache: cleanup walk: %w", errors.Join(apperr.ErrStorage, walkErr))
	}
	return report, nil
}
