// Package testutil provides shared test helpers for setting up cache trees,
// search indexes, checkpoint stores, and a fake remote content store.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/checkpoint"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/transform"
)

// TestIndex creates a temporary SQLite search index that is automatically
// cleaned up.
func TestIndex(t *testing.T) *search.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "othala-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := search.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCache creates a temporary cache tree with a cache.Store.
func TestCache(t *testing.T) (string, *cache.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := cache.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// TestCheckpoints creates a temporary checkpoint store.
func TestCheckpoints(t *testing.T) *checkpoint.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "othala-cp-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := checkpoint.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// FakeRemote is an in-memory remote.Client. Content maps page id to raw
// markup; FailPages lists page ids whose content fetch fails.
type FakeRemote struct {
	mu        sync.Mutex
	Notebooks []models.Notebook
	Sections  map[string][]models.Section // notebook id → sections
	Pages     map[string][]models.PageRef // section id → pages
	Content   map[string][]byte           // page id → raw markup
	FailPages map[string]bool

	FetchCalls int
}

// NewFakeRemote creates an empty fake remote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		Sections:  make(map[string][]models.Section),
		Pages:     make(map[string][]models.PageRef),
		Content:   make(map[string][]byte),
		FailPages: make(map[string]bool),
	}
}

// AddPage registers a full notebook → section → page path with content.
func (f *FakeRemote) AddPage(notebookID, sectionID, pageID, title string, modified time.Time, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	found := false
	for _, nb := range f.Notebooks {
		if nb.ID == notebookID {
			found = true
			break
		}
	}
	if !found {
		f.Notebooks = append(f.Notebooks, models.Notebook{ID: notebookID, Name: "Notebook " + notebookID})
	}

	found = false
	for _, sec := range f.Sections[notebookID] {
		if sec.ID == sectionID {
			found = true
			break
		}
	}
	if !found {
		f.Sections[notebookID] = append(f.Sections[notebookID], models.Section{
			ID: sectionID, NotebookID: notebookID, Name: "Section " + sectionID,
		})
	}

	f.Pages[sectionID] = append(f.Pages[sectionID], models.PageRef{
		ID: pageID, SectionID: sectionID, Title: title, LastModified: modified,
	})
	f.Content[pageID] = content
}

// RemovePage drops a page from its section listing and content map, so the
// next change detection sees it as locally deleted remote content.
func (f *FakeRemote) RemovePage(sectionID, pageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := f.Pages[sectionID]
	for i, ref := range refs {
		if ref.ID == pageID {
			f.Pages[sectionID] = append(refs[:i:i], refs[i+1:]...)
			break
		}
	}
	delete(f.Content, pageID)
}

// Touch bumps a page's remote modification time and content.
func (f *FakeRemote) Touch(sectionID, pageID string, modified time.Time, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := f.Pages[sectionID]
	for i := range refs {
		if refs[i].ID == pageID {
			refs[i].LastModified = modified
			break
		}
	}
	f.Content[pageID] = content
}

// ListNotebooks implements remote.Client.
func (f *FakeRemote) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notebook(nil), f.Notebooks...), nil
}

// ListSections implements remote.Client.
func (f *FakeRemote) ListSections(ctx context.Context, notebookID string) ([]models.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Section(nil), f.Sections[notebookID]...), nil
}

// ListPages implements remote.Client.
func (f *FakeRemote) ListPages(ctx context.Context, sectionID string) ([]models.PageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PageRef(nil), f.Pages[sectionID]...), nil
}

// FetchPageContent implements remote.Client.
func (f *FakeRemote) FetchPageContent(ctx context.Context, pageID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.FailPages[pageID] {
		return nil, fmt.Errorf("testutil: fetch %s: %w", pageID, apperr.ErrRemoteFetch)
	}
	content, ok := f.Content[pageID]
	if !ok {
		return nil, fmt.Errorf("testutil: page %s: %w", pageID, apperr.ErrNotFound)
	}
	return append([]byte(nil), content...), nil
}

// NoopDownloader satisfies transform.Downloader without touching the
// network; assets come back marked complete.
type NoopDownloader struct{}

// DownloadAll implements transform.Downloader.
func (NoopDownloader) DownloadAll(ctx context.Context, assets []models.AttachmentRef, destDir string) ([]models.AttachmentRef, transform.DownloadReport, error) {
	out := make([]models.AttachmentRef, len(assets))
	for i, a := range assets {
		a.State = models.DownloadComplete
		out[i] = a
	}
	return out, transform.DownloadReport{Succeeded: len(assets)}, nil
}
