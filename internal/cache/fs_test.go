package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	f, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func testRecord(pageID string) *models.PageRecord {
	return &models.PageRecord{
		PageID:       pageID,
		Title:        "Title " + pageID,
		NotebookID:   "nb1",
		SectionID:    "sec1",
		LastModified: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Downloaded:   true,
		Converted:    true,
	}
}

func TestInitializeUser_Idempotent(t *testing.T) {
	f := testFS(t)
	if err := f.InitializeUser("u1"); err != nil {
		t.Fatal(err)
	}
	if !f.UserExists("u1") {
		t.Fatal("user should exist after init")
	}
	meta, err := f.Metadata("u1")
	if err != nil {
		t.Fatal(err)
	}
	created := meta.CreatedAt

	if err := f.InitializeUser("u1"); err != nil {
		t.Fatalf("second init should succeed: %v", err)
	}
	meta, err = f.Metadata("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !meta.CreatedAt.Equal(created) {
		t.Error("re-init must not overwrite existing metadata")
	}
}

func TestInitializeUser_EmptyID(t *testing.T) {
	f := testFS(t)
	err := f.InitializeUser("")
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStorePage_RoundTrip(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{RawMarkup: []byte("<p>hi</p>"), Text: []byte("hi")}); err != nil {
		t.Fatal(err)
	}
	if rec.RawMarkupPath == "" || rec.TextPath == "" {
		t.Fatal("artifact paths should be recorded")
	}

	got, err := f.GetPage("u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != rec.Title || got.NotebookID != "nb1" || got.SectionID != "sec1" {
		t.Errorf("record mismatch: %+v", got)
	}
	text, err := f.ReadText("u1", got)
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "hi" {
		t.Errorf("text = %q, want %q", text, "hi")
	}
}

func TestStorePage_MissingParentIDs(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	rec.SectionID = ""
	err := f.StorePage("u1", rec, Artifacts{})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStorePage_PartialArtifactUpdate(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{RawMarkup: []byte("<p>v1</p>"), Text: []byte("v1")}); err != nil {
		t.Fatal(err)
	}
	// Nil text leaves the existing artifact untouched.
	if err := f.StorePage("u1", rec, Artifacts{RawMarkup: []byte("<p>v2</p>")}); err != nil {
		t.Fatal(err)
	}
	got, err := f.GetPage("u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	text, err := f.ReadText("u1", got)
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "v1" {
		t.Errorf("text = %q, want untouched %q", text, "v1")
	}
}

func TestStorePage_SectionMoveKeepsOneRecord(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{RawMarkup: []byte("<p>v1</p>"), Text: []byte("v1")}); err != nil {
		t.Fatal(err)
	}

	// The page moves to another section remotely; re-storing it must not
	// leave the old record behind.
	moved := testRecord("p1")
	moved.SectionID = "sec2"
	if err := f.StorePage("u1", moved, Artifacts{RawMarkup: []byte("<p>v2</p>"), Text: []byte("v2")}); err != nil {
		t.Fatal(err)
	}

	all, err := f.ListPages("u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("pages after move = %d, want 1", len(all))
	}
	if all[0].SectionID != "sec2" {
		t.Errorf("section = %q, want sec2", all[0].SectionID)
	}

	got, err := f.GetPage("u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.SectionID != "sec2" {
		t.Errorf("GetPage section = %q, want sec2", got.SectionID)
	}
	text, err := f.ReadText("u1", got)
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "v2" {
		t.Errorf("text = %q, want %q", text, "v2")
	}

	stats, err := f.Statistics("u1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 1 {
		t.Errorf("stats pages = %d, want 1", stats.Pages)
	}
}

func TestStorePage_NotebookMoveKeepsOneRecord(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{Text: []byte("t")}); err != nil {
		t.Fatal(err)
	}
	moved := testRecord("p1")
	moved.NotebookID = "nb2"
	moved.SectionID = "sec9"
	if err := f.StorePage("u1", moved, Artifacts{Text: []byte("t")}); err != nil {
		t.Fatal(err)
	}
	all, err := f.ListPages("u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].NotebookID != "nb2" {
		t.Fatalf("pages after move = %+v, want single nb2 record", all)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	f := testFS(t)
	if err := f.InitializeUser("u1"); err != nil {
		t.Fatal(err)
	}
	_, err := f.GetPage("u1", "absent")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePage_AbsentSucceeds(t *testing.T) {
	f := testFS(t)
	if err := f.InitializeUser("u1"); err != nil {
		t.Fatal(err)
	}
	if err := f.DeletePage("u1", "never-stored"); err != nil {
		t.Fatalf("deleting an absent page should succeed: %v", err)
	}
}

func TestDeletePage_RemovesArtifacts(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{RawMarkup: []byte("x"), Text: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if err := f.DeletePage("u1", "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.GetPage("u1", "p1"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if f.TextArtifactExists("u1", rec) {
		t.Error("text artifact should be gone after delete")
	}
}

func TestListPages_ScopeFilters(t *testing.T) {
	f := testFS(t)
	a := testRecord("p1")
	b := testRecord("p2")
	b.SectionID = "sec2"
	c := testRecord("p3")
	c.NotebookID = "nb2"
	for _, rec := range []*models.PageRecord{a, b, c} {
		if err := f.StorePage("u1", rec, Artifacts{Text: []byte("t")}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := f.ListPages("u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all pages = %d, want 3", len(all))
	}

	nb1, err := f.ListPages("u1", "nb1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(nb1) != 2 {
		t.Fatalf("nb1 pages = %d, want 2", len(nb1))
	}

	sec2, err := f.ListPages("u1", "nb1", "sec2")
	if err != nil {
		t.Fatal(err)
	}
	if len(sec2) != 1 || sec2[0].PageID != "p2" {
		t.Fatalf("sec2 pages = %+v, want just p2", sec2)
	}
}

func TestSanitizeKey_PathHostileIDs(t *testing.T) {
	f := testFS(t)
	rec := testRecord("../../evil")
	if err := f.StorePage("u1", rec, Artifacts{Text: []byte("t")}); err != nil {
		t.Fatal(err)
	}
	// The page must land under the cache root, not outside it.
	got, err := f.GetPage("u1", "../../evil")
	if err != nil {
		t.Fatal(err)
	}
	if got.PageID != "../../evil" {
		t.Errorf("page id round-trip failed: %q", got.PageID)
	}
	entries, err := os.ReadDir(filepath.Dir(f.Root()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() == "evil" {
			t.Fatal("hostile id escaped the cache root")
		}
	}
}

func TestSearchStoredPages(t *testing.T) {
	f := testFS(t)
	a := testRecord("p1")
	a.Title = "Gardening Notes"
	if err := f.StorePage("u1", a, Artifacts{Text: []byte("tomato and basil care")}); err != nil {
		t.Fatal(err)
	}
	b := testRecord("p2")
	b.Title = "Travel"
	if err := f.StorePage("u1", b, Artifacts{Text: []byte("packing list")}); err != nil {
		t.Fatal(err)
	}

	byTitle, err := f.SearchStoredPages("u1", "gardening")
	if err != nil {
		t.Fatal(err)
	}
	if len(byTitle) != 1 || byTitle[0].PageID != "p1" {
		t.Fatalf("title match = %+v, want p1", byTitle)
	}

	byText, err := f.SearchStoredPages("u1", "BASIL")
	if err != nil {
		t.Fatal(err)
	}
	if len(byText) != 1 || byText[0].PageID != "p1" {
		t.Fatalf("text match = %+v, want p1", byText)
	}

	if _, err := f.SearchStoredPages("u1", ""); !apperr.IsValidation(err) {
		t.Fatalf("empty substring should be a validation error, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	f := testFS(t)
	a := testRecord("p1")
	if err := f.StorePage("u1", a, Artifacts{RawMarkup: []byte("<p>a</p>"), Text: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	b := testRecord("p2")
	b.NotebookID = "nb2"
	if err := f.StorePage("u1", b, Artifacts{Text: []byte("b")}); err != nil {
		t.Fatal(err)
	}
	// One asset file.
	assetPath := filepath.Join(f.AssetDir("u1", a), "img.png")
	if err := os.MkdirAll(filepath.Dir(assetPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(assetPath, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := f.Statistics("u1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notebooks != 2 || stats.Sections != 2 || stats.Pages != 2 || stats.Assets != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalSizeBytes == 0 {
		t.Error("total size should be non-zero")
	}
}

func TestStatistics_UnknownUser(t *testing.T) {
	f := testFS(t)
	_, err := f.Statistics("ghost")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCleanupOrphanedAssets(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{RawMarkup: []byte("<p>a</p>"), Text: []byte("a")}); err != nil {
		t.Fatal(err)
	}

	assetDir := f.AssetDir("u1", rec)
	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		t.Fatal(err)
	}
	kept := filepath.Join(assetDir, "kept.png")
	orphan := filepath.Join(assetDir, "orphan.png")
	if err := os.WriteFile(kept, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(orphan, []byte("stale bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.Attachments = []models.AttachmentRef{{
		Type: "image", SourceURL: "http://x/kept.png", LocalPath: kept, State: models.DownloadComplete,
	}}
	// StorePage normalises the absolute attachment path to user-relative.
	if err := f.StorePage("u1", rec, Artifacts{}); err != nil {
		t.Fatal(err)
	}

	report, err := f.CleanupOrphanedAssets("u1")
	if err != nil {
		t.Fatal(err)
	}
	if report.FilesRemoved != 1 {
		t.Fatalf("files removed = %d, want 1", report.FilesRemoved)
	}
	if report.BytesFreed != int64(len("stale bytes")) {
		t.Errorf("bytes freed = %d", report.BytesFreed)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Error("referenced asset must survive cleanup")
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan asset should be removed")
	}

	// Page artifacts themselves are always referenced.
	if _, err := f.GetPage("u1", "p1"); err != nil {
		t.Errorf("page record must survive cleanup: %v", err)
	}
	if !f.TextArtifactExists("u1", rec) {
		t.Error("text artifact must survive cleanup")
	}
}

func TestUpdateMetadata(t *testing.T) {
	f := testFS(t)
	if err := f.InitializeUser("u1"); err != nil {
		t.Fatal(err)
	}
	err := f.UpdateMetadata("u1", func(m *models.CacheMetadata) {
		m.TotalPages = 7
		m.LastFullSync = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatal(err)
	}
	meta, err := f.Metadata("u1")
	if err != nil {
		t.Fatal(err)
	}
	if meta.TotalPages != 7 || meta.LastFullSync.IsZero() {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestDeleteUser(t *testing.T) {
	f := testFS(t)
	rec := testRecord("p1")
	if err := f.StorePage("u1", rec, Artifacts{Text: []byte("t")}); err != nil {
		t.Fatal(err)
	}
	if err := f.DeleteUser("u1"); err != nil {
		t.Fatal(err)
	}
	if f.UserExists("u1") {
		t.Error("user should be gone")
	}
	if err := f.DeleteUser("u1"); err != nil {
		t.Errorf("deleting an absent user should succeed: %v", err)
	}
}
