package search

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "othala-search-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func doc(userID, pageID, notebookID, sectionID, title, body string) Document {
	return Document{
		UserID:     userID,
		PageID:     pageID,
		NotebookID: notebookID,
		SectionID:  sectionID,
		Title:      title,
		Body:       body,
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestIndexAndSearch(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "Gardening", "tomato and basil care")); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(doc("u1", "p2", "nb1", "s1", "Travel", "packing list for rome")); err != nil {
		t.Fatal(err)
	}

	results, err := db.Search("u1", Query{Text: "tomato"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].PageID != "p1" {
		t.Fatalf("results = %+v, want just p1", results)
	}
}

func TestIndexPage_UpsertIsIdempotent(t *testing.T) {
	db := testDB(t)
	d := doc("u1", "p1", "nb1", "s1", "Old Title", "old body")
	if err := db.IndexPage(d); err != nil {
		t.Fatal(err)
	}
	d.Title = "New Title"
	d.Body = "new body"
	if err := db.IndexPage(d); err != nil {
		t.Fatal(err)
	}

	stats, err := db.Stats("u1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 1 {
		t.Fatalf("pages = %d, want 1 after re-index", stats.Pages)
	}
	results, err := db.Search("u1", Query{Text: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Title != "New Title" {
		t.Fatalf("results = %+v, want updated title", results)
	}
	if old, _ := db.Search("u1", Query{Text: "old"}); len(old) != 0 {
		t.Errorf("stale content still indexed: %+v", old)
	}
}

func TestIndexPage_Validation(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "", "nb", "s", "t", "b")); !apperr.IsValidation(err) {
		t.Errorf("empty page id should fail validation, got %v", err)
	}
	if err := db.IndexPage(doc("", "p1", "nb", "s", "t", "b")); !apperr.IsValidation(err) {
		t.Errorf("empty user id should fail validation, got %v", err)
	}
}

func TestSearch_ScopeFilters(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "Recipes", "pasta sauce")); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(doc("u1", "p2", "nb2", "s2", "Recipes Two", "pasta salad")); err != nil {
		t.Fatal(err)
	}

	nb1, err := db.Search("u1", Query{Text: "pasta", NotebookID: "nb1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nb1) != 1 || nb1[0].PageID != "p1" {
		t.Fatalf("notebook filter results = %+v", nb1)
	}

	s2, err := db.Search("u1", Query{Text: "pasta", SectionID: "s2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(s2) != 1 || s2[0].PageID != "p2" {
		t.Fatalf("section filter results = %+v", s2)
	}
}

func TestSearch_TitleOnly(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "Kubernetes", "notes about clusters")); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(doc("u1", "p2", "nb1", "s1", "Journal", "kubernetes upgrade went fine")); err != nil {
		t.Fatal(err)
	}

	results, err := db.Search("u1", Query{Text: "kubernetes", TitleOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].PageID != "p1" {
		t.Fatalf("title-only results = %+v, want just p1", results)
	}
}

func TestSearch_UserIsolation(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "Secret", "u1 private data")); err != nil {
		t.Fatal(err)
	}
	results, err := db.Search("u2", Query{Text: "private"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("u2 must not see u1's pages: %+v", results)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	db := testDB(t)
	if _, err := db.Search("u1", Query{Text: "   "}); !apperr.IsValidation(err) {
		t.Fatalf("blank query should fail validation, got %v", err)
	}
}

func TestDeletePage(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "Doomed", "ephemeral")); err != nil {
		t.Fatal(err)
	}
	if err := db.DeletePage("u1", "p1"); err != nil {
		t.Fatal(err)
	}
	results, err := db.Search("u1", Query{Text: "ephemeral"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("deleted page still searchable: %+v", results)
	}
	// Absent entries delete cleanly.
	if err := db.DeletePage("u1", "p1"); err != nil {
		t.Errorf("double delete should succeed: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "A", "alpha")); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(doc("u2", "p1", "nb1", "s1", "B", "alpha")); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteUser("u1"); err != nil {
		t.Fatal(err)
	}
	if results, _ := db.Search("u1", Query{Text: "alpha"}); len(results) != 0 {
		t.Errorf("u1 entries should be gone: %+v", results)
	}
	if results, _ := db.Search("u2", Query{Text: "alpha"}); len(results) != 1 {
		t.Errorf("u2 entries must survive: %+v", results)
	}
}

func TestIndexedIDs(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		if err := db.IndexPage(doc("u1", id, "nb1", "s1", id, "body")); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := db.IndexedIDs("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %v, want 3", ids)
	}
	if _, ok := ids["p2"]; !ok {
		t.Error("p2 missing from indexed set")
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)
	if err := db.IndexPage(doc("u1", "p1", "nb1", "s1", "A", "a")); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(doc("u1", "p2", "nb2", "s2", "B", "b")); err != nil {
		t.Fatal(err)
	}
	stats, err := db.Stats("u1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 2 || stats.Notebooks != 2 || stats.Sections != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.IndexSizeBytes == 0 {
		t.Error("index size should be non-zero")
	}
}

func TestNewDocument_FoldsAnchorsAndFilenames(t *testing.T) {
	rec := &models.PageRecord{
		PageID:     "p1",
		Title:      "Links",
		NotebookID: "nb1",
		SectionID:  "s1",
		Links: []models.PageLink{
			{Anchor: "quarterly report", TargetURL: "http://x/a"},
		},
		Attachments: []models.AttachmentRef{
			{LocalPath: "notebooks/nb1/s1/p1/assets/diagram.png"},
		},
	}
	d := NewDocument("u1", rec, "main body")
	for _, want := range []string{"main body", "quarterly report", "diagram.png"} {
		if !strings.Contains(d.Body, want) {
			t.Errorf("body missing %q: %q", want, d.Body)
		}
	}
}
