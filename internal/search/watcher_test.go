package search

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/models"
)

type watchEvent struct {
	kind   string
	userID string
	pageID string
}

func waitEvent(t *testing.T, events <-chan watchEvent, kind string) watchEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event within deadline", kind)
		}
	}
}

func TestWatch_KeepsIndexInStep(t *testing.T) {
	root := t.TempDir()
	store, err := cache.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)

	// Lay the page tree down before the watcher starts so every directory
	// is on the watch list from the beginning.
	rec := &models.PageRecord{
		PageID: "p1", Title: "Watched", NotebookID: "nb1", SectionID: "sec1",
		LastModified: time.Now().UTC(), Downloaded: true, Converted: true,
	}
	if err := store.StorePage("u1", rec, cache.Artifacts{Text: []byte("first draft")}); err != nil {
		t.Fatal(err)
	}

	events := make(chan watchEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, db, root, slog.New(slog.NewTextHandler(io.Discard, nil)), func(kind, userID, pageID string) {
			events <- watchEvent{kind: kind, userID: userID, pageID: pageID}
		})
	}()
	// Give the watcher a moment to register the tree.
	time.Sleep(100 * time.Millisecond)

	// An external rewrite of the text artifact re-indexes the page.
	if err := store.StorePage("u1", rec, cache.Artifacts{Text: []byte("second draft words")}); err != nil {
		t.Fatal(err)
	}
	ev := waitEvent(t, events, "indexed")
	if ev.userID != "u1" || ev.pageID != "p1" {
		t.Errorf("event = %+v", ev)
	}
	results, err := db.Search("u1", Query{Text: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].PageID != "p1" {
		t.Errorf("results = %+v", results)
	}

	// Removing the page directory de-indexes it.
	if err := store.DeletePage("u1", "p1"); err != nil {
		t.Fatal(err)
	}
	ev = waitEvent(t, events, "removed")
	if ev.pageID != "p1" {
		t.Errorf("event = %+v", ev)
	}
	ids, err := db.IndexedIDs("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("indexed after removal = %v", ids)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatch_RemovalDeindexesSanitizedID(t *testing.T) {
	root := t.TempDir()
	store, err := cache.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)

	// The id contains characters the store rewrites in directory names, so
	// the on-disk name and the indexed id differ.
	const pageID = "p 1!multi-page"
	rec := &models.PageRecord{
		PageID: pageID, Title: "Odd ID", NotebookID: "nb1", SectionID: "sec1",
		LastModified: time.Now().UTC(), Downloaded: true, Converted: true,
	}
	if err := store.StorePage("u1", rec, cache.Artifacts{Text: []byte("oddly named")}); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(NewDocument("u1", rec, "oddly named")); err != nil {
		t.Fatal(err)
	}

	events := make(chan watchEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, db, root, slog.New(slog.NewTextHandler(io.Discard, nil)), func(kind, userID, pageID string) {
			events <- watchEvent{kind: kind, userID: userID, pageID: pageID}
		})
	}()
	time.Sleep(100 * time.Millisecond)

	if err := store.DeletePage("u1", pageID); err != nil {
		t.Fatal(err)
	}
	ev := waitEvent(t, events, "removed")
	if ev.pageID != pageID {
		t.Errorf("removed id = %q, want %q", ev.pageID, pageID)
	}
	ids, err := db.IndexedIDs("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("indexed after removal = %v", ids)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
