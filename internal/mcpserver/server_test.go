package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/mirror"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/syncer"
	"github.com/starford/othala/internal/testutil"
	"github.com/starford/othala/internal/transform"
)

func testServerWithStore(t *testing.T, remote *testutil.FakeRemote) (*Server, *cache.FS, *search.DB) {
	t.Helper()
	_, store := testutil.TestCache(t)
	db := testutil.TestIndex(t)
	cps := testutil.TestCheckpoints(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	html := transform.NewHTML()
	ix := indexer.New(remote, store, db, indexer.Pipeline{
		Converter:  html,
		Assets:     html,
		Links:      html,
		Downloader: testutil.NoopDownloader{},
	}, logger, indexer.Config{Concurrency: 2})
	sy := syncer.New(remote, store, db, ix, logger, 5*time.Minute)
	svc := mirror.NewService(store, db, cps, ix, sy, logger, 30*time.Minute)
	if err := svc.InitializeCache("u1"); err != nil {
		t.Fatal(err)
	}
	return New(svc), store, db
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	return tc.Text
}

func seedPage(t *testing.T, store *cache.FS, db *search.DB, pageID, title, text string) {
	t.Helper()
	rec := &models.PageRecord{
		PageID: pageID, Title: title, NotebookID: "nb1", SectionID: "sec1",
		LastModified: time.Now().UTC(), Downloaded: true, Converted: true,
	}
	if err := store.StorePage("u1", rec, cache.Artifacts{Text: []byte(text)}); err != nil {
		t.Fatal(err)
	}
	if err := db.IndexPage(search.NewDocument("u1", rec, text)); err != nil {
		t.Fatal(err)
	}
}

func TestSearchPagesTool(t *testing.T) {
	s, store, db := testServerWithStore(t, testutil.NewFakeRemote())
	seedPage(t, store, db, "p1", "Budget", "annual budget figures")

	res, err := s.searchPages(context.Background(), toolRequest("search_pages", map[string]any{
		"user": "u1", "query": "budget",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool errored: %s", resultText(t, res))
	}
	var results []search.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].PageID != "p1" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchPagesTool_MissingQuery(t *testing.T) {
	s, _, _ := testServerWithStore(t, testutil.NewFakeRemote())
	res, err := s.searchPages(context.Background(), toolRequest("search_pages", map[string]any{
		"user": "u1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing query should produce a tool error")
	}
}

func TestReadPageTool(t *testing.T) {
	s, store, db := testServerWithStore(t, testutil.NewFakeRemote())
	seedPage(t, store, db, "p1", "Readable", "full page body")

	res, err := s.readPage(context.Background(), toolRequest("read_page", map[string]any{
		"user": "u1", "page": "p1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); got != "full page body" {
		t.Errorf("text = %q", got)
	}

	res, err = s.readPage(context.Background(), toolRequest("read_page", map[string]any{
		"user": "u1", "page": "ghost",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing page should produce a tool error")
	}
}

func TestCacheStatsTool(t *testing.T) {
	s, store, db := testServerWithStore(t, testutil.NewFakeRemote())
	seedPage(t, store, db, "p1", "One", "body")

	res, err := s.cacheStats(context.Background(), toolRequest("cache_stats", map[string]any{
		"user": "u1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	var stats models.CacheStatistics
	if err := json.Unmarshal([]byte(resultText(t, res)), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDetectChangesTool(t *testing.T) {
	remote := testutil.NewFakeRemote()
	s, _, _ := testServerWithStore(t, remote)

	res, err := s.detectChanges(context.Background(), toolRequest("detect_changes", map[string]any{
		"user": "u1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); got != "no changes detected" {
		t.Errorf("text = %q", got)
	}

	remote.AddPage("nb1", "sec1", "p1", "Fresh", time.Now().UTC(), []byte("<p>x</p>"))
	res, err = s.detectChanges(context.Background(), toolRequest("detect_changes", map[string]any{
		"user": "u1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	var changes []models.ContentChange
	if err := json.Unmarshal([]byte(resultText(t, res)), &changes); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Type != models.ChangeAdded {
		t.Errorf("changes = %+v", changes)
	}
}

func TestRunSyncTool_DryRun(t *testing.T) {
	remote := testutil.NewFakeRemote()
	remote.AddPage("nb1", "sec1", "p1", "Fresh", time.Now().UTC(), []byte("<p>x</p>"))
	s, _, _ := testServerWithStore(t, remote)

	res, err := s.runSync(context.Background(), toolRequest("run_sync", map[string]any{
		"user": "u1", "dry_run": true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	var report models.SyncReport
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatal(err)
	}
	if !report.DryRun || report.Created != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestIndexingStatusTool_NoRun(t *testing.T) {
	s, _, _ := testServerWithStore(t, testutil.NewFakeRemote())
	res, err := s.indexingStatus(context.Background(), toolRequest("indexing_status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); !strings.Contains(got, "no indexing run") {
		t.Errorf("text = %q", got)
	}
}

func TestPendingConflictsTool_Empty(t *testing.T) {
	s, _, _ := testServerWithStore(t, testutil.NewFakeRemote())
	res, err := s.pendingConflicts(context.Background(), toolRequest("pending_conflicts", nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); got != "no pending conflicts" {
		t.Errorf("text = %q", got)
	}
}
