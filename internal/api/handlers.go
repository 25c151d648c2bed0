package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/mirror"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/syncer"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *mirror.Service
	events *sse.Broker
}

// NewHandler creates a new Handler. events may be nil; sync reports are then
// not broadcast.
func NewHandler(svc *mirror.Service, events *sse.Broker) *Handler {
	return &Handler{svc: svc, events: events}
}

// userID extracts the required user query parameter.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

// parseStrategy validates a conflict strategy string; empty falls back to
// newer_wins.
func parseStrategy(raw string) (models.ConflictStrategy, bool) {
	if raw == "" {
		return models.NewerWins, true
	}
	s := models.ConflictStrategy(raw)
	switch s {
	case models.RemoteWins, models.LocalWins, models.NewerWins, models.UserPrompt, models.MergeAttempt:
		return s, true
	}
	return "", false
}

// InitCache handles POST /api/cache/init.
//
//	@Summary		Initialize a user's cache tree
//	@Tags			cache
//	@Accept			json
//	@Param			body	body	InitCacheRequest	true	"User to initialize"
//	@Success		201		"Cache created"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cache/init [post]
func (h *Handler) InitCache(w http.ResponseWriter, r *http.Request) {
	var req InitCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id is required"))
		return
	}
	if err := h.svc.InitializeCache(req.UserID); err != nil {
		writeErr(w, "init cache", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// DeleteCache handles DELETE /api/cache.
//
//	@Summary		Delete a user's cache tree and index entries
//	@Tags			cache
//	@Param			user	query	string	true	"User ID"
//	@Success		204		"Cache deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cache [delete]
func (h *Handler) DeleteCache(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'user' is required"))
		return
	}
	if err := h.svc.DeleteUserCache(user); err != nil {
		writeErr(w, "delete cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/stats.
//
//	@Summary		Cache statistics for a user
//	@Tags			cache
//	@Produce		json
//	@Param			user	query		string	true	"User ID"
//	@Success		200		{object}	models.CacheStatistics
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'user' is required"))
		return
	}
	stats, err := h.svc.Statistics(user)
	if err != nil {
		writeErr(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Metadata handles GET /api/metadata.
//
//	@Summary		Cache metadata record for a user
//	@Tags			cache
//	@Produce		json
//	@Param			user	query		string	true	"User ID"
//	@Success		200		{object}	models.CacheMetadata
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/metadata [get]
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'user' is required"))
		return
	}
	meta, err := h.svc.Metadata(user)
	if err != nil {
		writeErr(w, "metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// GetPage handles GET /api/pages/{pageID}.
//
//	@Summary		Get one cached page record
//	@Tags			cache
//	@Produce		json
//	@Param			pageID	path		string	true	"Page ID"
//	@Param			user	query		string	true	"User ID"
//	@Success		200		{object}	models.PageRecord
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{pageID} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	pageID := chi.URLParam(r, "pageID")
	if user == "" || pageID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user and pageID are required"))
		return
	}
	page, err := h.svc.GetPage(user, pageID)
	if err != nil {
		writeErr(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across cached pages
//	@Tags			search
//	@Produce		json
//	@Param			user		query		string	true	"User ID"
//	@Param			q			query		string	true	"Search query"
//	@Param			limit		query		int		false	"Max results"
//	@Param			notebook	query		string	false	"Restrict to notebook ID"
//	@Param			section		query		string	false	"Restrict to section ID"
//	@Param			title_only	query		bool	false	"Match titles only"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	q := r.URL.Query().Get("q")
	if user == "" || q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameters 'user' and 'q' are required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	titleOnly, _ := strconv.ParseBool(r.URL.Query().Get("title_only"))

	results, err := h.svc.Search(user, search.Query{
		Text:       q,
		Limit:      limit,
		NotebookID: r.URL.Query().Get("notebook"),
		SectionID:  r.URL.Query().Get("section"),
		TitleOnly:  titleOnly,
	})
	if err != nil {
		writeErr(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results, Total: len(results)})
}

// Changes handles GET /api/changes.
//
//	@Summary		Detect remote/local differences without mutating anything
//	@Tags			sync
//	@Produce		json
//	@Param			user		query		string	true	"User ID"
//	@Param			notebooks	query		string	false	"Comma-separated notebook IDs"
//	@Param			since		query		string	false	"RFC 3339 lower bound on remote modification time"
//	@Success		200			{object}	ChangesResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/changes [get]
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'user' is required"))
		return
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid 'since' timestamp"))
			return
		}
		since = t
	}
	scope := syncer.Scope{NotebookIDs: splitList(r.URL.Query().Get("notebooks"))}

	changes, err := h.svc.DetectChanges(r.Context(), user, scope, since)
	if err != nil {
		writeErr(w, "detect changes", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: changes, Total: len(changes)})
}

// Sync handles POST /api/sync.
//
//	@Summary		Run the detect, plan, execute sync pipeline
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	true	"Sync parameters"
//	@Success		200		{object}	models.SyncReport
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id is required"))
		return
	}
	strategy, ok := parseStrategy(req.Strategy)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown strategy "+strconv.Quote(req.Strategy)))
		return
	}
	var since time.Time
	if req.Since != "" {
		t, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid 'since' timestamp"))
			return
		}
		since = t
	}

	report, err := h.svc.ExecuteSync(r.Context(), req.UserID, syncer.Scope{NotebookIDs: req.Notebooks}, since, strategy, req.DryRun)
	if err != nil {
		writeErr(w, "sync", err)
		return
	}
	if h.events != nil && !report.DryRun {
		h.events.PublishSyncReport(report)
	}
	writeJSON(w, http.StatusOK, report)
}

// Conflicts handles GET /api/conflicts.
//
//	@Summary		List conflicts awaiting manual resolution
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ConflictsResponse
//	@Security		BearerAuth
//	@Router			/conflicts [get]
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	pending := h.svc.PendingConflicts()
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: pending, Total: len(pending)})
}

// ResolveConflict handles POST /api/conflicts/resolve.
//
//	@Summary		Resolve one pending conflict with an explicit strategy
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ResolveConflictRequest	true	"Conflict to resolve"
//	@Success		200		{object}	models.SyncReport
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/conflicts/resolve [post]
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.UserID == "" || req.PageID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id and page_id are required"))
		return
	}
	strategy, ok := parseStrategy(req.Strategy)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown strategy "+strconv.Quote(req.Strategy)))
		return
	}

	report, err := h.svc.ResolveConflict(r.Context(), req.UserID, req.PageID, strategy)
	if err != nil {
		writeErr(w, "resolve conflict", err)
		return
	}
	if h.events != nil {
		h.events.PublishSyncReport(report)
	}
	writeJSON(w, http.StatusOK, report)
}

// StartIndex handles POST /api/index.
//
//	@Summary		Start a background bulk indexing run
//	@Tags			indexing
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IndexRequest	true	"Run parameters"
//	@Success		202		{object}	IndexStartedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index [post]
func (h *Handler) StartIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id is required"))
		return
	}

	ctl, err := h.svc.IndexAll(r.Context(), req.UserID, req.Resume, req.Force, req.Notebooks)
	if err != nil {
		writeErr(w, "start indexing", err)
		return
	}
	p := ctl.Progress()
	writeJSON(w, http.StatusAccepted, IndexStartedResponse{
		OperationID: p.OperationID,
		Status:      string(p.Status),
	})
}

// IndexStatus handles GET /api/index/status.
//
//	@Summary		Progress of the active bulk indexing run
//	@Tags			indexing
//	@Produce		json
//	@Success		200	{object}	IndexStatusResponse
//	@Security		BearerAuth
//	@Router			/index/status [get]
func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	progress, active := h.svc.IndexingStatus()
	writeJSON(w, http.StatusOK, IndexStatusResponse{Active: active, Progress: progress})
}

// PauseIndex handles POST /api/index/pause.
//
//	@Summary		Pause the active bulk run before its next unit of work
//	@Tags			indexing
//	@Success		204	"Paused"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/pause [post]
func (h *Handler) PauseIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.PauseIndexing(); err != nil {
		writeErr(w, "pause indexing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeIndex handles POST /api/index/resume.
//
//	@Summary		Resume a paused bulk run
//	@Tags			indexing
//	@Success		204	"Resumed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/resume [post]
func (h *Handler) ResumeIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResumeIndexing(); err != nil {
		writeErr(w, "resume indexing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelIndex handles POST /api/index/cancel.
//
//	@Summary		Cancel the active bulk run cooperatively
//	@Tags			indexing
//	@Success		204	"Cancelled"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/cancel [post]
func (h *Handler) CancelIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelIndexing(); err != nil {
		writeErr(w, "cancel indexing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup handles POST /api/cleanup.
//
//	@Summary		Remove orphaned asset files from the cache
//	@Tags			cache
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InitCacheRequest	true	"User to clean up"
//	@Success		200		{object}	cache.CleanupReport
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req InitCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id is required"))
		return
	}
	report, err := h.svc.CleanupOrphanedAssets(req.UserID)
	if err != nil {
		writeErr(w, "cleanup", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Rebuild handles POST /api/rebuild.
//
//	@Summary		Rebuild the search index from cached artifacts
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InitCacheRequest	true	"User to rebuild"
//	@Success		200		{object}	search.RebuildReport
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req InitCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("user_id is required"))
		return
	}
	report, err := h.svc.RebuildIndex(req.UserID)
	if err != nil {
		writeErr(w, "rebuild index", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// splitList parses a comma-separated query value, dropping empty entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
