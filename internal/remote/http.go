package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// maxContentBytes caps a single page content response. Remote pages are
// documents, not blobs; anything larger is a transport fault.
const maxContentBytes = 32 << 20

// HTTPClient talks to the remote content store over its REST API with
// Bearer token auth.
type HTTPClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a remote client. httpc may be nil; a client with a
// 30 second timeout is used then.
func NewHTTPClient(baseURL, token string, httpc *http.Client) *HTTPClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   httpc,
	}
}

// ListNotebooks returns the user's notebooks.
func (c *HTTPClient) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	var out []models.Notebook
	if err := c.getJSON(ctx, "/notebooks", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSections returns the sections of one notebook.
func (c *HTTPClient) ListSections(ctx context.Context, notebookID string) ([]models.Section, error) {
	var out []models.Section
	if err := c.getJSON(ctx, "/notebooks/"+url.PathEscape(notebookID)+"/sections", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPages returns the page listing of one section. Content is not
// included; fetch it per page.
func (c *HTTPClient) ListPages(ctx context.Context, sectionID string) ([]models.PageRef, error) {
	var out []models.PageRef
	if err := c.getJSON(ctx, "/sections/"+url.PathEscape(sectionID)+"/pages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchPageContent returns the page's raw markup.
func (c *HTTPClient) FetchPageContent(ctx context.Context, pageID string) ([]byte, error) {
	resp, err := c.do(ctx, "/pages/"+url.PathEscape(pageID)+"/content")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, fmt.Errorf("remote: read page %s content: %w", pageID, errors.Join(apperr.ErrRemoteFetch, err))
	}
	return data, nil
}

// getJSON fetches path and decodes the JSON body into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s: %w", path, errors.Join(apperr.ErrRemoteFetch, err))
	}
	return nil
}

// do issues an authenticated GET and classifies non-2xx statuses: 404 maps
// to apperr.ErrNotFound, everything else to apperr.ErrRemoteFetch. The
// caller owns the response body on success.
func (c *HTTPClient) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request %s: %w", path, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: get %s: %w", path, errors.Join(apperr.ErrRemoteFetch, err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("remote: %s: %w", path, apperr.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("remote: %s returned %d: %s: %w",
			path, resp.StatusCode, strings.TrimSpace(string(body)), apperr.ErrRemoteFetch)
	}
	return resp, nil
}
