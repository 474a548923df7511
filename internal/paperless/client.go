// Package paperless is a minimal client for the Paperless-ngx REST API,
// covering document listings and original-file downloads.
package paperless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrAuth marks requests rejected by the API because of a missing or invalid
// token.
var ErrAuth = errors.New("paperless: authentication rejected")

// Document is the subset of the Paperless-ngx document serializer the
// forwarder needs.
type Document struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	OriginalFileName string `json:"original_file_name"`
}

// File is a downloaded document body together with the name and content type
// the server reported for it.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Filter narrows document listings. Zero values leave the corresponding
// dimension unfiltered.
type Filter struct {
	TagID          int64
	DocumentTypeID int64
	LookbackDays   int
}

// Client talks to a single Paperless-ngx instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New returns a client for the Paperless-ngx instance at baseURL. Redirects
// are not followed; a base URL that redirects is a configuration problem and
// should fail loudly rather than be retried against another origin.
func New(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

type documentPage struct {
	Count   int        `json:"count"`
	Next    string     `json:"next"`
	Results []Document `json:"results"`
}

// ListDocuments returns every document matching the filter, following
// pagination until the listing is exhausted.
func (c *Client) ListDocuments(ctx context.Context, f Filter) ([]Document, error) {
	q := url.Values{}
	q.Set("sort", "created")
	q.Set("reverse", "1")
	q.Set("page_size", "100")
	if f.LookbackDays > 0 {
		q.Set("query", fmt.Sprintf("added:[-%d day to now]", f.LookbackDays))
	}
	if f.TagID > 0 {
		q.Set("tags__id__all", strconv.FormatInt(f.TagID, 10))
	}
	if f.DocumentTypeID > 0 {
		q.Set("document_type__id__in", strconv.FormatInt(f.DocumentTypeID, 10))
	}

	next := c.baseURL + "/api/documents/?" + q.Encode()
	var docs []Document
	for next != "" {
		resp, err := c.get(ctx, next)
		if err != nil {
			return nil, err
		}
		var page documentPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode document listing: %w", err)
		}
		docs = append(docs, page.Results...)
		if len(page.Results) == 0 {
			break
		}
		next = page.Next
	}
	c.logger.Debug("listed documents", "count", len(docs))
	return docs, nil
}

// DownloadDocument fetches the original file of the given document.
func (c *Client) DownloadDocument(ctx context.Context, id int64) (*File, error) {
	resp, err := c.get(ctx, fmt.Sprintf("%s/api/documents/%d/download/", c.baseURL, id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document %d: %w", id, err)
	}

	file := &File{
		Name:        filenameFromHeader(resp.Header.Get("Content-Disposition")),
		ContentType: contentTypeFromHeader(resp.Header.Get("Content-Type")),
		Content:     content,
	}
	c.logger.Debug("downloaded document", "id", id, "bytes", len(content), "filename", file.Name)
	return file, nil
}

// get issues an authenticated GET and returns the response if the status is
// 200. Any other status is turned into an error, with 401 and 403 wrapping
// ErrAuth.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %s: %w", rawURL, resp.Status, ErrAuth)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %s: %s", rawURL, resp.Status, strings.TrimSpace(string(snippet)))
	}
}

// filenameFromHeader extracts the filename parameter from a
// Content-Disposition header. It returns "" when the header is absent or
// carries no usable name.
func filenameFromHeader(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	// Strip any path the server may have left in.
	return path.Base(name)
}

func contentTypeFromHeader(header string) string {
	if header == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}
