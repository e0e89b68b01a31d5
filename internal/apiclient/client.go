// Package apiclient talks JSON (and multipart) to the platform backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
)

// Client is a thin REST client bound to one base URL.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a client for baseURL (e.g. http://localhost:4000/api).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Request describes one call. Body is JSON-encoded unless it is a
// *MultipartBody.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Field    string
	FileName string
	Content  io.Reader
}

// MultipartBody is a form with plain fields and files.
type MultipartBody struct {
	Fields map[string]string
	Files  []FilePart
}

// Do performs req and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
	}

	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", req.Method), zap.String("path", req.Path), zap.Error(err))
		return &NetworkError{Op: req.Method + " " + req.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "read " + req.Path, Err: err}
	}
	c.log.Debug("request done",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw), Body: raw}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &NetworkError{Op: "decode " + req.Path, Err: err}
	}
	return nil
}

func encodeBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case *MultipartBody:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, val := range b.Fields {
			if err := w.WriteField(k, val); err != nil {
				return nil, "", err
			}
		}
		for _, f := range b.Files {
			part, err := w.CreateFormFile(f.Field, f.FileName)
			if err != nil {
				return nil, "", err
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// errorMessage extracts the message field of an error body, or HTTP <status>.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if m := strings.TrimSpace(body.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(body.Error); m != "" {
			return m
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

// Get fetches path and returns the envelope's data.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values, header http.Header) (T, error) {
	var env models.Envelope[T]
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Header: header}, &env)
	return env.Data, err
}

// Send issues method with a body and returns the envelope's data.
func Send[T any](ctx context.Context, c *Client, method, path string, body any, header http.Header) (T, error) {
	var env models.Envelope[T]
	err := c.Do(ctx, Request{Method: method, Path: path, Body: body, Header: header}, &env)
	return env.Data, err
}

// EmailQuery builds the ?email= query used by every participant-scoped call.
func EmailQuery(email string) url.Values {
	return url.Values{"email": []string{email}}
}
