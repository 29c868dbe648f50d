// Package transport sends Bot API requests over HTTP.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org/"

// DefaultTimeout bounds a single request, long polls included.
const DefaultTimeout = 60 * time.Second

// Client is an HTTP transport for the Bot API. It is safe for concurrent use.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// httpDo is a package-level variable for testability.
var httpDo = func(client *http.Client, req *http.Request) (*http.Response, error) {
	return client.Do(req)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API server, e.g. a local Bot API
// server. A trailing slash is added when missing.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests to rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a transport authenticated by token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "bot" + c.token + "/" + method
}

// Request POSTs one API method. Fields are form values; files, when
// present, switch the body to multipart/form-data with one part per file.
// Status 400 is not an error: its body is the API's own error envelope.
func (c *Client) Request(ctx context.Context, method string, fields map[string]string, files map[string]io.Reader) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit: %w", method, err)
		}
	}

	var (
		body        io.Reader
		contentType string
	)
	if len(files) > 0 {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeMultipart(mw, fields, files))
		}()
		// Unblocks the writer if the request ends before the body is consumed.
		defer pr.Close()
		body, contentType = pr, mw.FormDataContentType()
	} else {
		form := make(url.Values, len(fields))
		for k, v := range fields {
			form.Set(k, v)
		}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	log.Debug().
		Str("component", "transport").
		Str("operation", method).
		Int("fields", len(fields)).
		Int("files", len(files)).
		Msg("bot API request")

	start := time.Now()
	resp, err := httpDo(c.httpClient, req)
	if err != nil {
		observe(method, "error", start)
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	observe(method, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", method, err)
	}

	log.Debug().
		Str("component", "transport").
		Str("operation", method).
		Int("status", resp.StatusCode).
		Int("size", len(respBody)).
		Dur("duration", time.Since(start)).
		Msg("bot API response")

	if resp.StatusCode == http.StatusBadRequest || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return respBody, nil
	}
	return nil, newStatusError(method, resp, respBody)
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, files map[string]io.Reader) error {
	for _, k := range sortedKeys(fields) {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(files) {
		part, err := mw.CreateFormFile(k, fileName(k, files[k]))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, files[k]); err != nil {
			return fmt.Errorf("upload %s: %w", k, err)
		}
	}
	return mw.Close()
}

// fileName uses the base name of named readers such as *os.File and falls
// back to the parameter name.
func fileName(param string, r io.Reader) string {
	if n, ok := r.(interface{ Name() string }); ok && n.Name() != "" {
		return filepath.Base(n.Name())
	}
	return param
}

// Download fetches a file previously resolved with getFile.
func (c *Client) Download(ctx context.Context, filePath string) ([]byte, error) {
	log.Debug().
		Str("component", "transport").
		Str("operation", "download_file").
		Str("file_path", filePath).
		Msg("bot API download")

	fileURL := c.baseURL + "file/bot" + c.token + "/" + strings.TrimPrefix(filePath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download file: create request: %w", err)
	}

	start := time.Now()
	resp, err := httpDo(c.httpClient, req)
	if err != nil {
		observe("download_file", "error", start)
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	observe("download_file", strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return nil, fmt.Errorf("download file: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("download file", resp, data)
	}
	return data, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type bufferedFile struct {
	*bytes.Reader
	name string
}

func (f bufferedFile) Name() string { return f.name }

// NamedReader wraps data so that it is uploaded under the given file name.
func NamedReader(name string, data []byte) io.Reader {
	return bufferedFile{Reader: bytes.NewReader(data), name: name}
}
