package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read error") }
func (errReader) Close() error { return nil }

func TestNew(t *testing.T) {
	c := New("123:ABC")

	if c.token != "123:ABC" {
		t.Errorf("token = %q, want %q", c.token, "123:ABC")
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
	if c.httpClient == nil || c.httpClient.Timeout != DefaultTimeout {
		t.Fatalf("httpClient = %+v", c.httpClient)
	}
	if c.limiter != nil {
		t.Error("limiter should be off by default")
	}
	if got := c.methodURL("getMe"); got != "https://api.telegram.org/bot123:ABC/getMe" {
		t.Errorf("methodURL = %q", got)
	}
}

func TestNew_Options(t *testing.T) {
	hc := &http.Client{}
	c := New("t", WithBaseURL("http://localhost:8081"), WithHTTPClient(hc), WithTimeout(5*time.Second), WithRateLimit(30, 0))

	if c.baseURL != "http://localhost:8081/" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.httpClient != hc || hc.Timeout != 5*time.Second {
		t.Errorf("httpClient = %+v", c.httpClient)
	}
	if c.limiter == nil || c.limiter.Burst() != 1 {
		t.Errorf("limiter = %+v", c.limiter)
	}
	if New("t", WithRateLimit(0, 10)).limiter != nil {
		t.Error("rps 0 should disable the limiter")
	}
}

func TestClient_Request_Form(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/bot123:ABC/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		got := map[string]string{}
		for k := range r.PostForm {
			got[k] = r.PostForm.Get(k)
		}
		want := map[string]string{"chat_id": "42", "text": "hi & bye", "entities": `[{"type":"bold"}]`}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("form mismatch (-want +got):\n%s", diff)
		}
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	c := New("123:ABC", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	body, err := c.Request(context.Background(), "sendMessage", map[string]string{
		"chat_id":  "42",
		"text":     "hi & bye",
		"entities": `[{"type":"bold"}]`,
	}, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(body) != `{"ok":true,"result":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestClient_Request_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "1" {
			t.Errorf("chat_id = %q", got)
		}
		f, hdr, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("FormFile(photo): %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "foo" {
			t.Errorf("photo = %q, want foo", data)
		}
		if hdr.Filename != "cat.jpg" {
			t.Errorf("filename = %q, want cat.jpg", hdr.Filename)
		}

		doc, hdr, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("FormFile(document): %v", err)
		}
		doc.Close()
		if hdr.Filename != "document" {
			t.Errorf("filename = %q, want the parameter name", hdr.Filename)
		}
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Request(context.Background(), "sendPhoto", map[string]string{"chat_id": "1"}, map[string]io.Reader{
		"photo":    NamedReader("/tmp/cat.jpg", []byte("foo")),
		"document": strings.NewReader("bar"),
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
}

func TestClient_Request_OSFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		if hdr.Filename != "report.pdf" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := c.Request(context.Background(), "sendDocument", nil, map[string]io.Reader{"document": f}); err != nil {
		t.Fatalf("Request: %v", err)
	}
}

func TestClient_Request_BadRequestPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	body, err := c.Request(context.Background(), "sendMessage", nil, nil)
	if err != nil {
		t.Fatalf("400 must not be a transport error: %v", err)
	}
	if !strings.Contains(string(body), "chat not found") {
		t.Errorf("body = %s", body)
	}
}

func TestClient_Request_StatusError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     string
		body       string
		retryable  bool
		retryAfter time.Duration
	}{
		{"unauthorized", http.StatusUnauthorized, "", `{"ok":false,"error_code":401,"description":"Unauthorized"}`, false, 0},
		{"conflict", http.StatusConflict, "", `{"ok":false,"error_code":409}`, false, 0},
		{"flood", http.StatusTooManyRequests, "", `{"ok":false,"error_code":429,"parameters":{"retry_after":3}}`, true, 3 * time.Second},
		{"flood header", http.StatusTooManyRequests, "9", `too many`, true, 9 * time.Second},
		{"bad gateway", http.StatusBadGateway, "", `<html>502</html>`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			_, err := c.Request(context.Background(), "getMe", nil, nil)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			if se.StatusCode != tt.status || se.Method != "getMe" {
				t.Errorf("StatusError = %+v", se)
			}
			if se.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", se.IsRetryable(), tt.retryable)
			}
			if se.RetryAfter() != tt.retryAfter {
				t.Errorf("RetryAfter = %v, want %v", se.RetryAfter(), tt.retryAfter)
			}
		})
	}
}

func TestStatusError_TruncatesBody(t *testing.T) {
	e := &StatusError{Method: "getMe", StatusCode: 500, Body: []byte(strings.Repeat("x", 500))}
	if len(e.Error()) > 260 {
		t.Errorf("error too long: %d bytes", len(e.Error()))
	}
}

func TestClient_Request_NetworkError(t *testing.T) {
	origHTTPDo := httpDo
	httpDo = func(_ *http.Client, _ *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}
	defer func() { httpDo = origHTTPDo }()

	c := New("t")
	_, err := c.Request(context.Background(), "getMe", nil, nil)
	if err == nil {
		t.Fatal("expected network error")
	}
	if !strings.Contains(err.Error(), "getMe:") {
		t.Errorf("error = %q, want to contain 'getMe:'", err.Error())
	}

	// The multipart writer must not leak when the body is never read.
	_, err = c.Request(context.Background(), "sendPhoto", nil, map[string]io.Reader{"photo": strings.NewReader("foo")})
	if err == nil {
		t.Fatal("expected network error")
	}
}

func TestClient_Request_ReadBodyError(t *testing.T) {
	origHTTPDo := httpDo
	httpDo = func(_ *http.Client, _ *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: errReader{}}, nil
	}
	defer func() { httpDo = origHTTPDo }()

	_, err := New("t").Request(context.Background(), "getMe", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "read body") {
		t.Errorf("error = %v, want read body error", err)
	}
}

func TestClient_Request_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Request(ctx, "getUpdates", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_Request_RateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	// One token, refilled far too slowly for the second call.
	c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(0.001, 1))
	if _, err := c.Request(context.Background(), "getMe", nil, nil); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, "getMe", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("error = %v, want rate limit error", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/bot123:ABC/voice/file_7.oga" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("OggS"))
	}))
	defer srv.Close()

	c := New("123:ABC", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	data, err := c.Download(context.Background(), "voice/file_7.oga")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "OggS" {
		t.Errorf("data = %q", data)
	}

	_, err = c.Download(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("error = %v, want 404 StatusError", err)
	}
}

func TestClient_Download_NetworkError(t *testing.T) {
	origHTTPDo := httpDo
	httpDo = func(_ *http.Client, _ *http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	}
	defer func() { httpDo = origHTTPDo }()

	_, err := New("t").Download(context.Background(), "a/b")
	if err == nil || !strings.Contains(err.Error(), "download file") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_Metrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	base := testutil.ToFloat64(requestsTotal.WithLabelValues("logOut", "200"))
	c := New("t", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	for i := 0; i < 2; i++ {
		if _, err := c.Request(context.Background(), "logOut", nil, nil); err != nil {
			t.Fatalf("Request: %v", err)
		}
	}
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("logOut", "200")); got != base+2 {
		t.Errorf("requests_total = %v, want %v", got, base+2)
	}
}
