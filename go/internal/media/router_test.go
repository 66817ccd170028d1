package media

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/betsync/go/internal/round"
)

type fixedStatus round.Status

func (s fixedStatus) Status() round.Status { return round.Status(s) }

func newTestRouter(t *testing.T, status round.Status) http.Handler {
	t.Helper()

	videos := t.TempDir()
	writeFiles(t, videos, "clip.mp4", "with space.mp4")

	public := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(public, "index.html"), []byte("<html>betsync</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "app.js"), []byte("console.log(1)"), 0o644))

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "betsync_rounds_started_total 1\n")
	})

	return NewRouter(NewLibrary(videos, baseURL), fixedStatus(status), RouterConfig{
		PublicDir: public,
		Metrics:   metrics,
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_VideoFullAndRange(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, round.Status{})

	tests := []struct {
		name         string
		path         string
		rangeHeader  string
		wantStatus   int
		wantBody     string
		contentRange string
	}{
		{name: "full body", path: "/video/clip.mp4", wantStatus: http.StatusOK, wantBody: "0123456789"},
		{name: "closed range", path: "/video/clip.mp4", rangeHeader: "bytes=2-5", wantStatus: http.StatusPartialContent, wantBody: "2345", contentRange: "bytes 2-5/10"},
		{name: "open ended range", path: "/video/clip.mp4", rangeHeader: "bytes=7-", wantStatus: http.StatusPartialContent, wantBody: "789", contentRange: "bytes 7-9/10"},
		{name: "escaped name", path: "/video/with%20space.mp4", wantStatus: http.StatusOK, wantBody: "0123456789"},
		{name: "missing", path: "/video/nope.mp4", wantStatus: http.StatusNotFound},
		{name: "traversal", path: "/video/..%2Fclip.mp4", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}
			rec := serve(h, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNotFound {
				return
			}
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
			assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
			assert.Equal(t, tt.contentRange, rec.Header().Get("Content-Range"))
		})
	}
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status round.Status
		want   HealthResponse
	}{
		{name: "waiting", status: round.Status{Clients: 2}, want: HealthResponse{Status: "ok", Game: "waiting", Clients: 2}},
		{name: "active", status: round.Status{Active: true, Clients: 5}, want: HealthResponse{Status: "ok", Game: "active", Clients: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(newTestRouter(t, tt.status), httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_StaticAndMetrics(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, round.Status{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "betsync")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "betsync_rounds_started_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, round.Status{})
	req := httptest.NewRequest(http.MethodOptions, "/video/clip.mp4", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Range")

	rec := serve(h, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "range")
}
