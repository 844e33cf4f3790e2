package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/auth"
	"github.com/ebogdum/bucketfs/backends/memory"
	"github.com/ebogdum/bucketfs/config"
	"github.com/ebogdum/bucketfs/core"
	"github.com/ebogdum/bucketfs/links"
	"github.com/ebogdum/bucketfs/server/handlers"
)

const (
	writerKey = "writer-key"
	readerKey = "reader-key"
)

type testServer struct {
	*httptest.Server
	store *memory.MemoryAdapter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewMemoryAdapter(zap.NewNop())
	account := core.NewStoreAccount("test", "memory", "memory://test", store)
	engine, err := core.NewEngine(account, core.Options{
		Retry: core.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1},
	}, zap.NewNop())
	require.NoError(t, err)

	linkManager, err := links.NewLinkManager("link-secret", time.Hour, zap.NewNop())
	require.NoError(t, err)

	cfg := config.ServerConfig{FileOpTimeout: 10 * time.Second}
	router := NewRouter(engine,
		auth.NewAPIKeyAuthenticator([]string{writerKey}, []string{readerKey}),
		auth.NewScopeAuthorizer([]string{readerKey}),
		linkManager, &cfg, true, zap.NewNop())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path, key string, body io.Reader, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"backend":"memory"`)

	resp = s.do(t, http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "bucketfs_http_requests_total")
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/v1/files/x", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/x", "bogus", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFileLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/v1/files/docs/a.txt", writerKey, strings.NewReader("hello"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp = s.do(t, http.MethodGet, "/v1/files/docs/a.txt", readerKey, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, etag, resp.Header.Get("ETag"))
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
	assert.Equal(t, "hello", readBody(t, resp))

	resp = s.do(t, http.MethodHead, "/v1/files/docs/a.txt", readerKey, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, etag, resp.Header.Get("ETag"))
	assert.Equal(t, "file", resp.Header.Get(handlers.TypeHeader))

	resp = s.do(t, http.MethodDelete, "/v1/files/docs/a.txt", writerKey, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting again is not an error
	resp = s.do(t, http.MethodDelete, "/v1/files/docs/a.txt", writerKey, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/docs/a.txt", readerKey, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodHead, "/v1/files/docs/a.txt", readerKey, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadOnlyKeyCannotWrite(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/v1/files/f", readerKey, strings.NewReader("x"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/v1/files/f", readerKey, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, s.store.Len())
}

func TestConditionalRequests(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/v1/files/k", writerKey, strings.NewReader("v0"), nil)
	t0 := resp.Header.Get("ETag")

	resp = s.do(t, http.MethodPut, "/v1/files/k", writerKey, strings.NewReader("v1"), map[string]string{"If-Match": t0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t1 := resp.Header.Get("ETag")
	assert.NotEqual(t, t0, t1)

	resp = s.do(t, http.MethodPut, "/v1/files/k", writerKey, strings.NewReader("stale"), map[string]string{"If-Match": t0})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	var errResp handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "PRECONDITION_FAILED", errResp.Code)
	assert.Equal(t, t1, errResp.Current)

	resp = s.do(t, http.MethodGet, "/v1/files/k", readerKey, nil, map[string]string{"If-Match": t0})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/k", readerKey, nil, map[string]string{"If-Match": "W/" + t1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", readBody(t, resp))
}

func TestDirectoryListing(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/v1/files/a/", writerKey, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, p := range []string{"a/1", "a/b/2", "a/b/c/3"} {
		resp = s.do(t, http.MethodPut, "/v1/files/"+p, writerKey, strings.NewReader(p), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	list := func(query string) handlers.DirectoryListingResponse {
		resp := s.do(t, http.MethodGet, "/v1/files/a/"+query, readerKey, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var listing handlers.DirectoryListingResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
		return listing
	}

	flat := list("")
	assert.Equal(t, "/a", flat.Path)
	require.Equal(t, 2, flat.Count)
	assert.Equal(t, "/a/1", flat.Items[0].Path)
	assert.False(t, flat.Items[0].IsDir)
	assert.Equal(t, "/a/b", flat.Items[1].Path)
	assert.True(t, flat.Items[1].IsDir)

	deep := list("?recursive=true")
	assert.True(t, deep.Recursive)
	assert.Equal(t, 5, deep.Count)

	two := list("?depth=2")
	assert.Equal(t, 4, two.Count)

	resp = s.do(t, http.MethodGet, "/v1/files/a/?depth=0", readerKey, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/missing/", readerKey, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodHead, "/v1/files/a/b/", readerKey, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "directory", resp.Header.Get(handlers.TypeHeader))
}

func TestDirectoryDelete(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPut, "/v1/files/d/1", writerKey, strings.NewReader("1"), nil)
	s.do(t, http.MethodPut, "/v1/files/d/2", writerKey, strings.NewReader("2"), nil)

	resp := s.do(t, http.MethodDelete, "/v1/files/d/", writerKey, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/v1/files/d/?recursive=true", writerKey, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"status":"complete"`)
	assert.Equal(t, 0, s.store.Len())

	resp = s.do(t, http.MethodDelete, "/v1/files/", writerKey, nil, nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestDirectoryDeletePartialFailure(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPut, "/v1/files/d/1", writerKey, strings.NewReader("1"), nil)
	s.do(t, http.MethodPut, "/v1/files/d/2", writerKey, strings.NewReader("2"), nil)
	s.store.FailKey(memory.OpDelete, "d/2", errors.New("access denied"))

	resp := s.do(t, http.MethodDelete, "/v1/files/d/?recursive=true", writerKey, nil, nil)
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	var body struct {
		Result struct {
			Status    string            `json:"status"`
			Succeeded []string          `json:"succeeded"`
			Failed    map[string]string `json:"failed"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "partial", body.Result.Status)
	assert.Equal(t, []string{"/d/1"}, body.Result.Succeeded)
	assert.Contains(t, body.Result.Failed, "/d/2")
}

func TestInvalidPath(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/v1/files/a%5Cb", writerKey, strings.NewReader("x"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, s.store.Len())
}

func wsURL(s *testServer, path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func dialWS(t *testing.T, s *testServer, path, key string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(s, path), header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketUploadAndDownload(t *testing.T) {
	s := newTestServer(t)

	up := dialWS(t, s, "/v1/ws/files/ws/blob?mode=upload", writerKey)
	require.NoError(t, up.WriteMessage(websocket.BinaryMessage, []byte("chunk one, ")))
	require.NoError(t, up.WriteMessage(websocket.BinaryMessage, []byte("chunk two")))
	require.NoError(t, up.WriteMessage(websocket.TextMessage, []byte("done")))

	messageType, data, err := up.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var ack handlers.UploadAck
	require.NoError(t, json.Unmarshal(data, &ack))
	assert.Equal(t, "/ws/blob", ack.Path)
	assert.Equal(t, int64(20), ack.Size)
	assert.NotEmpty(t, ack.ETag)

	down := dialWS(t, s, "/v1/ws/files/ws/blob?mode=download", readerKey)
	var got []byte
	for {
		_, chunk, err := down.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		got = append(got, chunk...)
	}
	assert.Equal(t, "chunk one, chunk two", string(got))
}

func TestWebSocketUploadDiscardedWithoutDone(t *testing.T) {
	s := newTestServer(t)

	up := dialWS(t, s, "/v1/ws/files/partial?mode=upload", writerKey)
	require.NoError(t, up.WriteMessage(websocket.BinaryMessage, []byte("incomplete")))
	require.NoError(t, up.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")))

	// The server ends its side once the upload is discarded
	up.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := up.ReadMessage(); err != nil {
			break
		}
	}

	assert.Eventually(t, func() bool {
		resp := s.do(t, http.MethodHead, "/v1/files/partial", writerKey, nil, nil)
		return resp.StatusCode == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.store.Len())
}

func TestWebSocketDownloadMissingFile(t *testing.T) {
	s := newTestServer(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+readerKey)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(s, "/v1/ws/files/nope?mode=download"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketReadOnlyUpload(t *testing.T) {
	s := newTestServer(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+readerKey)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(s, "/v1/ws/files/f?mode=upload"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownloadLinks(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/v1/files/shared/report.txt", writerKey, strings.NewReader("v1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")

	// Read-only keys may share files
	resp = s.do(t, http.MethodPost, "/v1/links", readerKey,
		strings.NewReader(`{"path":"/shared/report.txt","expiry_seconds":60}`), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var link handlers.GenerateLinkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&link))
	assert.Equal(t, "/shared/report.txt", link.Path)
	assert.Equal(t, etag, link.ETag)
	assert.True(t, strings.HasPrefix(link.URL, s.URL+"/download/"))

	// No API key is needed to follow a link
	resp = s.do(t, http.MethodGet, "/download/"+link.Token, "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", readBody(t, resp))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.txt")

	resp = s.do(t, http.MethodGet, "/download/"+link.Token+"x", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Overwriting the file invalidates the link
	resp = s.do(t, http.MethodPut, "/v1/files/shared/report.txt", writerKey, strings.NewReader("v2"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/download/"+link.Token, "", nil, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestGenerateLinkErrors(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/v1/links", writerKey, strings.NewReader(`{"path":"/missing"}`), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/links", writerKey, strings.NewReader(`{"path":"/dir/"}`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/links", writerKey, strings.NewReader(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/links", "", strings.NewReader(`{"path":"/f"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
