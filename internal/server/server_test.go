package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"audience/internal/storage"
	"audience/internal/upload"
)

const customerCSV = "CustomerId,Name,Phone,Email,Age,City,Country,Occupation\n" +
	"1,<script>x()</script>Ann,555,a@x,30,Oslo,Norway,Pilot\n" +
	"2,Bob,556,b@x,41,Bergen,Norway,Chef\n"

// fakeRepo records what Persist writes.
type fakeRepo struct {
	mu      sync.Mutex
	uploads []storage.Upload
	rows    int
}

func (f *fakeRepo) EnsureSchema(context.Context) error { return nil }
func (f *fakeRepo) SaveUpload(_ context.Context, u storage.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, u)
	return nil
}
func (f *fakeRepo) LoadRows(_ context.Context, _ []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows += len(rows)
	return int64(len(rows)), nil
}
func (f *fakeRepo) DeleteUpload(context.Context, string) error { return nil }
func (f *fakeRepo) Close()                                     {}

func (f *fakeRepo) state() ([]storage.Upload, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Upload(nil), f.uploads...), f.rows
}

func newTestServer(t *testing.T, repo storage.Repository) *httptest.Server {
	t.Helper()
	s := New(Config{
		MaxConcurrent:  2,
		AllowedOrigins: []string{"https://app.example.com"},
		Upload:         upload.Options{MaxRows: 10},
	}, repo, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// postFile sends content as the multipart "file" field plus extra form fields.
func postFile(t *testing.T, url, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type previewBody struct {
	Columns        []string         `json:"columns"`
	SampleRows     []map[string]any `json:"sampleRows"`
	TotalRows      int              `json:"totalRows"`
	MissingColumns []string         `json:"missingColumns"`
	HasAllRequired bool             `json:"hasAllRequired"`
	State          string           `json:"state"`
}

type uploadBody struct {
	ID          string      `json:"id"`
	Fingerprint string      `json:"fingerprint"`
	Format      string      `json:"format"`
	Preview     previewBody `json:"preview"`
	Saved       bool        `json:"saved"`
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpload_OK(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp := postFile(t, ts.URL+"/api/uploads", "crm.csv", customerCSV, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[uploadBody](t, resp)
	assert.NotEmpty(t, body.ID)
	assert.Len(t, body.Fingerprint, 32)
	assert.Equal(t, "csv", body.Format)
	assert.Equal(t, 2, body.Preview.TotalRows)
	assert.True(t, body.Preview.HasAllRequired)
	assert.Equal(t, []string{}, body.Preview.MissingColumns)
	assert.Equal(t, "Ann", body.Preview.SampleRows[0]["name"])
	assert.False(t, body.Saved)
}

func TestUpload_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		status   int
		code     string
		message  string
	}{
		{
			name: "missing file", status: http.StatusBadRequest, code: "read_error",
			message: "Failed to read the file. Please try again.",
		},
		{
			name: "empty", filename: "e.csv", content: "", status: http.StatusUnprocessableEntity, code: "empty_file",
			message: "The CSV file is empty. Please upload a file with data.",
		},
		{
			name: "headers only", filename: "h.csv", content: "name,email\n", status: http.StatusUnprocessableEntity, code: "empty_file",
			message: "The CSV file has headers but no data rows.",
		},
		{
			name: "row limit from form", filename: "r.csv", content: customerCSV, fields: map[string]string{"max_rows": "1"},
			status: http.StatusUnprocessableEntity, code: "row_limit_exceeded",
			message: "The CSV file contains 2 rows, but the maximum allowed is 1.",
		},
		{
			name: "binary", filename: "b.bin", content: "\x01\x02\x03\x04\x05\x00\x00\x07", status: http.StatusUnprocessableEntity, code: "parse_error",
			message: "Failed to parse the file. Please ensure it is a valid CSV or Excel file.",
		},
		{
			name: "bad max_rows", filename: "a.csv", content: customerCSV, fields: map[string]string{"max_rows": "-3"},
			status: http.StatusBadRequest, code: "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t, nil)
			resp := postFile(t, ts.URL+"/api/uploads", tt.filename, tt.content, tt.fields)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode[errorResponse](t, resp)
			assert.Equal(t, tt.code, body.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

func TestUpload_RowLimitCarriesCounts(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("name\n")
	for i := 0; i < 11; i++ {
		fmt.Fprintf(&b, "n%d\n", i)
	}

	ts := newTestServer(t, nil)
	resp := postFile(t, ts.URL+"/api/uploads", "big.csv", b.String(), map[string]string{"max_rows": "50"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[errorResponse](t, resp)
	assert.Equal(t, 11, body.Observed)
	assert.Equal(t, 10, body.Limit, "form value cannot raise the configured ceiling")
}

func TestUpload_Save(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	ts := newTestServer(t, repo)

	resp := postFile(t, ts.URL+"/api/uploads?save=true", "crm.csv", customerCSV, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[uploadBody](t, resp)
	assert.True(t, body.Saved)
	uploads, rows := repo.state()
	require.Len(t, uploads, 1)
	assert.Equal(t, "crm.csv", uploads[0].Filename)
	assert.Equal(t, body.ID, uploads[0].ID)
	assert.Equal(t, 2, rows)

	resp = postFile(t, ts.URL+"/api/uploads?save=true", "partial.csv", "name,product\nAnn,Shoes\n", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[uploadBody](t, resp).Saved, "incomplete uploads are not stored")
	uploads, _ = repo.state()
	assert.Len(t, uploads, 1)
}

// trackingBody records whether the handler read the request body.
type trackingBody struct {
	io.Reader
	read atomic.Bool
}

func (b *trackingBody) Read(p []byte) (int, error) {
	b.read.Store(true)
	return b.Reader.Read(p)
}

func (b *trackingBody) Close() error { return nil }

func TestUpload_BusyServerLeavesBodyUnread(t *testing.T) {
	t.Parallel()

	s := New(Config{MaxConcurrent: 1}, nil, zaptest.NewLogger(t))
	require.NoError(t, s.sem.Acquire(context.Background(), 1))
	defer s.sem.Release(1)

	body := &trackingBody{Reader: strings.NewReader("--x\r\nContent-Disposition: form-data; name=\"max_rows\"\r\n\r\n5\r\n--x--\r\n")}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body).WithContext(ctx)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, body.read.Load(), "body must not be buffered while waiting for a slot")
}

func TestUpload_SaveWithoutStorage(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp := postFile(t, ts.URL+"/api/uploads?save=true", "crm.csv", customerCSV, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

/*
TestCurrentAndClear follows the "current file" lifecycle: an accepted upload
becomes current, a failed one replaces it with an empty preview and a message,
and DELETE resets to the empty preview.
*/
func TestCurrentAndClear(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	current := func() upload.Snapshot {
		resp, err := http.Get(ts.URL + "/api/uploads/current")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decode[upload.Snapshot](t, resp)
	}

	assert.Equal(t, upload.StateEmpty, current().Preview.State)

	postFile(t, ts.URL+"/api/uploads", "crm.csv", customerCSV, nil)
	snap := current()
	assert.Equal(t, upload.StateLoaded, snap.Preview.State)
	assert.Equal(t, 2, snap.Preview.TotalRows)
	assert.NotEmpty(t, snap.ID)

	postFile(t, ts.URL+"/api/uploads", "h.csv", "name\n", nil)
	snap = current()
	assert.Equal(t, upload.StateEmpty, snap.Preview.State)
	assert.Equal(t, "The CSV file has headers but no data rows.", snap.Message)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/uploads/current", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap = current()
	assert.Equal(t, upload.StateEmpty, snap.Preview.State)
	assert.Empty(t, snap.Message)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	tests := []struct {
		body string
		want string
	}{
		{`{"text":"<script>alert(1)</script>Hi <b>there</b>"}`, "Hi there"},
		{`{"text":"Hi <b onclick=\"x()\">there</b><img src=x>","rich":true}`, "Hi <b>there</b>"},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/api/sanitize", "application/json", strings.NewReader(tt.body))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, tt.want, decode[sanitizeResponse](t, resp).Text)
		resp.Body.Close()
	}

	resp, err := http.Post(ts.URL+"/api/sanitize", "application/json", strings.NewReader("nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/uploads", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
