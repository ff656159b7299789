package web_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/tcmtongue/internal/db"
	"github.com/vbonduro/tcmtongue/internal/metrics"
	"github.com/vbonduro/tcmtongue/internal/photostore"
	"github.com/vbonduro/tcmtongue/internal/photostore/local"
	"github.com/vbonduro/tcmtongue/internal/service"
	"github.com/vbonduro/tcmtongue/internal/store"
	"github.com/vbonduro/tcmtongue/internal/web"
	"github.com/vbonduro/tcmtongue/internal/web/templates"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
var minimalJPEG = func() []byte {
	b := make([]byte, 512)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}()

const boilingInstructions = "Soak herbs in cold water for 30 minutes."

// recordingGenerator counts calls and returns a pre-configured answer.
type recordingGenerator struct {
	mu        sync.Mutex
	calls     int
	lastBytes []byte
	text      string
	err       error
}

func (g *recordingGenerator) Generate(_ context.Context, r io.Reader, _, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastBytes = data
	return g.text, g.err
}

func (g *recordingGenerator) Name() string { return "stub:recording" }

func (g *recordingGenerator) set(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.text = text
	g.err = err
}

func (g *recordingGenerator) LastBytes() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastBytes
}

func (g *recordingGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testServer struct {
	*httptest.Server
	saveDir string
}

// newTestServer wires a real web.Server to in-memory SQLite, a temp save
// directory and the provided generator stub.
func newTestServer(t *testing.T, gen *recordingGenerator) *testServer {
	t.Helper()
	return newTestServerWithPhotos(t, gen, func(l *local.LocalPhotoStore) photostore.PhotoStore { return l })
}

// newTestServerWithPhotos lets a test wrap the local photo store.
func newTestServerWithPhotos(t *testing.T, gen *recordingGenerator, wrap func(*local.LocalPhotoStore) photostore.PhotoStore) *testServer {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)

	saveDir := filepath.Join(t.TempDir(), "data")
	photos, err := local.NewLocalPhotoStore(saveDir)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc := service.NewAnalysisService(
		store.NewRecordStore(database),
		gen,
		wrap(photos),
		service.Texts{Prompt: "analyze", BoilingInstructions: boilingInstructions},
		metrics.New(reg),
		slog.Default(),
	)
	srv := httptest.NewServer(web.NewServer(svc, templates.FS, reg, slog.Default()))
	t.Cleanup(func() {
		srv.Close()
		_ = database.Close()
	})
	return &testServer{Server: srv, saveDir: saveDir}
}

// brokenReadStore saves normally but fails every read with an I/O error.
type brokenReadStore struct {
	*local.LocalPhotoStore
}

func (b brokenReadStore) Get(context.Context, string) (io.ReadCloser, string, error) {
	return nil, "", errors.New("read patient_tongue.jpg: input/output error")
}

// firstRecordLink uploads tongue.jpg and returns the /records/{id} path for it.
func firstRecordLink(t *testing.T, srv *testServer) string {
	t.Helper()
	status, _ := postImage(t, srv, "tongue.jpg", minimalJPEG)
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + "/records")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	idx := strings.Index(string(b), `href="/records/`)
	require.GreaterOrEqual(t, idx, 0)
	rest := string(b)[idx+len(`href="`):]
	return rest[:strings.Index(rest, `"`)]
}

// buildMultipartBody creates a multipart/form-data body with an "image" field.
func buildMultipartBody(t *testing.T, filename string, imageData []byte) (body *bytes.Buffer, contentType string) {
	t.Helper()
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write(imageData)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func postImage(t *testing.T, srv *testServer, filename string, data []byte) (int, string) {
	t.Helper()
	body, contentType := buildMultipartBody(t, filename, data)
	resp, err := http.Post(srv.URL+"/analyze", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestIntegration_Index(t *testing.T) {
	srv := newTestServer(t, &recordingGenerator{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "TCM Tongue Analysis Portal")
	assert.Contains(t, string(b), `accept=".jpg,.jpeg,.png`)
}

func TestIntegration_UnknownPathNotFound(t *testing.T) {
	srv := newTestServer(t, &recordingGenerator{})

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_AnalyzeSuccess(t *testing.T) {
	gen := &recordingGenerator{text: "Tongue Color: Pale & swollen"}
	srv := newTestServer(t, gen)

	status, body := postImage(t, srv, "tongue.jpg", minimalJPEG)
	require.Equal(t, http.StatusOK, status, body)

	assert.Contains(t, body, "Analysis Results")
	assert.Contains(t, body, "Tongue Color: Pale &amp; swollen")
	assert.Contains(t, body, "Prescription &amp; Instructions")
	assert.Contains(t, body, boilingInstructions)
	assert.Contains(t, body, "Record saved for doctor review.")
	assert.NotContains(t, body, "An error occurred")

	assert.Equal(t, 1, gen.Calls())
	assert.Equal(t, minimalJPEG, gen.LastBytes())

	saved, err := os.ReadFile(filepath.Join(srv.saveDir, "patient_tongue.jpg"))
	require.NoError(t, err)
	assert.Equal(t, minimalJPEG, saved)

	entries, err := os.ReadDir(srv.saveDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIntegration_AnalyzeGenerateError(t *testing.T) {
	gen := &recordingGenerator{err: errors.New("googleapi: Error 429: quota exceeded")}
	srv := newTestServer(t, gen)

	status, body := postImage(t, srv, "tongue.png", minimalJPEG)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "An error occurred")
	assert.Contains(t, body, "googleapi: Error 429: quota exceeded")
	assert.NotContains(t, body, "Record saved for doctor review.")
	assert.NotContains(t, body, boilingInstructions)

	entries, err := os.ReadDir(srv.saveDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The server keeps serving after a failure.
	gen.set("recovered", nil)
	status, body = postImage(t, srv, "tongue.png", minimalJPEG)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "recovered")
}

func TestIntegration_AnalyzeSaveErrorShowsTextAndError(t *testing.T) {
	gen := &recordingGenerator{text: "Tongue Color: Red"}
	srv := newTestServer(t, gen)

	// A directory squatting on the target name makes the file write fail.
	require.NoError(t, os.Mkdir(filepath.Join(srv.saveDir, "patient_tongue.jpg"), 0755))

	status, body := postImage(t, srv, "tongue.jpg", minimalJPEG)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "Tongue Color: Red")
	assert.Contains(t, body, "Prescription &amp; Instructions")
	assert.Contains(t, body, boilingInstructions)
	assert.Contains(t, body, "An error occurred: failed to save photo")
	assert.NotContains(t, body, "Record saved for doctor review.")
}

func TestIntegration_AnalyzeRejectsExtension(t *testing.T) {
	gen := &recordingGenerator{text: "unused"}
	srv := newTestServer(t, gen)

	status, body := postImage(t, srv, "tongue.gif", []byte("GIF89a"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Unsupported file type")
	assert.Zero(t, gen.Calls())
}

func TestIntegration_AnalyzeMissingFile(t *testing.T) {
	gen := &recordingGenerator{text: "unused"}
	srv := newTestServer(t, gen)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("note", "no image"))
	require.NoError(t, w.Close())

	resp, err := http.Post(srv.URL+"/analyze", w.FormDataContentType(), body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, gen.Calls())
}

func TestIntegration_ReuploadOverwrites(t *testing.T) {
	gen := &recordingGenerator{text: "analysis"}
	srv := newTestServer(t, gen)

	second := append([]byte{}, minimalJPEG...)
	second[100] = 0x42

	status, _ := postImage(t, srv, "tongue.jpg", minimalJPEG)
	require.Equal(t, http.StatusOK, status)
	status, _ = postImage(t, srv, "tongue.jpg", second)
	require.Equal(t, http.StatusOK, status)

	saved, err := os.ReadFile(filepath.Join(srv.saveDir, "patient_tongue.jpg"))
	require.NoError(t, err)
	assert.Equal(t, second, saved)
}

func TestIntegration_RecordsReview(t *testing.T) {
	gen := &recordingGenerator{text: "Syndrome: Spleen Qi deficiency"}
	srv := newTestServer(t, gen)

	status, _ := postImage(t, srv, "tongue.jpg", minimalJPEG)
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + "/records")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "patient_tongue.jpg")

	// Pull the record link out of the list page.
	idx := strings.Index(string(b), `href="/records/`)
	require.GreaterOrEqual(t, idx, 0)
	rest := string(b)[idx+len(`href="`):]
	link := rest[:strings.Index(rest, `"`)]

	resp, err = http.Get(srv.URL + link)
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "Syndrome: Spleen Qi deficiency")

	resp, err = http.Get(srv.URL + link + "/photo")
	require.NoError(t, err)
	photo, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, minimalJPEG, photo)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+link, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/records", resp.Header.Get("HX-Redirect"))

	_, err = os.Stat(filepath.Join(srv.saveDir, "patient_tongue.jpg"))
	assert.True(t, os.IsNotExist(err))

	resp, err = http.Get(srv.URL + link)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_RecordNotFound(t *testing.T) {
	srv := newTestServer(t, &recordingGenerator{})

	for _, path := range []string{"/records/missing", "/records/missing/photo"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/records/missing", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_RecordPhotoMissingOnDisk(t *testing.T) {
	srv := newTestServer(t, &recordingGenerator{text: "analysis"})
	link := firstRecordLink(t, srv)

	require.NoError(t, os.Remove(filepath.Join(srv.saveDir, "patient_tongue.jpg")))

	resp, err := http.Get(srv.URL + link + "/photo")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_RecordPhotoReadFailure(t *testing.T) {
	srv := newTestServerWithPhotos(t, &recordingGenerator{text: "analysis"},
		func(l *local.LocalPhotoStore) photostore.PhotoStore { return brokenReadStore{l} })
	link := firstRecordLink(t, srv)

	resp, err := http.Get(srv.URL + link + "/photo")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The record itself is still readable.
	resp, err = http.Get(srv.URL + link)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &recordingGenerator{text: "analysis"})

	status, _ := postImage(t, srv, "tongue.jpg", minimalJPEG)
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(b))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), `tcmtongue_analyses_total{outcome="success"} 1`)
	assert.Contains(t, string(b), "tcmtongue_saved_images_total 1")
}
