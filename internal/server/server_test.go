package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/colorseason/internal/imageio"
	"github.com/dudu/colorseason/internal/pipeline"
)

type fakeAnalyzer struct {
	result pipeline.ColorResult
	err    error
	calls  int
	data   []byte
}

func (f *fakeAnalyzer) AnalyzeBytes(data []byte) (pipeline.ColorResult, error) {
	f.calls++
	f.data = data
	return f.result, f.err
}

type response struct {
	Colors map[string]string `json:"colors"`
	Error  *errorBody        `json:"error"`
}

func multipartRequest(t *testing.T, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if image != nil {
		part, err := w.CreateFormFile("image", "portrait.JPG")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func newServer(a Analyzer, uploadDir string) *Server {
	return New(a, Options{UploadDir: uploadDir, MaxUploadBytes: 1 << 20})
}

func TestAnalyzeSuccess(t *testing.T) {
	a := &fakeAnalyzer{result: pipeline.ColorResult{Hair: "#3c281e", Skin: "#e0ac8c", Lip: "#b4283c"}}
	dir := t.TempDir()
	s := newServer(a, dir)

	rec, resp := serve(t, s, multipartRequest(t, []byte("image-bytes"), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"hair": "#3c281e", "skin": "#e0ac8c", "lip": "#b4283c"}, resp.Colors)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []byte("image-bytes"), a.data)
	assert.Contains(t, rec.Body.String(), `{"colors":{"hair":"#3c281e","skin":"#e0ac8c","lip":"#b4283c"}}`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".jpg", filepath.Ext(entries[0].Name()))
}

func TestAnalyzeTypedFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "no face",
			err:     pipeline.ErrNoFaceDetected,
			status:  http.StatusUnprocessableEntity,
			code:    "no_face_detected",
			message: "No face detected. Please upload a clear, front-facing photo.",
		},
		{
			name:    "landmarks",
			err:     fmt.Errorf("wrapped: %w", pipeline.ErrLandmarkExtraction),
			status:  http.StatusUnprocessableEntity,
			code:    "landmark_extraction_failed",
			message: "Could not locate facial landmarks. Please upload a clear, front-facing photo.",
		},
		{
			name:    "extraction",
			err:     pipeline.ErrFeatureExtraction,
			status:  http.StatusUnprocessableEntity,
			code:    "feature_extraction_failed",
			message: "Could not analyze facial features. Please make sure the face is clearly visible.",
		},
		{
			name:   "invalid image",
			err:    fmt.Errorf("%w: unknown format", imageio.ErrInvalidImage),
			status: http.StatusBadRequest,
			code:   "invalid_image",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(&fakeAnalyzer{err: tt.err}, "")
			rec, resp := serve(t, s, multipartRequest(t, []byte("x"), nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Nil(t, resp.Colors)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error.Message)
			}
		})
	}
}

func TestAnalyzeMissingImage(t *testing.T) {
	a := &fakeAnalyzer{}
	rec, resp := serve(t, newServer(a, ""), multipartRequest(t, nil, map[string]string{"other": "x"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_image", resp.Error.Code)
	assert.Zero(t, a.calls)
}

func TestAnalyzeTooLarge(t *testing.T) {
	a := &fakeAnalyzer{}
	s := New(a, Options{MaxUploadBytes: 1024})

	rec, resp := serve(t, s, multipartRequest(t, bytes.Repeat([]byte{0xff}, 4096), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "upload_too_large", resp.Error.Code)
	assert.Zero(t, a.calls)
}

func TestAnalyzeColorsOverride(t *testing.T) {
	a := &fakeAnalyzer{err: errors.New("must not run")}
	fields := map[string]string{"colors": `{"hair":"#3C281E","skin":"#e0ac8c","lip":"#b4283c"}`}

	rec, resp := serve(t, newServer(a, ""), multipartRequest(t, []byte("x"), fields))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#3c281e", resp.Colors["hair"])
	assert.Zero(t, a.calls)
}

func TestAnalyzeColorsOverrideInvalid(t *testing.T) {
	tests := map[string]string{
		"not json":     `hair=#000000`,
		"missing lip":  `{"hair":"#000000","skin":"#000000"}`,
		"bad hex":      `{"hair":"brown","skin":"#000000","lip":"#000000"}`,
		"missing hash": `{"hair":"000000","skin":"#000000","lip":"#000000"}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			rec, resp := serve(t, newServer(&fakeAnalyzer{}, ""), multipartRequest(t, []byte("x"), map[string]string{"colors": raw}))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_colors", resp.Error.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(&fakeAnalyzer{}, "").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNoRoute(t *testing.T) {
	rec, resp := serve(t, newServer(&fakeAnalyzer{}, ""), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", resp.Error.Code)
}
