package rest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"pcadenoise/internal/models"
	"pcadenoise/pkg/config"
	"pcadenoise/pkg/imageio"
	"pcadenoise/pkg/noise"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newDenoiseRequest builds a multipart request carrying a noisy 64x64 PNG
func newDenoiseRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()

	clean, err := noise.Constant(64, 64, 128)
	if err != nil {
		t.Fatalf("Constant failed: %v", err)
	}
	noisy, err := noise.AddGaussian(clean, 20, 42)
	if err != nil {
		t.Fatalf("AddGaussian failed: %v", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "noisy.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if err := imageio.Encode(part, noisy, "png"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/denoise", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestPing(t *testing.T) {
	r := NewRouter(config.DefaultConfig())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp["message"] != "pong" {
		t.Errorf("Unexpected response %v", resp)
	}
}

func TestGetConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Threshold.Shrink = "bayes"
	r := NewRouter(cfg)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("shrink: bayes")) {
		t.Errorf("Config body misses the shrink setting:\n%s", rec.Body.String())
	}
}

func TestPostDenoise(t *testing.T) {
	r := NewRouter(config.DefaultConfig())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, newDenoiseRequest(t, map[string]string{
		"patch": "8",
		"sigma": "20",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if rec.Header().Get("X-Denoise-Regions") != "1" {
		t.Errorf("Expected one region, got %q", rec.Header().Get("X-Denoise-Regions"))
	}

	out, format, err := imageio.Decode(rec.Body, imageio.Luma)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if format != "png" || out.Width != 64 || out.Height != 64 {
		t.Errorf("Unexpected result %s %dx%d", format, out.Width, out.Height)
	}
}

func TestPostDenoiseErrors(t *testing.T) {
	cases := []struct {
		fields map[string]string
		status int
	}{
		{map[string]string{"threshold": "medium"}, http.StatusBadRequest},
		{map[string]string{"patch": "0"}, http.StatusBadRequest},
		{map[string]string{"blend": "median"}, http.StatusBadRequest},
		{map[string]string{"patch": "abc"}, http.StatusBadRequest},
		{map[string]string{"sigma": "NaN"}, http.StatusBadRequest},
		{map[string]string{"sigma": "+Inf"}, http.StatusBadRequest},
		{map[string]string{"patch": "16"}, http.StatusUnprocessableEntity},
	}

	r := NewRouter(config.DefaultConfig())
	for _, c := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, newDenoiseRequest(t, c.fields))
		if rec.Code != c.status {
			t.Errorf("%v: expected %d, got %d: %s", c.fields, c.status, rec.Code, rec.Body.String())
		}
	}
}

func TestPostDenoiseMissingImage(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("patch", "8")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/denoise", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	NewRouter(config.DefaultConfig()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestPostDenoiseRejectsOversizedImage(t *testing.T) {
	grid, err := noise.Constant(4, 4, 100)
	if err != nil {
		t.Fatalf("Constant failed: %v", err)
	}
	var png bytes.Buffer
	if err := imageio.Encode(&png, grid, "png"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// claim 20000x20000 in the IHDR chunk and fix up its checksum
	data := png.Bytes()
	binary.BigEndian.PutUint32(data[16:20], 20000)
	binary.BigEndian.PutUint32(data[20:24], 20000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "huge.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/denoise", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	NewRouter(config.DefaultConfig()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("exceeds the limit")) {
		t.Errorf("Expected a size limit error, got %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: side", models.ErrInvalidParameter), http.StatusBadRequest},
		{fmt.Errorf("%w: 9x9", models.ErrPatchTooLarge), http.StatusBadRequest},
		{models.ErrUnsupportedPolicy, http.StatusBadRequest},
		{fmt.Errorf("tile 3: %w", models.ErrInsufficientSamples), http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.status {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.status)
		}
	}
}
