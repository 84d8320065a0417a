package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/config"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/fuzzy"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/pipeline"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/registry"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/vision"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFrames struct {
	outcome anpr.FrameOutcome
	records []anpr.DetectionRecord
	err     error
}

func (s *stubFrames) ProcessSingle(ctx context.Context, img image.Image) (anpr.FrameOutcome, error) {
	return s.outcome, s.err
}

func (s *stubFrames) ProcessMulti(ctx context.Context, img image.Image) ([]anpr.DetectionRecord, error) {
	return s.records, s.err
}

// stoppedFrames is a backend whose out-of-process worker has died.
type stoppedFrames struct {
	stubFrames
}

func (s *stoppedFrames) Ready() bool { return false }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{MaxUploadBytes: 1 << 20},
		CORS:   config.CORSConfig{AllowOrigins: []string{"*"}},
		Session: config.SessionConfig{
			Mode:            string(anpr.ModeMulti),
			MaxMessageBytes: 1 << 20,
			WriteTimeout:    time.Second,
		},
	}
}

type testEnv struct {
	router *gin.Engine
	store  *registry.Store
	cfg    *config.Config
}

func newTestEnv(t *testing.T, frames service.FrameProcessor, auth config.AuthConfig) *testEnv {
	t.Helper()
	cfg := testConfig()
	cfg.Auth = auth
	log := zerolog.Nop()

	store := registry.Open(filepath.Join(t.TempDir(), "plates.json"), log)
	svc := service.NewANPRService(frames, store, fuzzy.NewMatcher(fuzzy.DefaultThreshold), nil, nil, log)
	h := NewHandler(svc, service.NewAuthService(cfg.Auth, log), cfg, log)

	return &testEnv{router: NewRouter(cfg, h, log), store: store, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "car.jpg")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize-plate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	data, err := vision.EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, config.AuthConfig{})
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["models_loaded"] != false || body["status"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestHealthzReportsStoppedBackend(t *testing.T) {
	env := newTestEnv(t, &stoppedFrames{}, config.AuthConfig{})
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if body := decodeBody(t, w); body["models_loaded"] != false {
		t.Errorf("expected models_loaded=false for a stopped backend, got %v", body)
	}
}

func emptyFilenameRequest(t *testing.T) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename=""`)
	pw, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pw.Write(jpegBytes(t)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize-plate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRecognizePlateStatusCodes(t *testing.T) {
	granted := &stubFrames{outcome: anpr.FrameOutcome{
		Status:       anpr.StatusSuccess,
		PlateText:    "XXX653AAG",
		Confidence:   0.876543,
		AccessStatus: anpr.AccessGranted,
	}}

	cases := []struct {
		name   string
		frames service.FrameProcessor
		req    func(t *testing.T) *http.Request
		code   int
	}{
		{
			name:   "missing file",
			frames: granted,
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "", nil) },
			code:   http.StatusBadRequest,
		},
		{
			name:   "empty filename",
			frames: granted,
			req:    emptyFilenameRequest,
			code:   http.StatusBadRequest,
		},
		{
			name:   "worker stopped",
			frames: &stoppedFrames{},
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", jpegBytes(t)) },
			code:   http.StatusServiceUnavailable,
		},
		{
			name:   "models not loaded",
			frames: nil,
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", jpegBytes(t)) },
			code:   http.StatusServiceUnavailable,
		},
		{
			name:   "undecodable image",
			frames: granted,
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", []byte("not an image")) },
			code:   http.StatusBadRequest,
		},
		{
			name:   "detector failure",
			frames: &stubFrames{err: fmt.Errorf("%w: worker died", pipeline.ErrDetectorFailed)},
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", jpegBytes(t)) },
			code:   http.StatusInternalServerError,
		},
		{
			name:   "success",
			frames: granted,
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "file", jpegBytes(t)) },
			code:   http.StatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.frames, config.AuthConfig{})
			w := env.do(t, tc.req(t))
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if tc.code != http.StatusOK {
				if _, ok := body["error"]; !ok {
					t.Errorf("expected error body, got %v", body)
				}
				return
			}
			if body["yolo_confidence"] != 0.8765 || body["plate_text"] != "XXX653AAG" || body["access_status"] != "GRANTED" {
				t.Errorf("unexpected success body %v", body)
			}
		})
	}
}

func TestTrustedPlatesCRUD(t *testing.T) {
	env := newTestEnv(t, nil, config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/trusted-plates", strings.NewReader(`{"plate":"ab 12 cd"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(t, req); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/trusted-plates", strings.NewReader(`{"plate":"AB12CD"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/trusted-plates", strings.NewReader(`{"plate":"--"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(t, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty plate, got %d", w.Code)
	}

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/trusted-plates", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"AB12CD"`) {
		t.Fatalf("unexpected list response %d %s", w.Code, w.Body.String())
	}

	if w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/trusted-plates/ab12cd", nil)); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", w.Code)
	}
	if w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/trusted-plates/AB12CD", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
	if env.store.Len() != 0 {
		t.Errorf("expected empty store, got %v", env.store.Snapshot())
	}
}

func TestEventsWithoutJournal(t *testing.T) {
	env := newTestEnv(t, nil, config.AuthConfig{})
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=10", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestOperatorAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gatekeeper"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, nil, config.AuthConfig{
		JWTSecret: "secret",
		TokenTTL:  time.Hour,
		Operators: []config.Operator{{Username: "guard", PasswordHash: string(hash), Role: "operator"}},
	})

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/trusted-plates", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trusted-plates", nil)
	req.Header.Set("Authorization", "Token abc")
	if w := env.do(t, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad scheme, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"guard","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(t, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"guard","password":"gatekeeper"}`))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		Data service.LoginResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatal(err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/trusted-plates", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	if w := env.do(t, uploadRequest(t, "file", jpegBytes(t))); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("recognize-plate should stay public, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/trusted-plates", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := env.do(t, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}
}

func TestEventStats(t *testing.T) {
	env := newTestEnv(t, nil, config.AuthConfig{})

	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/events/stats?hours=-1", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad hours, got %d", w.Code)
	}
	if w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/events/stats", nil)); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without journal, got %d", w.Code)
	}
}
