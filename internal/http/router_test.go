package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-errorcatcher/internal/config"
	"github.com/tbourn/go-errorcatcher/internal/domain"
	"github.com/tbourn/go-errorcatcher/internal/errorhandler"
	"github.com/tbourn/go-errorcatcher/internal/http/middleware"
	"github.com/tbourn/go-errorcatcher/internal/render"
	"github.com/tbourn/go-errorcatcher/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Incident{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestCatcher(t *testing.T, opts ...errorhandler.Option) *middleware.ErrorCatcher {
	t.Helper()
	opts = append([]errorhandler.Option{errorhandler.WithLogger(zerolog.Nop())}, opts...)
	ec, err := middleware.NewErrorCatcher(middleware.DefaultFormats(), render.DefaultContainer(), errorhandler.New(opts...))
	if err != nil {
		t.Fatalf("NewErrorCatcher: %v", err)
	}
	return ec
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil},
		Security:    config.SecurityConfig{CSP: middleware.DefaultCSP},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func serve(r http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, nil, newTestCatcher(t), baseConfig())

	w := serve(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := serve(r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/health", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	RegisterRoutes(r, nil, newTestCatcher(t), cfg)

	w := serve(r, http.MethodGet, "/health", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_DebugRoutesDisabledByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, nil, newTestCatcher(t), baseConfig())

	if w := serve(r, http.MethodGet, "/debug/panic", nil); w.Code != http.StatusNotFound {
		t.Fatalf("debug route should not be mounted, got %d", w.Code)
	}
}

func TestRegisterRoutes_PanicRenderedPerAccept(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.DebugRoutes = true
	RegisterRoutes(r, nil, newTestCatcher(t), cfg)

	w := serve(r, http.MethodGet, "/debug/panic", map[string]string{
		"Accept":       "application/json",
		"X-Request-ID": "rid-router",
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type=%q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	if body["message"] != render.DefaultMessage || body["request_id"] != "rid-router" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, leaked := body["trace"]; leaked {
		t.Fatalf("trace must be hidden without ExposeDetails")
	}
	if csp := w.Header().Get("Content-Security-Policy"); csp != middleware.DefaultCSP {
		t.Fatalf("CSP=%q", csp)
	}

	// Runtime error, no Accept → HTML default
	w = serve(r, http.MethodGet, "/debug/panic?kind=runtime", nil)
	if w.Code != http.StatusInternalServerError || w.Header().Get("Content-Type") != "text/html" {
		t.Fatalf("status=%d ct=%q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "<!DOCTYPE html>") {
		t.Fatalf("expected HTML page, got %q", w.Body.String())
	}

	// Attached error → text/plain when asked
	w = serve(r, http.MethodGet, "/debug/error", map[string]string{"Accept": "text/plain"})
	if w.Code != http.StatusInternalServerError || w.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("status=%d ct=%q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), render.DefaultMessage) {
		t.Fatalf("unexpected text body %q", w.Body.String())
	}
}

func TestRegisterRoutes_IncidentsRecordedAndListed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	cfg := baseConfig()
	cfg.DebugRoutes = true
	cfg.IncidentsEnabled = true
	RegisterRoutes(r, db, newTestCatcher(t, errorhandler.WithRecorder(repo.IncidentRecorder{DB: db})), cfg)

	if w := serve(r, http.MethodGet, "/debug/panic?kind=value", map[string]string{"X-Request-ID": "rid-inc"}); w.Code != http.StatusInternalServerError {
		t.Fatalf("panic route status=%d", w.Code)
	}

	w := serve(r, http.MethodGet, "/api/v1/incidents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}
	var list struct {
		Incidents []domain.Incident `json:"incidents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(list.Incidents) != 1 {
		t.Fatalf("expected one incident, got %d", len(list.Incidents))
	}
	inc := list.Incidents[0]
	if inc.RequestID != "rid-inc" || inc.Method != http.MethodGet || inc.Path != "/debug/panic" {
		t.Fatalf("unexpected incident: %+v", inc)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag on incidents list")
	}

	w = serve(r, http.MethodGet, "/api/v1/incidents/"+inc.ID, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), inc.ID) {
		t.Fatalf("get status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_IncidentsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, nil, newTestCatcher(t), baseConfig())

	if w := serve(r, http.MethodGet, "/api/v1/incidents", nil); w.Code != http.StatusNotFound {
		t.Fatalf("incidents route should not be mounted, got %d", w.Code)
	}
}

func TestRegisterRoutes_GzipOnNegotiatedEncoding(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, nil, newTestCatcher(t), baseConfig())

	w := serve(r, http.MethodGet, "/health", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("status=%d encoding=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
	if w := serve(r, http.MethodGet, "/health", nil); w.Header().Get("Content-Encoding") != "" {
		t.Fatalf("no gzip expected without Accept-Encoding")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for target, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", target, rec.Code, rec.Body.String())
		}
	}
}

// Smoke test that a request traverses ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.Security.EnableHSTS = true
	cfg.Security.HSTSMaxAge = time.Hour
	RegisterRoutes(r, nil, newTestCatcher(t), cfg)

	w := serve(r, http.MethodGet, "/health", map[string]string{"X-Forwarded-Proto": "https"})
	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); !strings.HasPrefix(hsts, "max-age=3600") {
		t.Fatalf("HSTS=%q", hsts)
	}
}

func TestPipeline_HealthNotRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	RegisterRoutes(r, nil, newTestCatcher(t), cfg)

	for i := 0; i < 5; i++ {
		if w := serve(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: /health = %d", i, w.Code)
		}
	}
	serve(r, http.MethodGet, "/nope", nil)
	if w := serve(r, http.MethodGet, "/nope", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second limited request, got %d", w.Code)
	}
}
