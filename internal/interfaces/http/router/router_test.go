package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	importapp "github.com/erp/importer/internal/application/import"
	"github.com/erp/importer/internal/domain/bulk"
	"github.com/erp/importer/internal/domain/integration"
	"github.com/erp/importer/internal/domain/shared"
	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/erp/importer/internal/interfaces/http/handler"
	"github.com/erp/importer/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.APIPrefix())
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
	assert.Equal(t, "/api/v2", r.APIPrefix())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.Register(group).Setup()

	req := httptest.NewRequest("GET", "/api/v1/test/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	serve := func(g *DomainGroup, method, path string) *httptest.ResponseRecorder {
		engine := gin.New()
		g.RegisterRoutes(engine.Group("/api/v1"))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("import", "/imports")
		assert.Equal(t, "import", g.Name())
		assert.Equal(t, "/imports", g.Prefix())
	})

	t.Run("GET and POST routes", func(t *testing.T) {
		g := NewDomainGroup("import", "/imports").
			GET("/runs", func(c *gin.Context) { c.String(http.StatusOK, "runs") }).
			POST("/:kind", func(c *gin.Context) { c.String(http.StatusAccepted, c.Param("kind")) })

		w := serve(g, "GET", "/api/v1/imports/runs")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "runs", w.Body.String())

		w = serve(g, "POST", "/api/v1/imports/products")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "products", w.Body.String())
	})

	t.Run("method mismatch is not routed", func(t *testing.T) {
		g := NewDomainGroup("import", "/imports").
			GET("/runs", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(g, "DELETE", "/api/v1/imports/runs")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("applies group middleware", func(t *testing.T) {
		g := NewDomainGroup("import", "/imports")
		g.Use(func(c *gin.Context) {
			c.Header("X-Group", "import")
			c.Next()
		})
		g.GET("/runs", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := serve(g, "GET", "/api/v1/imports/runs")
		assert.Equal(t, "import", w.Header().Get("X-Group"))
	})

	t.Run("subgroups nest under the parent prefix", func(t *testing.T) {
		g := NewDomainGroup("import", "/imports")
		g.Group("runs", "/runs").GET("/:id", func(c *gin.Context) {
			c.String(http.StatusOK, c.Param("id"))
		})

		w := serve(g, "GET", "/api/v1/imports/runs/abc")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abc", w.Body.String())
	})
}

type stubRunner struct {
	run *bulk.ImportRun
}

func (s *stubRunner) Run(_ context.Context, kind bulk.EntityKind, opts importapp.RunOptions) (*bulk.ImportRun, error) {
	run, err := bulk.NewImportRun(kind, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	if err := run.Finish(bulk.RunSummary{Kind: kind, Status: bulk.RunStatusCompleted}); err != nil {
		return nil, err
	}
	s.run = run
	return run, nil
}

func (s *stubRunner) TestConnection(context.Context) (*integration.ConnectionReport, error) {
	return &integration.ConnectionReport{OK: true, BaseURL: "https://shop.example.com"}, nil
}

func (s *stubRunner) GetRun(_ context.Context, id uuid.UUID) (*bulk.ImportRun, error) {
	if s.run != nil && s.run.ID == id {
		return s.run, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRunner) ListRuns(_ context.Context, _ importapp.ListRunsFilter, page, pageSize int) (*bulk.ImportRunListResult, error) {
	items := []*bulk.ImportRun{}
	if s.run != nil {
		items = append(items, s.run)
	}
	return &bulk.ImportRunListResult{Items: items, TotalCount: int64(len(items)), Page: page, PageSize: pageSize}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		HTTP: config.HTTPConfig{
			MaxBodySize:    1 << 20,
			RequestTimeout: time.Second,
		},
	}
}

func newTestEngine(t *testing.T, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	engine, err := NewEngine(EngineDeps{
		Config:  testConfig(),
		Logger:  zap.NewNop(),
		Imports: handler.NewImportHandler(&stubRunner{}),
		System:  handler.NewSystemHandler("catalog-importer", "test", nil),
		Limiter: limiter,
	})
	require.NoError(t, err)
	return engine
}

func TestNewEngine_Routes(t *testing.T) {
	engine := newTestEngine(t, nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/api/v1/system/ping", http.StatusOK},
		{"GET", "/api/v1/system/info", http.StatusOK},
		{"POST", "/api/v1/imports/connection-test", http.StatusOK},
		{"POST", "/api/v1/imports/categories", http.StatusOK},
		{"POST", "/api/v1/imports/orders", http.StatusBadRequest},
		{"GET", "/api/v1/imports/runs", http.StatusOK},
		{"GET", "/api/v1/imports/runs/" + uuid.NewString(), http.StatusNotFound},
		{"GET", "/api/v1/imports/runs/not-a-uuid/errors", http.StatusBadRequest},
		{"GET", "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestNewEngine_RunThenFetch(t *testing.T) {
	engine := newTestEngine(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/imports/stock", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Data struct {
			ID     string `json:"id"`
			Kind   string `json:"kind"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "stock", created.Data.Kind)
	assert.Equal(t, "completed", created.Data.Status)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/imports/runs/"+created.Data.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_Middleware(t *testing.T) {
	t.Run("sets request id and security headers", func(t *testing.T) {
		engine := newTestEngine(t, nil)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/system/ping", nil))

		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("rate limits when a limiter is given", func(t *testing.T) {
		engine := newTestEngine(t, middleware.NewRateLimiter(2, time.Minute))

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/system/ping", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("invalid trusted proxy fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.HTTP.TrustedProxies = []string{"not-an-ip"}

		_, err := NewEngine(EngineDeps{
			Config:  cfg,
			Logger:  zap.NewNop(),
			Imports: handler.NewImportHandler(&stubRunner{}),
			System:  handler.NewSystemHandler("catalog-importer", "test", nil),
		})
		assert.Error(t, err)
	})
}
